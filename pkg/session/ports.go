package session

import (
	"fmt"
	"net"

	"svcfwd/pkg/logging"
)

// portAvailable probes whether a TCP port can be bound on addr.
func portAvailable(addr string, port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("%s:%d", addr, port))
	if err != nil {
		logging.Debug("session", "port %d unavailable on %s: %v", port, addr, err)
		return false
	}
	_ = l.Close()
	return true
}

// ephemeralPort asks the kernel for a free port on addr.
func ephemeralPort(addr string) (int, error) {
	l, err := net.Listen("tcp", fmt.Sprintf("%s:0", addr))
	if err != nil {
		return 0, fmt.Errorf("failed to allocate ephemeral port: %w", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	return port, nil
}

// allocateLocalPort picks the local port for an entry: the port it used
// last time if still usable, then the persisted preference, then a
// fresh ephemeral port. Ports held by other entries are never reused.
func (m *Manager) allocateLocalPort(es *entryState) (int, error) {
	candidates := make([]int, 0, 2)
	if es.localPort > 0 {
		candidates = append(candidates, es.localPort)
	}
	if m.prefs != nil {
		if port, ok := m.prefs.LastLocalPort(m.namespace, es.entry.Service, es.entry.RemotePort); ok {
			candidates = append(candidates, port)
		}
	}

	key := es.entry.Key()
	for _, port := range candidates {
		if owner, taken := m.usedPorts[port]; taken && owner != key {
			continue
		}
		if !portAvailable(m.bindAddress, port) {
			continue
		}
		return port, nil
	}

	for attempt := 0; attempt < 5; attempt++ {
		port, err := ephemeralPort(m.bindAddress)
		if err != nil {
			return 0, err
		}
		if _, taken := m.usedPorts[port]; !taken {
			return port, nil
		}
	}
	return 0, fmt.Errorf("could not find a free local port on %s", m.bindAddress)
}
