// Package session owns the lifecycle of all forwarding tunnels. A
// single control goroutine consumes toggle commands and driver outcomes
// from channels, so the entry table has exactly one writer and needs no
// locking. Every driver start bumps the entry's generation counter;
// outcomes carrying an older generation belong to a superseded driver
// and are discarded.
package session

import (
	"time"

	"svcfwd/pkg/catalog"
	"svcfwd/pkg/logging"
	"svcfwd/pkg/state"
	"svcfwd/pkg/tunnel"
)

// PortPreferences remembers the last local port used per entry.
// Implemented by store.PortStore; nil disables persistence.
type PortPreferences interface {
	LastLocalPort(namespace, service string, remotePort int32) (int, bool)
	RememberLocalPort(namespace, service string, remotePort int32, localPort int) error
}

// Config wires a Manager.
type Config struct {
	Catalog     *catalog.Catalog
	Driver      tunnel.Driver
	Prefs       PortPreferences
	BindAddress string
}

type entryState struct {
	entry      state.Entry
	requested  bool
	generation uint64
	status     state.Status
	localPort  int
	lastError  error
	startedAt  time.Time
	handle     tunnel.Handle
}

type cmdKind int

const (
	cmdToggle cmdKind = iota
	cmdToggleService
	cmdShutdown
)

type command struct {
	kind    cmdKind
	key     string
	service string
	done    chan struct{}
}

type outcome struct {
	key        string
	generation uint64
	kind       tunnel.OutcomeKind
	err        error
}

// Manager reconciles desired tunnel state with running drivers.
type Manager struct {
	driver      tunnel.Driver
	prefs       PortPreferences
	pub         *state.Publisher
	namespace   string
	bindAddress string

	entries   map[string]*entryState
	order     []string
	usedPorts map[int]string // local port -> entry key

	cmds     chan command
	outcomes chan outcome
	done     chan struct{}
}

// NewManager builds the entry table from the catalog snapshot and
// starts the control loop.
func NewManager(cfg Config) *Manager {
	bindAddress := cfg.BindAddress
	if bindAddress == "" {
		bindAddress = "127.0.0.1"
	}

	var order []string
	entries := make(map[string]*entryState)
	var published []state.Entry
	for _, svc := range cfg.Catalog.Services {
		for _, port := range svc.Ports {
			e := state.Entry{
				Service:    svc.Name,
				RemotePort: port.Remote,
				Label:      port.Label,
				Protocol:   port.Protocol,
			}
			key := e.Key()
			if _, dup := entries[key]; dup {
				continue
			}
			entries[key] = &entryState{entry: e, status: state.StatusIdle}
			order = append(order, key)
			published = append(published, e)
		}
	}

	m := &Manager{
		driver:      cfg.Driver,
		prefs:       cfg.Prefs,
		pub:         state.NewPublisher(published),
		namespace:   cfg.Catalog.Namespace,
		bindAddress: bindAddress,
		entries:     entries,
		order:       order,
		usedPorts:   make(map[int]string),
		cmds:        make(chan command),
		outcomes:    make(chan outcome, 64),
		done:        make(chan struct{}),
	}
	go m.loop()
	return m
}

// Publisher exposes the published view for the presentation layer.
func (m *Manager) Publisher() *state.Publisher {
	return m.pub
}

// Entries returns the current consistent view, in snapshot order.
func (m *Manager) Entries() []state.EntryStatus {
	return m.pub.Snapshot()
}

// Toggle flips the desired state of one entry. It returns once the
// command has been applied to the table; tunnel outcomes arrive later
// through the published status.
func (m *Manager) Toggle(key string) {
	m.send(command{kind: cmdToggle, key: key})
}

// ToggleService toggles every port of a service. The target state is
// the negation of the majority desired state; a tie turns everything
// on. Each entry is toggled independently.
func (m *Manager) ToggleService(service string) {
	m.send(command{kind: cmdToggleService, service: service})
}

// Shutdown cancels all live tunnels and stops the control loop.
func (m *Manager) Shutdown() {
	m.send(command{kind: cmdShutdown})
}

func (m *Manager) send(cmd command) {
	cmd.done = make(chan struct{})
	select {
	case m.cmds <- cmd:
		<-cmd.done
	case <-m.done:
	}
}

func (m *Manager) loop() {
	for {
		select {
		case cmd := <-m.cmds:
			switch cmd.kind {
			case cmdToggle:
				m.handleToggle(cmd.key)
			case cmdToggleService:
				m.handleToggleService(cmd.service)
			case cmdShutdown:
				m.cancelAll()
				close(cmd.done)
				close(m.done)
				return
			}
			close(cmd.done)
		case out := <-m.outcomes:
			m.handleOutcome(out)
		}
	}
}

func (m *Manager) handleToggle(key string) {
	es, ok := m.entries[key]
	if !ok {
		logging.Warn("session", "toggle for unknown entry %s", key)
		return
	}
	es.requested = !es.requested
	logging.Debug("session", "toggle %s -> requested=%t", key, es.requested)
	m.reconcile(es)
}

func (m *Manager) handleToggleService(service string) {
	var members []*entryState
	on := 0
	for _, key := range m.order {
		es := m.entries[key]
		if es.entry.Service != service {
			continue
		}
		members = append(members, es)
		if es.requested {
			on++
		}
	}
	if len(members) == 0 {
		logging.Warn("session", "toggle for unknown service %s", service)
		return
	}

	// Majority off turns everything on; ties favor on.
	target := len(members)-on >= on
	logging.Debug("session", "toggle service %s: %d/%d on -> requested=%t", service, on, len(members), target)
	for _, es := range members {
		if es.requested == target {
			continue
		}
		es.requested = target
		m.reconcile(es)
	}
}

// reconcile drives one entry toward its desired state.
func (m *Manager) reconcile(es *entryState) {
	key := es.entry.Key()
	switch {
	case es.requested && es.handle == nil:
		m.startDriver(es)
	case !es.requested && es.handle != nil:
		// Cancellation is cooperative; the status moves to Stopped when
		// the driver's terminal outcome for this generation arrives.
		es.handle.Cancel()
		es.handle = nil
		logging.Debug("session", "cancelled driver for %s generation %d", key, es.generation)
	}
	m.publish(es)
}

func (m *Manager) startDriver(es *entryState) {
	key := es.entry.Key()

	port, err := m.allocateLocalPort(es)
	if err != nil {
		es.requested = false
		es.status = state.StatusFailed
		es.lastError = err
		logging.Error("session", err, "no local port for %s", key)
		return
	}
	if es.localPort != port && es.localPort > 0 {
		delete(m.usedPorts, es.localPort)
	}
	es.localPort = port
	m.usedPorts[port] = key
	if m.prefs != nil {
		if err := m.prefs.RememberLocalPort(m.namespace, es.entry.Service, es.entry.RemotePort, port); err != nil {
			logging.Warn("session", "failed to persist local port for %s: %v", key, err)
		}
	}

	es.generation++
	es.status = state.StatusConnecting
	es.lastError = nil
	es.startedAt = time.Time{}

	gen := es.generation
	report := func(kind tunnel.OutcomeKind, err error) {
		select {
		case m.outcomes <- outcome{key: key, generation: gen, kind: kind, err: err}:
		case <-m.done:
		}
	}

	target := tunnel.Target{
		Namespace:  m.namespace,
		Service:    es.entry.Service,
		RemotePort: es.entry.RemotePort,
	}
	handle, err := m.driver.Start(target, port, report)
	if err != nil {
		es.requested = false
		es.status = state.StatusFailed
		es.lastError = err
		logging.Error("session", err, "failed to start driver for %s", key)
		return
	}
	es.handle = handle
	logging.Debug("session", "started driver for %s on local port %d, generation %d", key, port, gen)
}

func (m *Manager) handleOutcome(out outcome) {
	es, ok := m.entries[out.key]
	if !ok {
		return
	}
	if out.generation != es.generation {
		// A superseded driver reporting late. Not user-visible.
		logging.Debug("session", "discarding stale outcome %s for %s (generation %d, current %d)",
			out.kind, out.key, out.generation, es.generation)
		return
	}

	switch out.kind {
	case tunnel.OutcomeReady:
		if es.handle == nil {
			// Cancelled while connecting; the Stopped outcome follows.
			return
		}
		es.status = state.StatusActive
		es.startedAt = time.Now()
		es.lastError = nil
	case tunnel.OutcomeStopped:
		es.status = state.StatusStopped
		es.handle = nil
		es.requested = false
	case tunnel.OutcomeFailed:
		// Sticky until the user toggles again; resetting the desired
		// state makes that next toggle a retry.
		es.status = state.StatusFailed
		es.lastError = out.err
		es.handle = nil
		es.requested = false
	}
	m.publish(es)
}

func (m *Manager) cancelAll() {
	for _, key := range m.order {
		es := m.entries[key]
		es.requested = false
		if es.handle == nil {
			continue
		}
		es.handle.Cancel()
		es.handle = nil
		// The loop is exiting, so the driver's terminal outcome will
		// never be consumed. Publish the final state here instead.
		es.status = state.StatusStopped
		m.publish(es)
	}
}

func (m *Manager) publish(es *entryState) {
	m.pub.Apply(state.EntryStatus{
		Entry:     es.entry,
		Status:    es.status,
		LocalPort: es.localPort,
		LastError: es.lastError,
		StartedAt: es.startedAt,
	})
}
