package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"svcfwd/pkg/logging"

	_ "modernc.org/sqlite"
)

// PortStore persists the last-used local port per (namespace, service,
// remote port) so re-opening a tunnel lands on the same local port.
type PortStore struct {
	db    *sql.DB
	mutex sync.Mutex
}

// Open creates or opens the preference database at dbPath.
func Open(dbPath string) (*PortStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PortStore{db: db}
	if err := s.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	logging.Debug("store", "port preference store opened at %s", dbPath)
	return s, nil
}

// DefaultPath returns the standard database location under dir.
func DefaultPath(dir string) string {
	return filepath.Join(dir, "svcfwd.db")
}

func (s *PortStore) initializeSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS local_ports (
		namespace   TEXT NOT NULL,
		service     TEXT NOT NULL,
		port_remote INTEGER NOT NULL,
		port_local  INTEGER NOT NULL,
		PRIMARY KEY (namespace, service, port_remote)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// LastLocalPort returns the remembered local port for the entry, if any.
func (s *PortStore) LastLocalPort(namespace, service string, remotePort int32) (int, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var port int
	err := s.db.QueryRow(
		`SELECT port_local FROM local_ports WHERE namespace = ? AND service = ? AND port_remote = ?`,
		namespace, service, remotePort,
	).Scan(&port)
	if err == sql.ErrNoRows {
		return 0, false
	}
	if err != nil {
		logging.Error("store", err, "failed to read local port for %s/%s:%d", namespace, service, remotePort)
		return 0, false
	}
	return port, true
}

// RememberLocalPort records the local port used for the entry.
func (s *PortStore) RememberLocalPort(namespace, service string, remotePort int32, localPort int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO local_ports (namespace, service, port_remote, port_local)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (namespace, service, port_remote) DO UPDATE SET port_local = excluded.port_local`,
		namespace, service, remotePort, localPort,
	)
	if err != nil {
		return fmt.Errorf("failed to store local port: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *PortStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
