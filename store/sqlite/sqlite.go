// Package sqlite persists prospects, contacts and handoff packets in a SQLite
// database using the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hupe1980/prospectmesh/core"
	"github.com/hupe1980/prospectmesh/dedup"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS prospects (
	id TEXT PRIMARY KEY,
	stage INTEGER NOT NULL,
	data TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS contacts (
	email TEXT PRIMARY KEY,
	domain TEXT NOT NULL,
	prospect_id TEXT,
	data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contacts_domain ON contacts(domain);
CREATE TABLE IF NOT EXISTS handoffs (
	prospect_id TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// Store implements core.ProspectStore, core.Directory and core.HandoffStore.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes the database at path. ":memory:" opens a private
// in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &Store{db: db, dbPath: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

// Get loads a prospect or returns core.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (core.Prospect, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM prospects WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Prospect{}, fmt.Errorf("prospect %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Prospect{}, fmt.Errorf("failed to load prospect %s: %w", id, err)
	}
	return decodeProspect(data)
}

// Put upserts a prospect.
func (s *Store) Put(ctx context.Context, p core.Prospect) error {
	if p.ID == "" {
		return fmt.Errorf("prospect id is required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode prospect %s: %w", p.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO prospects (id, stage, data, updated_at) VALUES (?, ?, ?, ?)",
		p.ID, int(p.Stage), string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save prospect %s: %w", p.ID, err)
	}
	return nil
}

// List returns all prospects ordered by id.
func (s *Store) List(ctx context.Context) ([]core.Prospect, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT data FROM prospects ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list prospects: %w", err)
	}
	defer rows.Close()

	var out []core.Prospect
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		p, err := decodeProspect(data)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Delete removes a prospect and its handoff packet.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range []string{"DELETE FROM prospects WHERE id = ?", "DELETE FROM handoffs WHERE prospect_id = ?"} {
		if _, err := s.db.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("failed to delete prospect %s: %w", id, err)
		}
	}
	return nil
}

// Reset clears every table.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"prospects", "contacts", "handoffs"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// ListContacts returns contacts recorded for domain.
func (s *Store) ListContacts(ctx context.Context, domain string) ([]core.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT data FROM contacts WHERE domain = ? ORDER BY email", dedup.NormalizeDomain(domain))
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer rows.Close()

	contacts := []core.Contact{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var c core.Contact
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, fmt.Errorf("failed to decode contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// SaveContact records c unless its normalized email is already known.
func (s *Store) SaveContact(ctx context.Context, prospectID string, c core.Contact) error {
	domain := c.Domain
	if domain == "" {
		domain = dedup.EmailDomain(c.Email)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO contacts (email, domain, prospect_id, data) VALUES (?, ?, ?, ?)",
		dedup.NormalizeEmail(c.Email), dedup.NormalizeDomain(domain), prospectID, string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to save contact: %w", err)
	}
	return nil
}

// SaveHandoff upserts the handoff packet of a prospect.
func (s *Store) SaveHandoff(ctx context.Context, packet core.HandoffPacket) error {
	data, err := json.Marshal(packet)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO handoffs (prospect_id, data) VALUES (?, ?)",
		packet.ProspectID, string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to save handoff %s: %w", packet.ProspectID, err)
	}
	return nil
}

// Handoff returns the saved packet of prospectID.
func (s *Store) Handoff(ctx context.Context, prospectID string) (core.HandoffPacket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM handoffs WHERE prospect_id = ?", prospectID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return core.HandoffPacket{}, fmt.Errorf("handoff %s: %w", prospectID, core.ErrNotFound)
	}
	if err != nil {
		return core.HandoffPacket{}, err
	}
	var h core.HandoffPacket
	if err := json.Unmarshal([]byte(data), &h); err != nil {
		return core.HandoffPacket{}, fmt.Errorf("failed to decode handoff: %w", err)
	}
	return h, nil
}

func decodeProspect(data string) (core.Prospect, error) {
	var p core.Prospect
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return core.Prospect{}, fmt.Errorf("failed to decode prospect: %w", err)
	}
	if p.Facts == nil {
		p.Facts = map[string]core.Fact{}
	}
	return p, nil
}

var (
	_ core.ProspectStore = (*Store)(nil)
	_ core.Directory     = (*Store)(nil)
	_ core.HandoffStore  = (*Store)(nil)
)
