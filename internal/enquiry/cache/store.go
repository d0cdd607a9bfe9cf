package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"enquiry-socket/internal/enquiry/domain"
)

// Entry is a cached schema plus the time it was stored. Entries are replaced whole, never mutated.
type Entry struct {
	Schema      *domain.Schema
	LastUpdated time.Time
}

// Store persists cache entries by company id. Put and Delete must be atomic per key.
type Store interface {
	// Get returns the entry for companyID. ok is false when there is none.
	Get(ctx context.Context, companyID string) (e Entry, ok bool, err error)
	Put(ctx context.Context, companyID string, e Entry) error
	// Delete removes the entry and reports whether one existed.
	Delete(ctx context.Context, companyID string) (existed bool, err error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]Entry
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]Entry)}
}

func (s *MemoryStore) Get(_ context.Context, companyID string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.m[companyID]
	return e, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, companyID string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[companyID] = e
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, companyID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[companyID]
	delete(s.m, companyID)
	return ok, nil
}

// PostgresStore keeps entries in the enquiry_options table so every process sharing the database
// sees the same cache and the same invalidations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore returns a Store backed by db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, companyID string) (Entry, bool, error) {
	var (
		data        []byte
		lastUpdated time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT data, last_updated FROM enquiry_options WHERE company_id = $1`, companyID,
	).Scan(&data, &lastUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	var schema domain.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return Entry{}, false, err
	}
	return Entry{Schema: &schema, LastUpdated: lastUpdated.UTC()}, true, nil
}

func (s *PostgresStore) Put(ctx context.Context, companyID string, e Entry) error {
	data, err := json.Marshal(e.Schema)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enquiry_options (company_id, data, last_updated)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (company_id) DO UPDATE SET data = EXCLUDED.data, last_updated = EXCLUDED.last_updated`,
		companyID, data, e.LastUpdated,
	)
	return err
}

func (s *PostgresStore) Delete(ctx context.Context, companyID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM enquiry_options WHERE company_id = $1`, companyID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
