package store

import (
	"context"
	"sync"
	"time"
)

// SaveState upserts a named state blob.
func (s *Store) SaveState(ctx context.Context, name string, data []byte) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO house_states (name, data, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		name, data)
	return err
}

// LoadState returns the named state blob or ErrNotFound.
func (s *Store) LoadState(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.Pool.QueryRow(ctx, `SELECT data FROM house_states WHERE name = $1`, name).Scan(&data)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return data, nil
}

func (s *Store) DeleteState(ctx context.Context, name string) error {
	_, err := s.Pool.Exec(ctx, `DELETE FROM house_states WHERE name = $1`, name)
	return err
}

// MemoryStates keeps state blobs in process memory. It backs development runs
// without Postgres and tests.
type MemoryStates struct {
	mu      sync.Mutex
	records map[string]StateRecord
}

func NewMemoryStates() *MemoryStates {
	return &MemoryStates{records: map[string]StateRecord{}}
}

func (m *MemoryStates) SaveState(_ context.Context, name string, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	m.mu.Lock()
	m.records[name] = StateRecord{Name: name, Data: buf, UpdatedAt: time.Now()}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStates) LoadState(_ context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[name]
	if !ok {
		return nil, ErrNotFound
	}
	buf := make([]byte, len(rec.Data))
	copy(buf, rec.Data)
	return buf, nil
}

func (m *MemoryStates) DeleteState(_ context.Context, name string) error {
	m.mu.Lock()
	delete(m.records, name)
	m.mu.Unlock()
	return nil
}
