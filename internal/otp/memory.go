package otp

import (
	"context"
	"errors"
	"sync"
)

// MemoryStore is an in-process ChallengeStore. A single mutex serializes
// Update calls, which is enough for tests and single-node development.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]Challenge
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[int64]Challenge)}
}

func (m *MemoryStore) Create(_ context.Context, c *Challenge, check CreateCheck) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if check != nil {
		if err := check(m.latestLocked(c.GuestSessionID, StatusSent)); err != nil {
			return err
		}
	}
	m.nextID++
	c.ID = m.nextID
	m.rows[c.ID] = *c
	return nil
}

func (m *MemoryStore) FindByID(_ context.Context, id int64) (*Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *MemoryStore) FindLatestByStatus(_ context.Context, sessionID string, status Status) (*Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latestLocked(sessionID, status), nil
}

func (m *MemoryStore) latestLocked(sessionID string, status Status) *Challenge {
	var latest *Challenge
	for _, c := range m.rows {
		if c.GuestSessionID != sessionID || c.Status != status {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) ||
			(c.CreatedAt.Equal(latest.CreatedAt) && c.ID > latest.ID) {
			latest = &c
		}
	}
	return latest
}

func (m *MemoryStore) Save(_ context.Context, c *Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(c)
}

func (m *MemoryStore) Update(_ context.Context, id int64, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var target *Challenge
	if c, ok := m.rows[id]; ok {
		target = &c
	}
	save, err := fn(target)
	if save && target != nil {
		if serr := m.saveLocked(target); serr != nil {
			return errors.Join(err, serr)
		}
	}
	return err
}

// saveLocked applies the same guards as the Postgres store: status leaves
// SENT at most once and attempts never increase.
func (m *MemoryStore) saveLocked(c *Challenge) error {
	cur, ok := m.rows[c.ID]
	if !ok {
		return errors.New("otp: saving unknown challenge")
	}
	if cur.Status == StatusSent {
		cur.Status = c.Status
	}
	cur.AttemptsLeft = min(cur.AttemptsLeft, c.AttemptsLeft)
	m.rows[c.ID] = cur
	return nil
}
