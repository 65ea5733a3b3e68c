package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists payment intents.
type Store interface {
	// Create assigns intent.ID and stores intent.
	Create(ctx context.Context, intent *Intent) error
	// FindByID returns nil, nil when no intent has the id.
	FindByID(ctx context.Context, id int64) (*Intent, error)
	// FindByProviderRef returns nil, nil when provider has no intent with ref.
	FindByProviderRef(ctx context.Context, provider, ref string) (*Intent, error)
	// Save persists the provider reference, status and updated time of a
	// PENDING intent, and fails with ErrIntentSettled otherwise.
	Save(ctx context.Context, intent *Intent) error
}

const intentColumns = `id, table_id, amount_cents, currency_code, provider, provider_ref, status, created_at, updated_at`

// PostgresStore persists intents in the payment_intents table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func scanIntent(row pgx.Row) (*Intent, error) {
	var in Intent
	var ref *string
	err := row.Scan(&in.ID, &in.TableID, &in.AmountCents, &in.CurrencyCode, &in.Provider,
		&ref, &in.Status, &in.CreatedAt, &in.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ref != nil {
		in.ProviderRef = *ref
	}
	return &in, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (p *PostgresStore) Create(ctx context.Context, in *Intent) error {
	err := p.pool.QueryRow(ctx,
		`INSERT INTO payment_intents (table_id, amount_cents, currency_code, provider, provider_ref, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		in.TableID, in.AmountCents, in.CurrencyCode, in.Provider, nullable(in.ProviderRef), in.Status, in.CreatedAt, in.UpdatedAt,
	).Scan(&in.ID)
	if err != nil {
		return fmt.Errorf("inserting payment intent: %w", err)
	}
	return nil
}

func (p *PostgresStore) FindByID(ctx context.Context, id int64) (*Intent, error) {
	in, err := scanIntent(p.pool.QueryRow(ctx,
		`SELECT `+intentColumns+` FROM payment_intents WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("querying payment intent: %w", err)
	}
	return in, nil
}

func (p *PostgresStore) FindByProviderRef(ctx context.Context, provider, ref string) (*Intent, error) {
	in, err := scanIntent(p.pool.QueryRow(ctx,
		`SELECT `+intentColumns+` FROM payment_intents WHERE provider = $1 AND provider_ref = $2`, provider, ref))
	if err != nil {
		return nil, fmt.Errorf("querying payment intent by ref: %w", err)
	}
	return in, nil
}

// Save only updates a PENDING intent. It returns ErrIntentSettled when the
// stored intent is already PAID or FAILED.
func (p *PostgresStore) Save(ctx context.Context, in *Intent) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE payment_intents SET provider_ref = $2, status = $3, updated_at = $4
		 WHERE id = $1 AND status = 'PENDING'`,
		in.ID, nullable(in.ProviderRef), in.Status, in.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating payment intent: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var status string
	err = p.pool.QueryRow(ctx, `SELECT status FROM payment_intents WHERE id = $1`, in.ID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("updating payment intent %d: %w", in.ID, pgx.ErrNoRows)
	}
	if err != nil {
		return fmt.Errorf("querying payment intent status: %w", err)
	}
	return ErrIntentSettled
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]Intent
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[int64]Intent)}
}

func (m *MemoryStore) Create(_ context.Context, in *Intent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	in.ID = m.nextID
	m.rows[in.ID] = *in
	return nil
}

func (m *MemoryStore) FindByID(_ context.Context, id int64) (*Intent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return &in, nil
}

func (m *MemoryStore) FindByProviderRef(_ context.Context, provider, ref string) (*Intent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, in := range m.rows {
		if in.Provider == provider && in.ProviderRef == ref {
			return &in, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) Save(_ context.Context, in *Intent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[in.ID]
	if !ok {
		return fmt.Errorf("updating payment intent %d: not found", in.ID)
	}
	if cur.Status != StatusPending {
		return ErrIntentSettled
	}
	cur.ProviderRef = in.ProviderRef
	cur.Status = in.Status
	cur.UpdatedAt = in.UpdatedAt
	m.rows[in.ID] = cur
	return nil
}
