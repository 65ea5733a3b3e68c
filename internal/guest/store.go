package guest

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps sessions in the guest_sessions table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const columns = "id, table_id, expires_at, is_verified, verified_phone, created_at"

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	if err := row.Scan(&s.ID, &s.TableID, &s.ExpiresAt, &s.IsVerified, &s.VerifiedPhone, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *PostgresStore) Create(ctx context.Context, s *Session) error {
	return p.pool.QueryRow(ctx,
		`INSERT INTO guest_sessions (id, table_id, expires_at, is_verified, verified_phone, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		s.ID, s.TableID, s.ExpiresAt, s.IsVerified, s.VerifiedPhone, s.CreatedAt,
	).Scan(&s.CreatedAt)
}

func (p *PostgresStore) FindByID(ctx context.Context, id string) (*Session, error) {
	s, err := scanSession(p.pool.QueryRow(ctx, "SELECT "+columns+" FROM guest_sessions WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (p *PostgresStore) Save(ctx context.Context, s *Session) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE guest_sessions
		 SET is_verified = is_verified OR $2,
		     verified_phone = CASE WHEN $2 THEN $3 ELSE verified_phone END
		 WHERE id = $1`,
		s.ID, s.IsVerified, s.VerifiedPhone,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
