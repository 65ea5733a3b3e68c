package otp

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const challengeColumns = `id, guest_session_id, phone_e164, otp_hash, expires_at, attempts_left, status, created_at`

// PostgresStore persists challenges in the otp_challenges table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func scanChallenge(row pgx.Row) (*Challenge, error) {
	var c Challenge
	var status string
	err := row.Scan(&c.ID, &c.GuestSessionID, &c.PhoneE164, &c.OTPHash,
		&c.ExpiresAt, &c.AttemptsLeft, &status, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Status = Status(status)
	return &c, nil
}

// Create inserts c inside a transaction holding a session-scoped advisory
// lock, so concurrent sends for one session see each other's rows.
func (p *PostgresStore) Create(ctx context.Context, c *Challenge, check CreateCheck) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, c.GuestSessionID); err != nil {
		return fmt.Errorf("locking otp session: %w", err)
	}
	if check != nil {
		latest, err := findLatest(ctx, tx, c.GuestSessionID, StatusSent)
		if err != nil {
			return err
		}
		if err := check(latest); err != nil {
			return err
		}
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO otp_challenges (guest_session_id, phone_e164, otp_hash, expires_at, attempts_left, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		c.GuestSessionID, c.PhoneE164, c.OTPHash, c.ExpiresAt, c.AttemptsLeft, string(c.Status), c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("inserting otp challenge: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing otp challenge: %w", err)
	}
	return nil
}

func (p *PostgresStore) FindByID(ctx context.Context, id int64) (*Challenge, error) {
	c, err := scanChallenge(p.pool.QueryRow(ctx,
		`SELECT `+challengeColumns+` FROM otp_challenges WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("querying otp challenge: %w", err)
	}
	return c, nil
}

func (p *PostgresStore) FindLatestByStatus(ctx context.Context, sessionID string, status Status) (*Challenge, error) {
	return findLatest(ctx, p.pool, sessionID, status)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func findLatest(ctx context.Context, db querier, sessionID string, status Status) (*Challenge, error) {
	c, err := scanChallenge(db.QueryRow(ctx,
		`SELECT `+challengeColumns+` FROM otp_challenges
		 WHERE guest_session_id = $1 AND status = $2
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`, sessionID, string(status)))
	if err != nil {
		return nil, fmt.Errorf("querying latest otp challenge: %w", err)
	}
	return c, nil
}

func (p *PostgresStore) Save(ctx context.Context, c *Challenge) error {
	return save(ctx, p.pool, c)
}

// Update locks the challenge row with SELECT ... FOR UPDATE for the duration
// of fn. Writes made by fn are committed even when fn reports a domain error.
func (p *PostgresStore) Update(ctx context.Context, id int64, fn UpdateFunc) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	c, err := scanChallenge(tx.QueryRow(ctx,
		`SELECT `+challengeColumns+` FROM otp_challenges WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return fmt.Errorf("locking otp challenge: %w", err)
	}

	doSave, fnErr := fn(c)
	if doSave && c != nil {
		if err := save(ctx, tx, c); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing otp challenge: %w", err)
	}
	return fnErr
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// save writes the mutable columns of c. Status only moves forward and
// attempts_left only goes down, so a stale write cannot undo a newer one.
func save(ctx context.Context, db execer, c *Challenge) error {
	tag, err := db.Exec(ctx,
		`UPDATE otp_challenges
		 SET status = CASE WHEN status = 'SENT' THEN $2 ELSE status END,
		     attempts_left = LEAST(attempts_left, $3)
		 WHERE id = $1`,
		c.ID, string(c.Status), c.AttemptsLeft)
	if err != nil {
		return fmt.Errorf("updating otp challenge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("updating otp challenge %d: %w", c.ID, pgx.ErrNoRows)
	}
	return nil
}
