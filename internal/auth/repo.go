package auth

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists sign-in records.
type Repository interface {
	UpsertAccount(ctx context.Context, acct Account) error
	CreateSession(ctx context.Context, id, subject string, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}

// PGRepository implements Repository on Postgres.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// UpsertAccount records the identity, refreshing profile fields and the
// last-seen timestamp on repeat sign-ins.
func (r *PGRepository) UpsertAccount(ctx context.Context, acct Account) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO accounts (subject, email, name, first_seen, last_seen)
         VALUES ($1, $2, $3, NOW(), NOW())
         ON CONFLICT (subject)
         DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name, last_seen = NOW()`,
		acct.Subject, acct.Email, acct.Name)
	return err
}

// CreateSession registers the browser session for audit purposes.
func (r *PGRepository) CreateSession(ctx context.Context, id, subject string, expiresAt time.Time, ip, ua string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, subject, expires_at, ip, user_agent)
         VALUES ($1, $2, $3, $4, $5)
         ON CONFLICT (id) DO UPDATE SET expires_at = EXCLUDED.expires_at`,
		id, subject, expiresAt, ip, ua)
	return err
}

// DeleteSession removes a session record.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}
