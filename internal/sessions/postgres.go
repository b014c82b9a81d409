package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/secure-events/backend/internal/models"
)

// PostgresStore persists sessions in the sessions table.
type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a session store with the given token lifetime.
func NewPostgresStore(pool *pgxpool.Pool, ttl time.Duration) *PostgresStore {
	return &PostgresStore{pool: pool, ttl: ttl}
}

// Issue mints a token and stores its digest with a role snapshot.
func (s *PostgresStore) Issue(ctx context.Context, accountID uuid.UUID, role models.Role) (string, *models.Session, error) {
	token, err := newToken()
	if err != nil {
		return "", nil, err
	}
	sess := &models.Session{
		TokenHash: hashToken(token),
		AccountID: accountID,
		Role:      role,
	}
	const q = `INSERT INTO sessions (token_hash, account_id, role, expires_at)
		VALUES ($1, $2, $3, NOW() + $4)
		RETURNING id, issued_at, expires_at`
	err = s.pool.QueryRow(ctx, q, sess.TokenHash, accountID, string(role), s.ttl).
		Scan(&sess.ID, &sess.IssuedAt, &sess.ExpiresAt)
	if err != nil {
		return "", nil, fmt.Errorf("insert session: %w", err)
	}
	return token, sess, nil
}

// Validate resolves the token digest and enforces expiry and revocation.
func (s *PostgresStore) Validate(ctx context.Context, token string) (*models.Session, error) {
	const q = `SELECT id, token_hash, account_id, role, issued_at, expires_at, revoked
		FROM sessions WHERE token_hash = $1`
	var sess models.Session
	err := s.pool.QueryRow(ctx, q, hashToken(token)).
		Scan(&sess.ID, &sess.TokenHash, &sess.AccountID, &sess.Role, &sess.IssuedAt, &sess.ExpiresAt, &sess.Revoked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.Revoked || sess.Expired(time.Now()) {
		return nil, ErrInvalidSession
	}
	return &sess, nil
}

// Revoke flags the session revoked; repeating it changes nothing.
func (s *PostgresStore) Revoke(ctx context.Context, token string) error {
	const q = `UPDATE sessions SET revoked = TRUE WHERE token_hash = $1`
	_, err := s.pool.Exec(ctx, q, hashToken(token))
	return err
}

// DeleteExpired prunes sessions past their expiry.
func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
