// Package sessions issues and validates opaque bearer session tokens.
// Tokens carry no claims: all state lives server-side, so revocation is
// visible to the very next validation.
package sessions

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/secure-events/backend/internal/models"
)

// ErrInvalidSession covers unknown, expired and revoked tokens alike.
var ErrInvalidSession = errors.New("invalid or expired session")

// Store issues, validates and revokes sessions.
type Store interface {
	// Issue mints a fresh random token (256 bits) bound to the account with
	// a role snapshot, and returns the plain token alongside the record.
	Issue(ctx context.Context, accountID uuid.UUID, role models.Role) (string, *models.Session, error)
	// Validate resolves a bearer token, rejecting unknown, expired and
	// revoked sessions with ErrInvalidSession.
	Validate(ctx context.Context, token string) (*models.Session, error)
	// Revoke marks the session revoked. Idempotent; revoking an unknown
	// token is a no-op.
	Revoke(ctx context.Context, token string) error
	// DeleteExpired removes sessions past their expiry, returning the count.
	DeleteExpired(ctx context.Context) (int64, error)
}

// newToken generates a 32-byte random bearer token, base64url-encoded.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// hashToken digests a bearer token for storage and lookup. Only digests are
// persisted, and lookups key on the digest, so raw tokens never touch the
// store and equality checks never walk attacker-controlled bytes.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
