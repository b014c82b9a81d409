package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is an issued opaque bearer session. The token itself is never
// stored; only its SHA-256 digest. Role is snapshotted at issuance.
type Session struct {
	ID        uuid.UUID `json:"id"`
	TokenHash string    `json:"-"`
	AccountID uuid.UUID `json:"account_id"`
	Role      Role      `json:"role"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
}

// Expired reports whether the session has passed its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// PendingAuth is the ephemeral "password verified, second factor outstanding"
// handle between login step 1 and step 2. It lives only in the pending store
// and is destroyed on successful TOTP verification or expiry.
type PendingAuth struct {
	Handle    string    `json:"-"`
	AccountID uuid.UUID `json:"account_id"`
	Username  string    `json:"username"`
	Nonce     int64     `json:"nonce"`
	ExpiresAt time.Time `json:"expires_at"`
}
