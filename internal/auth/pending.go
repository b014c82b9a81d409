package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/secure-events/backend/internal/models"
)

// PendingStore holds password-verified login attempts awaiting their second
// factor. Entries expire on their own; Delete destroys a handle after
// successful TOTP verification.
type PendingStore interface {
	// Put stores the pending attempt under its handle with the given TTL and
	// assigns it a monotonic nonce.
	Put(ctx context.Context, p *models.PendingAuth, ttl time.Duration) error
	// Get returns the pending attempt, or ErrPendingExpired when the handle
	// is unknown or past its TTL.
	Get(ctx context.Context, handle string) (*models.PendingAuth, error)
	Delete(ctx context.Context, handle string) error
}

const (
	pendingKeyPrefix = "auth:pending:"
	pendingNonceKey  = "auth:pending:nonce"
)

// NewPendingHandle returns an opaque random handle for a pending login.
func NewPendingHandle() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate pending handle: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// RedisPendingStore keeps pending logins in Redis with native TTL expiry.
type RedisPendingStore struct {
	client *redis.Client
}

var _ PendingStore = (*RedisPendingStore)(nil)

// NewRedisPendingStore creates a Redis-backed pending store.
func NewRedisPendingStore(client *redis.Client) *RedisPendingStore {
	return &RedisPendingStore{client: client}
}

// Put stores the pending attempt as JSON under auth:pending:<handle>.
func (s *RedisPendingStore) Put(ctx context.Context, p *models.PendingAuth, ttl time.Duration) error {
	nonce, err := s.client.Incr(ctx, pendingNonceKey).Result()
	if err != nil {
		return fmt.Errorf("pending nonce: %w", err)
	}
	p.Nonce = nonce
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending auth: %w", err)
	}
	if err := s.client.Set(ctx, pendingKeyPrefix+p.Handle, raw, ttl).Err(); err != nil {
		return fmt.Errorf("store pending auth: %w", err)
	}
	return nil
}

// Get loads a pending attempt. Redis TTL handles expiry, so a miss means
// the handle was never issued or has already lapsed.
func (s *RedisPendingStore) Get(ctx context.Context, handle string) (*models.PendingAuth, error) {
	raw, err := s.client.Get(ctx, pendingKeyPrefix+handle).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrPendingExpired
	}
	if err != nil {
		return nil, fmt.Errorf("load pending auth: %w", err)
	}
	var p models.PendingAuth
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("unmarshal pending auth: %w", err)
	}
	p.Handle = handle
	return &p, nil
}

// Delete removes the handle. Deleting an absent handle is not an error.
func (s *RedisPendingStore) Delete(ctx context.Context, handle string) error {
	return s.client.Del(ctx, pendingKeyPrefix+handle).Err()
}
