package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/secure-events/backend/internal/models"
)

// MemoryStore is an in-memory session store for tests and single-node use.
type MemoryStore struct {
	mu   sync.RWMutex
	ttl  time.Duration
	byID map[string]*models.Session // keyed by token digest

	now func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:  ttl,
		byID: make(map[string]*models.Session),
		now:  time.Now,
	}
}

func (s *MemoryStore) Issue(ctx context.Context, accountID uuid.UUID, role models.Role) (string, *models.Session, error) {
	token, err := newToken()
	if err != nil {
		return "", nil, err
	}
	now := s.now()
	sess := &models.Session{
		ID:        uuid.New(),
		TokenHash: hashToken(token),
		AccountID: accountID,
		Role:      role,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.mu.Lock()
	s.byID[sess.TokenHash] = sess
	s.mu.Unlock()
	cp := *sess
	return token, &cp, nil
}

func (s *MemoryStore) Validate(ctx context.Context, token string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.byID[hashToken(token)]
	if !ok || sess.Revoked || sess.Expired(s.now()) {
		return nil, ErrInvalidSession
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) Revoke(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.byID[hashToken(token)]; ok {
		sess.Revoked = true
	}
	return nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var n int64
	for k, sess := range s.byID {
		if sess.Expired(now) {
			delete(s.byID, k)
			n++
		}
	}
	return n, nil
}
