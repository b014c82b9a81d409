package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/secure-events/backend/internal/models"
)

// In-memory store implementations. Used by tests and single-node setups
// without Redis/Postgres; they honor the same contracts as the backed
// variants, including atomicity of failure counting and counter consumption.

// MemoryAccountRepository is an in-memory identity store.
type MemoryAccountRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*models.Account
	byName  map[string]uuid.UUID
	byEmail map[string]uuid.UUID
}

var _ AccountRepository = (*MemoryAccountRepository)(nil)

// NewMemoryAccountRepository creates an empty in-memory identity store.
func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{
		byID:    make(map[uuid.UUID]*models.Account),
		byName:  make(map[string]uuid.UUID),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (r *MemoryAccountRepository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[a.Username]; ok {
		return nil, ErrDuplicateIdentity
	}
	if _, ok := r.byEmail[a.Email]; ok {
		return nil, ErrDuplicateIdentity
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now().UTC()
	cp := *a
	r.byID[a.ID] = &cp
	r.byName[a.Username] = a.ID
	r.byEmail[a.Email] = a.ID
	return a, nil
}

func (r *MemoryAccountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[username]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *MemoryAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryAccountRepository) List(ctx context.Context) ([]models.AccountPublic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]models.AccountPublic, 0, len(r.byID))
	for _, a := range r.byID {
		list = append(list, a.ToPublic())
	}
	return list, nil
}

// MemoryPendingStore keeps pending logins in a map with explicit expiry checks.
type MemoryPendingStore struct {
	mu      sync.Mutex
	entries map[string]models.PendingAuth
	nonce   atomic.Int64
}

var _ PendingStore = (*MemoryPendingStore)(nil)

// NewMemoryPendingStore creates an empty in-memory pending store.
func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{entries: make(map[string]models.PendingAuth)}
}

func (s *MemoryPendingStore) Put(ctx context.Context, p *models.PendingAuth, ttl time.Duration) error {
	p.Nonce = s.nonce.Add(1)
	p.ExpiresAt = time.Now().Add(ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[p.Handle] = *p
	return nil
}

func (s *MemoryPendingStore) Get(ctx context.Context, handle string) (*models.PendingAuth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.entries[handle]
	if !ok {
		return nil, ErrPendingExpired
	}
	if time.Now().After(p.ExpiresAt) {
		delete(s.entries, handle)
		return nil, ErrPendingExpired
	}
	cp := p
	return &cp, nil
}

func (s *MemoryPendingStore) Delete(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, handle)
	return nil
}

// MemoryLockoutStore implements LockoutStore and ReplayStore behind one mutex.
type MemoryLockoutStore struct {
	mu          sync.Mutex
	policy      LockoutPolicy
	failures    map[uuid.UUID]int
	windowEnds  map[uuid.UUID]time.Time
	lockedUntil map[uuid.UUID]time.Time
	lastCounter map[uuid.UUID]int64
}

var (
	_ LockoutStore = (*MemoryLockoutStore)(nil)
	_ ReplayStore  = (*MemoryLockoutStore)(nil)
)

// NewMemoryLockoutStore creates an in-memory lockout/replay store.
func NewMemoryLockoutStore(policy LockoutPolicy) *MemoryLockoutStore {
	return &MemoryLockoutStore{
		policy:      policy,
		failures:    make(map[uuid.UUID]int),
		windowEnds:  make(map[uuid.UUID]time.Time),
		lockedUntil: make(map[uuid.UUID]time.Time),
		lastCounter: make(map[uuid.UUID]int64),
	}
}

func (s *MemoryLockoutStore) Locked(ctx context.Context, accountID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.lockedUntil[accountID]
	if !ok {
		return false, nil
	}
	if time.Now().After(until) {
		delete(s.lockedUntil, accountID)
		return false, nil
	}
	return true, nil
}

func (s *MemoryLockoutStore) RecordFailure(ctx context.Context, accountID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if end, ok := s.windowEnds[accountID]; !ok || now.After(end) {
		s.failures[accountID] = 0
		s.windowEnds[accountID] = now.Add(s.policy.Window)
	}
	s.failures[accountID]++
	if s.failures[accountID] < s.policy.MaxFailures {
		return false, nil
	}
	s.lockedUntil[accountID] = now.Add(s.policy.Cooldown)
	delete(s.failures, accountID)
	delete(s.windowEnds, accountID)
	return true, nil
}

func (s *MemoryLockoutStore) Reset(ctx context.Context, accountID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, accountID)
	delete(s.windowEnds, accountID)
	return nil
}

func (s *MemoryLockoutStore) ConsumeCounter(ctx context.Context, accountID uuid.UUID, counter int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastCounter[accountID]; ok && counter <= last {
		return false, nil
	}
	s.lastCounter[accountID] = counter
	return true, nil
}
