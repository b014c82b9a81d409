package registrations

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/secure-events/backend/internal/models"
)

// MemoryRepository is an in-memory registration store for tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]*models.Registration
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory registration store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[uuid.UUID]*models.Registration)}
}

func (r *MemoryRepository) Create(ctx context.Context, reg *models.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg.ID == uuid.Nil {
		reg.ID = uuid.New()
	}
	reg.CreatedAt = time.Now().UTC()
	cp := *reg
	r.byID[reg.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *reg
	return &cp, nil
}

func (r *MemoryRepository) MarkAttendance(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	reg.AttendanceMarked = true
	return nil
}
