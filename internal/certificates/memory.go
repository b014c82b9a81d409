package certificates

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/secure-events/backend/internal/models"
)

// MemoryRepository is an in-memory certificate store for tests. The single
// mutex gives the same exactly-one-winner guarantee as the database's
// unique index.
type MemoryRepository struct {
	mu     sync.RWMutex
	byCert map[string]*models.Certificate
	byReg  map[uuid.UUID]string
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory certificate store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byCert: make(map[string]*models.Certificate),
		byReg:  make(map[uuid.UUID]string),
	}
}

func (r *MemoryRepository) CreateIfAbsent(ctx context.Context, cert *models.Certificate) (*models.Certificate, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existingID, ok := r.byReg[cert.RegistrationID]; ok {
		cp := *r.byCert[existingID]
		return &cp, false, nil
	}
	cp := *cert
	r.byCert[cert.CertificateID] = &cp
	r.byReg[cert.RegistrationID] = cert.CertificateID
	out := cp
	return &out, true, nil
}

func (r *MemoryRepository) GetByCertificateID(ctx context.Context, certificateID string) (*models.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cert, ok := r.byCert[certificateID]
	if !ok {
		return nil, ErrCertificateNotFound
	}
	cp := *cert
	return &cp, nil
}

func (r *MemoryRepository) GetByRegistrationID(ctx context.Context, registrationID uuid.UUID) (*models.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byReg[registrationID]
	if !ok {
		return nil, ErrCertificateNotFound
	}
	cp := *r.byCert[id]
	return &cp, nil
}

func (r *MemoryRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []models.Certificate
	for _, cert := range r.byCert {
		if cert.AccountID == accountID {
			list = append(list, *cert)
		}
	}
	return list, nil
}

func (r *MemoryRepository) SetQRObjectKey(ctx context.Context, certificateID, objectKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cert, ok := r.byCert[certificateID]; ok {
		cert.QRObjectKey = objectKey
	}
	return nil
}

// Corrupt overwrites stored payload or signature bytes in place. Test hook
// for exercising the corruption-detection path.
func (r *MemoryRepository) Corrupt(certificateID string, mutate func(c *models.Certificate)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cert, ok := r.byCert[certificateID]; ok {
		mutate(cert)
	}
}
