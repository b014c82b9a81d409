package certificates

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/secure-events/backend/internal/models"
)

// Repository is the append-only certificate store. Records are created once
// per registration and never updated or deleted; the only mutable column is
// the QR artifact reference, which is presentation metadata.
type Repository interface {
	// CreateIfAbsent inserts the certificate unless one already exists for
	// its registration. It returns the stored record and whether this call
	// created it. Exactly one of any set of concurrent calls creates.
	CreateIfAbsent(ctx context.Context, cert *models.Certificate) (*models.Certificate, bool, error)
	GetByCertificateID(ctx context.Context, certificateID string) (*models.Certificate, error)
	GetByRegistrationID(ctx context.Context, registrationID uuid.UUID) (*models.Certificate, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Certificate, error)
	// SetQRObjectKey records where the rendered QR image landed.
	SetQRObjectKey(ctx context.Context, certificateID, objectKey string) error
}

const certColumns = `certificate_id, registration_id, account_id, event_id, issued_at, payload, signature, qr_payload, COALESCE(qr_object_key, '')`

// PostgresRepository is the PostgreSQL-backed certificate store.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a certificate repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// CreateIfAbsent relies on the unique index on registration_id: the insert
// is a no-op on conflict and the winner's row is read back.
func (r *PostgresRepository) CreateIfAbsent(ctx context.Context, cert *models.Certificate) (*models.Certificate, bool, error) {
	const q = `INSERT INTO certificates
		(certificate_id, registration_id, account_id, event_id, issued_at, payload, signature, qr_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (registration_id) DO NOTHING
		RETURNING certificate_id`
	var inserted string
	err := r.pool.QueryRow(ctx, q,
		cert.CertificateID, cert.RegistrationID, cert.AccountID, cert.EventID,
		cert.IssuedAt, cert.Payload, cert.Signature, cert.QRPayload,
	).Scan(&inserted)
	if err == nil {
		return cert, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("insert certificate: %w", err)
	}
	existing, err := r.GetByRegistrationID(ctx, cert.RegistrationID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetByCertificateID returns a certificate by its derived identifier.
func (r *PostgresRepository) GetByCertificateID(ctx context.Context, certificateID string) (*models.Certificate, error) {
	q := `SELECT ` + certColumns + ` FROM certificates WHERE certificate_id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, q, certificateID))
}

// GetByRegistrationID returns the certificate for a registration.
func (r *PostgresRepository) GetByRegistrationID(ctx context.Context, registrationID uuid.UUID) (*models.Certificate, error) {
	q := `SELECT ` + certColumns + ` FROM certificates WHERE registration_id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, q, registrationID))
}

// ListByAccount returns all certificates issued to an account.
func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Certificate, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+certColumns+` FROM certificates WHERE account_id = $1 ORDER BY issued_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Certificate
	for rows.Next() {
		var c models.Certificate
		if err := rows.Scan(&c.CertificateID, &c.RegistrationID, &c.AccountID, &c.EventID,
			&c.IssuedAt, &c.Payload, &c.Signature, &c.QRPayload, &c.QRObjectKey); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// SetQRObjectKey records the uploaded QR image location.
func (r *PostgresRepository) SetQRObjectKey(ctx context.Context, certificateID, objectKey string) error {
	const q = `UPDATE certificates SET qr_object_key = $2 WHERE certificate_id = $1`
	_, err := r.pool.Exec(ctx, q, certificateID, objectKey)
	return err
}

func (r *PostgresRepository) scanOne(row pgx.Row) (*models.Certificate, error) {
	var c models.Certificate
	err := row.Scan(&c.CertificateID, &c.RegistrationID, &c.AccountID, &c.EventID,
		&c.IssuedAt, &c.Payload, &c.Signature, &c.QRPayload, &c.QRObjectKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCertificateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}
	return &c, nil
}
