package registrations

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/secure-events/backend/internal/models"
)

// ErrNotFound is returned when no registration matches the lookup.
var ErrNotFound = errors.New("registration not found")

// Repository reads registrations and flips their attendance flag. Creation
// and the rest of registration bookkeeping belong to the surrounding CRUD
// layer; Create exists for fixtures and seeding.
type Repository interface {
	Create(ctx context.Context, reg *models.Registration) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	MarkAttendance(ctx context.Context, id uuid.UUID) error
}

// PostgresRepository is the PostgreSQL-backed registration store.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a registrations repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create inserts a registration.
func (r *PostgresRepository) Create(ctx context.Context, reg *models.Registration) error {
	const q = `INSERT INTO registrations (event_id, account_id, attendance_marked)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, reg.EventID, reg.AccountID, reg.AttendanceMarked).
		Scan(&reg.ID, &reg.CreatedAt)
}

// GetByID returns a registration by ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	const q = `SELECT id, event_id, account_id, attendance_marked, created_at
		FROM registrations WHERE id = $1`
	var reg models.Registration
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&reg.ID, &reg.EventID, &reg.AccountID, &reg.AttendanceMarked, &reg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load registration: %w", err)
	}
	return &reg, nil
}

// MarkAttendance sets attendance_marked for a registration. Marking an
// already-marked registration is a no-op; an unknown one is ErrNotFound.
func (r *PostgresRepository) MarkAttendance(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE registrations SET attendance_marked = TRUE WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
