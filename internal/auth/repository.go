package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/secure-events/backend/internal/models"
)

// AccountRepository is the identity store. It owns account rows exclusively;
// TOTP secrets never change after creation.
type AccountRepository interface {
	Create(ctx context.Context, a *models.Account) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	List(ctx context.Context) ([]models.AccountPublic, error)
}

// Repository is the PostgreSQL-backed identity store.
type Repository struct {
	pool *pgxpool.Pool
}

var _ AccountRepository = (*Repository)(nil)

// NewRepository creates an account repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new account. Returns ErrDuplicateIdentity when the
// username or email is already registered.
func (r *Repository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	const q = `INSERT INTO accounts (username, email, password_hash, role, totp_secret)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, q, a.Username, a.Email, a.PasswordHash, string(a.Role), a.TOTPSecret).
		Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateIdentity
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return a, nil
}

// GetByUsername returns an account by username.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	const q = `SELECT id, username, email, password_hash, role, totp_secret, created_at
		FROM accounts WHERE username = $1`
	return r.scanOne(r.pool.QueryRow(ctx, q, username))
}

// GetByID returns an account by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	const q = `SELECT id, username, email, password_hash, role, totp_secret, created_at
		FROM accounts WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, q, id))
}

// List returns all accounts without credentials, for admin auditing.
func (r *Repository) List(ctx context.Context) ([]models.AccountPublic, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, username, email, role, created_at
		FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.AccountPublic
	for rows.Next() {
		var a models.AccountPublic
		if err := rows.Scan(&a.ID, &a.Username, &a.Email, &a.Role, &a.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func (r *Repository) scanOne(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Role, &a.TOTPSecret, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
