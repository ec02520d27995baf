package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/stocktester/internal/database"
	"github.com/yourusername/stocktester/internal/models"
)

const userColumns = `id, username, email, password_hash, created_at, updated_at`

// PostgresUserRepository implements UserRepository for PostgreSQL
type PostgresUserRepository struct {
	db *database.DB
}

// NewPostgresUserRepository creates a new user repository
func NewPostgresUserRepository(db *database.DB) UserRepository {
	return &PostgresUserRepository{db: db}
}

// Create inserts a new user. CreatedAt and UpdatedAt are filled from the database.
func (r *PostgresUserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	query := `
		INSERT INTO users (id, username, email, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	err := r.db.GetPool().QueryRow(ctx, query,
		user.ID, user.Username, user.Email, user.PasswordHash,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return translateError("create user", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *PostgresUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByUsername retrieves a user by username
func (r *PostgresUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

// GetByEmail retrieves a user by email
func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

func (r *PostgresUserRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	user := &models.User{}
	err := r.db.GetPool().QueryRow(ctx, query, arg).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
