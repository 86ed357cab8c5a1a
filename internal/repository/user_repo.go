package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"familygallery/internal/database"
	"familygallery/internal/models"
)

// UserRepository handles database operations for accounts
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUser inserts a new account
func (r *UserRepository) CreateUser(ctx context.Context, email, name string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	id, err := r.db.InsertReturningID(ctx, "INSERT INTO users (email, name) VALUES (?, ?)", email, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	now := time.Now()
	return &models.User{ID: id, Email: email, Name: name, CreatedAt: now, UpdatedAt: now}, nil
}

// GetUserByID retrieves an account, returning nil when it does not exist
func (r *UserRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getUser(ctx, "SELECT id, email, name, created_at, updated_at FROM users WHERE id = ?", id)
}

// GetUserByEmail retrieves an account by email address, returning nil when it does not exist
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getUser(ctx, "SELECT id, email, name, created_at, updated_at FROM users WHERE email = ?",
		strings.ToLower(strings.TrimSpace(email)))
}

func (r *UserRepository) getUser(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
