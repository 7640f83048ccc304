package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sumire/issuedraft/internal/domain"
)

const userColumns = `id, github_id, login, email, display_name, avatar_url, created_at, updated_at`

// UserRepository handles user data access operations.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID retrieves a user by their ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user, r.db.Rebind(
		`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find user by id %s: %w", id, err)
	}
	return &user, nil
}

// FindByGitHubID retrieves a user by their GitHub account ID.
func (r *UserRepository) FindByGitHubID(ctx context.Context, githubID int64) (*domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user, r.db.Rebind(
		`SELECT `+userColumns+` FROM users WHERE github_id = ?`), githubID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find user by github id %d: %w", githubID, err)
	}
	return &user, nil
}

// Upsert creates a new user or refreshes the profile of an existing one, keyed by github_id.
// Returns the stored user.
func (r *UserRepository) Upsert(ctx context.Context, user domain.User) (*domain.User, error) {
	ts := now()
	var result domain.User
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(
		`INSERT INTO users (id, github_id, login, email, display_name, avatar_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (github_id)
		 DO UPDATE SET login = EXCLUDED.login,
		               email = EXCLUDED.email,
		               display_name = EXCLUDED.display_name,
		               avatar_url = EXCLUDED.avatar_url,
		               updated_at = EXCLUDED.updated_at
		 RETURNING `+userColumns),
		uuid.NewString(), user.GitHubID, user.Login, user.Email, user.DisplayName, user.AvatarURL, ts, ts,
	).StructScan(&result)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return &result, nil
}
