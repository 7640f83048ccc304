package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/issuedraft/internal/domain"
)

// GitHubConnectionRepository stores the GitHub tokens of each user, encrypted.
type GitHubConnectionRepository struct {
	db     *sqlx.DB
	cipher Cipher
}

// NewGitHubConnectionRepository creates a new GitHubConnectionRepository.
func NewGitHubConnectionRepository(db *sqlx.DB, cipher Cipher) *GitHubConnectionRepository {
	return &GitHubConnectionRepository{db: db, cipher: cipher}
}

type connectionRow struct {
	UserID       string         `db:"user_id"`
	AccessToken  string         `db:"encrypted_access_token"`
	RefreshToken sql.NullString `db:"encrypted_refresh_token"`
	SelectedRepo sql.NullString `db:"selected_repo"`
}

// Get returns the connection of userID, or nil when the user never connected GitHub.
func (r *GitHubConnectionRepository) Get(ctx context.Context, userID string) (*domain.GitHubConnection, error) {
	var row connectionRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(
		`SELECT user_id, encrypted_access_token, encrypted_refresh_token, selected_repo
		 FROM github_connections WHERE user_id = ?`), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find github connection of user %s: %w", userID, err)
	}

	conn := &domain.GitHubConnection{UserID: row.UserID}
	if conn.AccessToken, err = r.cipher.Decrypt(row.AccessToken); err != nil {
		return nil, fmt.Errorf("decrypt github access token: %w", err)
	}
	if row.RefreshToken.Valid && row.RefreshToken.String != "" {
		if conn.RefreshToken, err = r.cipher.Decrypt(row.RefreshToken.String); err != nil {
			return nil, fmt.Errorf("decrypt github refresh token: %w", err)
		}
	}
	if row.SelectedRepo.Valid {
		repo := row.SelectedRepo.String
		conn.SelectedRepo = &repo
	}
	return conn, nil
}

// Upsert stores the tokens of conn. An existing selected repository is kept.
func (r *GitHubConnectionRepository) Upsert(ctx context.Context, conn domain.GitHubConnection) error {
	access, err := r.cipher.Encrypt(conn.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt github access token: %w", err)
	}

	var refresh sql.NullString
	if conn.RefreshToken != "" {
		sealed, err := r.cipher.Encrypt(conn.RefreshToken)
		if err != nil {
			return fmt.Errorf("encrypt github refresh token: %w", err)
		}
		refresh = sql.NullString{String: sealed, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO github_connections (user_id, encrypted_access_token, encrypted_refresh_token, selected_repo, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id)
		 DO UPDATE SET encrypted_access_token = EXCLUDED.encrypted_access_token,
		               encrypted_refresh_token = EXCLUDED.encrypted_refresh_token,
		               selected_repo = COALESCE(EXCLUDED.selected_repo, github_connections.selected_repo),
		               updated_at = EXCLUDED.updated_at`),
		conn.UserID, access, refresh, conn.SelectedRepo, now())
	if err != nil {
		return fmt.Errorf("upsert github connection of user %s: %w", conn.UserID, err)
	}
	return nil
}

// SetSelectedRepo records the repository the user publishes to by default.
func (r *GitHubConnectionRepository) SetSelectedRepo(ctx context.Context, userID, repo string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE github_connections SET selected_repo = ?, updated_at = ? WHERE user_id = ?`),
		repo, now(), userID)
	if err != nil {
		return fmt.Errorf("select repo for user %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("select repo for user %s: %w", userID, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
