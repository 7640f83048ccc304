package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/issuedraft/internal/domain"
)

// ProfileRepository stores per-user completion API credentials and usage.
type ProfileRepository struct {
	db     *sqlx.DB
	cipher Cipher
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(db *sqlx.DB, cipher Cipher) *ProfileRepository {
	return &ProfileRepository{db: db, cipher: cipher}
}

// GetOpenAIKey returns the decrypted API key of userID, or "" when none is stored.
func (r *ProfileRepository) GetOpenAIKey(ctx context.Context, userID string) (string, error) {
	var encrypted sql.NullString
	err := r.db.GetContext(ctx, &encrypted, r.db.Rebind(
		`SELECT encrypted_openai_key FROM profiles WHERE user_id = ?`), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("find openai key of user %s: %w", userID, err)
	}
	if !encrypted.Valid || encrypted.String == "" {
		return "", nil
	}

	key, err := r.cipher.Decrypt(encrypted.String)
	if err != nil {
		return "", fmt.Errorf("decrypt openai key of user %s: %w", userID, err)
	}
	return key, nil
}

// SetOpenAIKey encrypts and stores apiKey. An empty apiKey clears the stored key.
func (r *ProfileRepository) SetOpenAIKey(ctx context.Context, userID, apiKey string) error {
	var encrypted sql.NullString
	if apiKey != "" {
		sealed, err := r.cipher.Encrypt(apiKey)
		if err != nil {
			return fmt.Errorf("encrypt openai key: %w", err)
		}
		encrypted = sql.NullString{String: sealed, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO profiles (user_id, encrypted_openai_key, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (user_id)
		 DO UPDATE SET encrypted_openai_key = EXCLUDED.encrypted_openai_key,
		               updated_at = EXCLUDED.updated_at`),
		userID, encrypted, now())
	if err != nil {
		return fmt.Errorf("store openai key of user %s: %w", userID, err)
	}
	return nil
}

// UpdateUsageStats adds tokens and cost to the running totals of userID.
func (r *ProfileRepository) UpdateUsageStats(ctx context.Context, userID string, tokens int, cost float64) error {
	ts := now()
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO profiles (user_id, total_tokens, total_cost, last_used, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id)
		 DO UPDATE SET total_tokens = profiles.total_tokens + EXCLUDED.total_tokens,
		               total_cost = profiles.total_cost + EXCLUDED.total_cost,
		               last_used = EXCLUDED.last_used,
		               updated_at = EXCLUDED.updated_at`),
		userID, tokens, cost, ts, ts)
	if err != nil {
		return fmt.Errorf("update usage of user %s: %w", userID, err)
	}
	return nil
}

// GetUsageStats returns the running totals of userID; zero when nothing was recorded.
func (r *ProfileRepository) GetUsageStats(ctx context.Context, userID string) (domain.UsageStats, error) {
	var stats domain.UsageStats
	err := r.db.GetContext(ctx, &stats, r.db.Rebind(
		`SELECT total_tokens, total_cost, last_used FROM profiles WHERE user_id = ?`), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.UsageStats{}, nil
		}
		return domain.UsageStats{}, fmt.Errorf("find usage of user %s: %w", userID, err)
	}
	return stats, nil
}
