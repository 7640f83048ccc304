package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/sumire/issuedraft/internal/domain"
	"github.com/sumire/issuedraft/internal/secret"
)

// newTestDB opens a fresh, migrated in-memory SQLite database for one test.
func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Open(context.Background(), DriverSQLite, ":memory:")
	require.NoError(t, err, "open in-memory sqlite")
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestCipher(t *testing.T) Cipher {
	t.Helper()
	box, err := secret.NewBox("test-encryption-key")
	require.NoError(t, err)
	return box
}

// newTestJob builds a pending create-and-publish-issue job created at createdAt.
func newTestJob(t *testing.T, userID string, createdAt time.Time) *domain.Job {
	t.Helper()
	payload, err := json.Marshal(domain.CreateAndPublishIssuePayload{
		Prompt:     "add dark mode",
		Repository: "o/r",
	})
	require.NoError(t, err)
	return &domain.Job{
		ID:         uuid.NewString(),
		UserID:     userID,
		Type:       domain.JobTypeCreateAndPublishIssue,
		Status:     domain.JobStatusPending,
		Payload:    payload,
		MaxRetries: domain.DefaultMaxRetries,
		CreatedAt:  createdAt,
	}
}
