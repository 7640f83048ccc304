package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/issuedraft/internal/domain"
)

func TestGitHubConnectionRepository_GetMissing(t *testing.T) {
	repo := NewGitHubConnectionRepository(newTestDB(t), newTestCipher(t))

	conn, err := repo.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, conn)
}

func TestGitHubConnectionRepository_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewGitHubConnectionRepository(newTestDB(t), newTestCipher(t))

	require.NoError(t, repo.Upsert(ctx, domain.GitHubConnection{
		UserID:       "u1",
		AccessToken:  "gho_access",
		RefreshToken: "ghr_refresh",
	}))
	require.NoError(t, repo.SetSelectedRepo(ctx, "u1", "o/r"))

	// Re-connecting rotates tokens but keeps the selected repository.
	require.NoError(t, repo.Upsert(ctx, domain.GitHubConnection{
		UserID:      "u1",
		AccessToken: "gho_rotated",
	}))

	conn, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, "gho_rotated", conn.AccessToken)
	assert.Empty(t, conn.RefreshToken)
	require.NotNil(t, conn.SelectedRepo)
	assert.Equal(t, "o/r", *conn.SelectedRepo)
}

func TestGitHubConnectionRepository_SetSelectedRepo_NotConnected(t *testing.T) {
	repo := NewGitHubConnectionRepository(newTestDB(t), newTestCipher(t))

	err := repo.SetSelectedRepo(context.Background(), "u1", "o/r")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
