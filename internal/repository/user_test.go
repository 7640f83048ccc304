package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/issuedraft/internal/domain"
)

func TestUserRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))

	created, err := repo.Upsert(ctx, domain.User{GitHubID: 42, Login: "octo", Email: "octo@example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "octo", created.Login)

	updated, err := repo.Upsert(ctx, domain.User{GitHubID: 42, Login: "octocat", Email: "octo@example.com"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID, "same github account keeps its user id")
	assert.Equal(t, "octocat", updated.Login)

	byGitHub, err := repo.FindByGitHubID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byGitHub.ID)

	byID, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "octocat", byID.Login)
}

func TestUserRepository_FindByID_NotFound(t *testing.T) {
	_, err := NewUserRepository(newTestDB(t)).FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
