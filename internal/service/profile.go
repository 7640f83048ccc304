package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sumire/issuedraft/internal/domain"
	"github.com/sumire/issuedraft/internal/github"
)

// ProfileStore is the profile data access consumed by ProfileService.
type ProfileStore interface {
	GetOpenAIKey(ctx context.Context, userID string) (string, error)
	SetOpenAIKey(ctx context.Context, userID, apiKey string) error
	GetUsageStats(ctx context.Context, userID string) (domain.UsageStats, error)
}

// RepoSelector reads the GitHub connection and stores its default repository.
type RepoSelector interface {
	Get(ctx context.Context, userID string) (*domain.GitHubConnection, error)
	SetSelectedRepo(ctx context.Context, userID, repo string) error
}

// ProfileService manages the completion API key, usage and default repository of a user.
type ProfileService struct {
	profiles    ProfileStore
	connections RepoSelector
}

// NewProfileService creates a new ProfileService.
func NewProfileService(profiles ProfileStore, connections RepoSelector) *ProfileService {
	return &ProfileService{profiles: profiles, connections: connections}
}

// SaveOpenAIKey stores apiKey for userID. An empty key removes the stored one.
func (s *ProfileService) SaveOpenAIKey(ctx context.Context, userID, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey != "" && !strings.HasPrefix(apiKey, "sk-") {
		return &domain.ValidationError{Field: "api_key", Message: "must start with sk-"}
	}
	return s.profiles.SetOpenAIKey(ctx, userID, apiKey)
}

// HasOpenAIKey reports whether userID stored a key.
func (s *ProfileService) HasOpenAIKey(ctx context.Context, userID string) (bool, error) {
	key, err := s.profiles.GetOpenAIKey(ctx, userID)
	if err != nil {
		return false, err
	}
	return key != "", nil
}

// OpenAIKey returns the stored key of userID, or "".
func (s *ProfileService) OpenAIKey(ctx context.Context, userID string) (string, error) {
	return s.profiles.GetOpenAIKey(ctx, userID)
}

// Usage returns the running usage totals of userID.
func (s *ProfileService) Usage(ctx context.Context, userID string) (domain.UsageStats, error) {
	return s.profiles.GetUsageStats(ctx, userID)
}

// Overview reports which publishing prerequisites userID has configured.
func (s *ProfileService) Overview(ctx context.Context, userID string) (domain.ProfileOverview, error) {
	hasKey, err := s.HasOpenAIKey(ctx, userID)
	if err != nil {
		return domain.ProfileOverview{}, err
	}

	conn, err := s.connections.Get(ctx, userID)
	if err != nil {
		return domain.ProfileOverview{}, err
	}

	overview := domain.ProfileOverview{HasOpenAIKey: hasKey}
	if conn != nil {
		overview.GitHubConnected = conn.AccessToken != ""
		overview.SelectedRepo = conn.SelectedRepo
	}
	return overview, nil
}

// SelectRepository stores repo ("owner/name") as the default target of userID.
func (s *ProfileService) SelectRepository(ctx context.Context, userID, repo string) error {
	owner, name, err := github.ParseRepository(repo)
	if err != nil {
		return &domain.ValidationError{Field: "repository", Message: "must be owner/name"}
	}

	if err := s.connections.SetSelectedRepo(ctx, userID, owner+"/"+name); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrGitHubNotConnected
		}
		return err
	}
	return nil
}
