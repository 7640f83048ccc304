package domain

import "time"

// User represents an authenticated user. Users sign in with GitHub.
type User struct {
	ID          string    `json:"id" db:"id"`
	GitHubID    int64     `json:"github_id" db:"github_id"`
	Login       string    `json:"login" db:"login"`
	Email       string    `json:"email" db:"email"`
	DisplayName string    `json:"display_name" db:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty" db:"avatar_url"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// GitHubConnection holds the credentials used to publish issues on a user's behalf.
type GitHubConnection struct {
	UserID       string  `json:"user_id"`
	AccessToken  string  `json:"-"`
	RefreshToken string  `json:"-"`
	SelectedRepo *string `json:"selected_repo,omitempty"`
}

// UsageStats accumulates estimated completion API usage for a user.
type UsageStats struct {
	TotalTokens int64      `json:"total_tokens" db:"total_tokens"`
	TotalCost   float64    `json:"total_cost" db:"total_cost"`
	LastUsed    *time.Time `json:"last_used,omitempty" db:"last_used"`
}

// ProfileOverview summarizes what a user has configured for publishing.
type ProfileOverview struct {
	HasOpenAIKey    bool    `json:"has_openai_key"`
	GitHubConnected bool    `json:"github_connected"`
	SelectedRepo    *string `json:"selected_repo,omitempty"`
}
