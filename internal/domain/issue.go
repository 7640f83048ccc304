package domain

// IssueSummary classifies a generated issue. Type doubles as the GitHub label.
type IssueSummary struct {
	Type       string `json:"type"`
	Priority   string `json:"priority"`
	Complexity string `json:"complexity"`
}

// GeneratedContent is the structured issue body produced by the completion API.
type GeneratedContent struct {
	Markdown string       `json:"markdown"`
	Summary  IssueSummary `json:"summary"`
}

// TitleSuggestion is the outcome of title generation.
type TitleSuggestion struct {
	Title        string   `json:"title"`
	IsGenerated  bool     `json:"is_generated"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// PublishRequest is everything needed to open an issue on GitHub.
type PublishRequest struct {
	Title       string
	Body        string
	Labels      []string
	AccessToken string
	Repository  string
}

// PublishResult reports the outcome of a publish attempt.
type PublishResult struct {
	Success     bool
	IssueURL    string
	IssueNumber int
	Error       string
}
