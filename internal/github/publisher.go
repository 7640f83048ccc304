package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gh "github.com/google/go-github/v66/github"

	"github.com/sumire/issuedraft/internal/domain"
)

// Publisher opens issues on GitHub, retrying transient failures internally.
type Publisher struct {
	baseURL string
	retry   RetryConfig
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithBaseURL points the publisher at a GitHub Enterprise or test API root.
func WithBaseURL(baseURL string) Option {
	return func(p *Publisher) { p.baseURL = baseURL }
}

// WithRetryConfig overrides DefaultRetryConfig.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(p *Publisher) { p.retry = cfg }
}

// NewPublisher creates a Publisher.
func NewPublisher(opts ...Option) *Publisher {
	p := &Publisher{retry: DefaultRetryConfig()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PublishWithRetry creates the issue described by req. It reports failure in
// the result instead of returning an error.
func (p *Publisher) PublishWithRetry(ctx context.Context, req domain.PublishRequest) domain.PublishResult {
	owner, name, err := ParseRepository(req.Repository)
	if err != nil {
		return domain.PublishResult{Error: err.Error()}
	}

	client, err := NewClient(ctx, req.AccessToken, p.baseURL)
	if err != nil {
		return domain.PublishResult{Error: err.Error()}
	}

	issueReq := &gh.IssueRequest{
		Title: gh.String(req.Title),
		Body:  gh.String(req.Body),
	}
	if len(req.Labels) > 0 {
		issueReq.Labels = &req.Labels
	}

	attempt := 0
	var issue *gh.Issue
	err = retryWithBackoff(ctx, p.retry, func() error {
		attempt++
		created, _, err := client.Issues.Create(ctx, owner, name, issueReq)
		if err != nil {
			slog.Warn("github issue create failed",
				"repository", req.Repository, "attempt", attempt, "error", err)
			return err
		}
		issue = created
		return nil
	})
	if err != nil {
		return domain.PublishResult{Error: describeError(err)}
	}

	slog.Info("github issue created",
		"repository", req.Repository, "number", issue.GetNumber(), "attempts", attempt)
	return domain.PublishResult{
		Success:     true,
		IssueURL:    issue.GetHTMLURL(),
		IssueNumber: issue.GetNumber(),
	}
}

func describeError(err error) string {
	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		msg := respErr.Message
		if msg == "" {
			msg = respErr.Response.Status
		}
		return fmt.Sprintf("GitHub API error (%d): %s", respErr.Response.StatusCode, msg)
	}
	return fmt.Sprintf("GitHub request failed: %v", err)
}
