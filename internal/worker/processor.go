// Package worker drives queued jobs to a terminal state.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sumire/issuedraft/internal/domain"
	"github.com/sumire/issuedraft/internal/service"
)

// DefaultCallTimeout bounds each external call made while processing a job.
const DefaultCallTimeout = 60 * time.Second

// bookkeepingTimeout bounds status writes after a job step has finished.
const bookkeepingTimeout = 10 * time.Second

// JobQueue is the job queue API the processor drives jobs through.
type JobQueue interface {
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	GetNextPendingJob(ctx context.Context) (*domain.Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status domain.JobStatus, result *domain.JobResult, errMsg string) error
	RetryJob(ctx context.Context, jobID string) error
}

// ProfileStore provides the user's completion API key and records usage.
type ProfileStore interface {
	GetOpenAIKey(ctx context.Context, userID string) (string, error)
	UpdateUsageStats(ctx context.Context, userID string, tokens int, cost float64) error
}

// ConnectionStore provides the user's GitHub credentials.
type ConnectionStore interface {
	Get(ctx context.Context, userID string) (*domain.GitHubConnection, error)
}

// ContentGenerator expands a prompt into issue content.
type ContentGenerator interface {
	Generate(ctx context.Context, apiKey, prompt string) (*service.GenerationResult, error)
}

// TitleGenerator produces an issue title from content.
type TitleGenerator interface {
	GenerateAutoTitle(ctx context.Context, content, currentTitle string) domain.TitleSuggestion
}

// IssuePublisher opens an issue on GitHub.
type IssuePublisher interface {
	PublishWithRetry(ctx context.Context, req domain.PublishRequest) domain.PublishResult
}

// Deps are the collaborators of a Processor.
type Deps struct {
	Queue       JobQueue
	Profiles    ProfileStore
	Connections ConnectionStore
	Content     ContentGenerator
	Titles      TitleGenerator
	Publisher   IssuePublisher
}

type handlerFunc func(ctx context.Context, job *domain.Job) error

// Processor executes pending jobs one at a time.
type Processor struct {
	queue       JobQueue
	profiles    ProfileStore
	connections ConnectionStore
	content     ContentGenerator
	titles      TitleGenerator
	publisher   IssuePublisher
	callTimeout time.Duration
	handlers    map[domain.JobType]handlerFunc
}

// NewProcessor creates a Processor. A non-positive callTimeout uses DefaultCallTimeout.
func NewProcessor(deps Deps, callTimeout time.Duration) *Processor {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	p := &Processor{
		queue:       deps.Queue,
		profiles:    deps.Profiles,
		connections: deps.Connections,
		content:     deps.Content,
		titles:      deps.Titles,
		publisher:   deps.Publisher,
		callTimeout: callTimeout,
	}
	p.handlers = map[domain.JobType]handlerFunc{
		domain.JobTypeCreateAndPublishIssue: p.handleCreateAndPublishIssue,
	}
	return p
}

// ProcessPendingJobs processes up to maxJobs jobs, stopping early once the
// queue is drained. It returns how many jobs were dispatched.
func (p *Processor) ProcessPendingJobs(ctx context.Context, maxJobs int) (int, error) {
	processed := 0
	for processed < maxJobs {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		ok, err := p.ProcessNextJob(ctx)
		if err != nil {
			return processed, err
		}
		if !ok {
			break
		}
		processed++
	}
	return processed, nil
}

// ProcessNextJob claims one pending job and runs it. It returns false when no
// job was pending, and true whenever a job was claimed, whatever its outcome.
func (p *Processor) ProcessNextJob(ctx context.Context) (bool, error) {
	job, err := p.queue.GetNextPendingJob(ctx)
	if err != nil {
		return false, fmt.Errorf("fetch next job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	start := time.Now()
	defer func() {
		jobDuration.WithLabelValues(string(job.Type)).Observe(time.Since(start).Seconds())
	}()

	handle, ok := p.handlers[job.Type]
	if !ok {
		slog.Warn("unknown job type", "job_id", job.ID, "job_type", job.Type)
		if err := p.fail(ctx, job, domain.MsgUnknownJobType); err != nil {
			slog.Error("failed to fail job", "job_id", job.ID, "error", err)
		}
		return true, nil
	}

	if err := handle(ctx, job); err != nil {
		slog.Error("job bookkeeping failed", "job_id", job.ID, "job_type", job.Type, "error", err)
	}
	return true, nil
}

func (p *Processor) handleCreateAndPublishIssue(ctx context.Context, job *domain.Job) error {
	payload, err := domain.DecodePayload(job.Type, job.Payload)
	if err != nil {
		return p.fail(ctx, job, fmt.Sprintf("invalid payload: %v", err))
	}
	return p.ProcessCreateAndPublishIssue(ctx, job.ID, job.UserID, payload.(domain.CreateAndPublishIssuePayload))
}

// ProcessCreateAndPublishIssue generates issue content when the payload lacks
// it, titles it, and publishes it to GitHub. Every outcome is written back to
// the queue: completed, pending again for a retry, or failed. The returned
// error only reports that such a write could not be made.
func (p *Processor) ProcessCreateAndPublishIssue(ctx context.Context, jobID, userID string, payload domain.CreateAndPublishIssuePayload) error {
	if err := p.markProcessing(ctx, jobID); err != nil {
		return err
	}

	result, err := p.createAndPublish(ctx, userID, payload)
	if err != nil {
		return p.handleFailure(ctx, jobID, err)
	}

	ctx, cancel := bookkeepingContext(ctx)
	defer cancel()

	if err := p.queue.UpdateJobStatus(ctx, jobID, domain.JobStatusCompleted, result, ""); err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}

	jobsProcessed.WithLabelValues(string(domain.JobTypeCreateAndPublishIssue), outcomeCompleted).Inc()
	slog.Info("job completed", "job_id", jobID, "user_id", userID, "issue_url", result.IssueURL)
	return nil
}

func (p *Processor) createAndPublish(ctx context.Context, userID string, payload domain.CreateAndPublishIssuePayload) (*domain.JobResult, error) {
	content, err := p.resolveContent(ctx, userID, payload)
	if err != nil {
		return nil, err
	}

	title := p.titles.GenerateAutoTitle(ctx, content.Markdown, payload.Title).Title

	conn, err := p.githubConnection(ctx, userID)
	if err != nil {
		return nil, err
	}

	var labels []string
	if label := strings.TrimSpace(content.Summary.Type); label != "" {
		labels = []string{label}
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	published := p.publisher.PublishWithRetry(callCtx, domain.PublishRequest{
		Title:       title,
		Body:        content.Markdown,
		Labels:      labels,
		AccessToken: conn.AccessToken,
		Repository:  payload.Repository,
	})
	if !published.Success {
		msg := published.Error
		if msg == "" {
			msg = "GitHub publish failed"
		}
		return nil, errors.New(msg)
	}

	return &domain.JobResult{
		IssueURL:    published.IssueURL,
		IssueNumber: published.IssueNumber,
		Repository:  payload.Repository,
		Title:       title,
	}, nil
}

// resolveContent returns the pre-generated content of payload, or generates it
// with the user's API key and records the estimated usage.
func (p *Processor) resolveContent(ctx context.Context, userID string, payload domain.CreateAndPublishIssuePayload) (*domain.GeneratedContent, error) {
	if payload.GeneratedContent != nil {
		return payload.GeneratedContent, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	apiKey, err := p.profiles.GetOpenAIKey(callCtx, userID)
	if err != nil {
		return nil, fmt.Errorf("load openai key: %w", err)
	}
	if apiKey == "" {
		return nil, domain.Unrecoverable(domain.ErrOpenAIKeyNotFound)
	}

	generated, err := p.content.Generate(callCtx, apiKey, payload.Prompt)
	if err != nil {
		return nil, err
	}

	// Usage is best effort: the completion already happened and must not be repeated.
	if err := p.profiles.UpdateUsageStats(ctx, userID, generated.Tokens, generated.Cost); err != nil {
		slog.Warn("failed to record usage", "user_id", userID, "tokens", generated.Tokens, "error", err)
	}

	return &generated.Content, nil
}

func (p *Processor) githubConnection(ctx context.Context, userID string) (*domain.GitHubConnection, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	conn, err := p.connections.Get(callCtx, userID)
	if err != nil {
		return nil, fmt.Errorf("load github connection: %w", err)
	}
	if conn == nil || conn.AccessToken == "" {
		return nil, domain.Unrecoverable(domain.ErrGitHubNotConnected)
	}
	return conn, nil
}

// handleFailure fails unrecoverable errors at once and retries the rest while
// the job's retry budget lasts.
func (p *Processor) handleFailure(ctx context.Context, jobID string, cause error) error {
	ctx, cancel := bookkeepingContext(ctx)
	defer cancel()

	msg := failureMessage(cause)

	if domain.IsUnrecoverable(cause) {
		slog.Warn("job failed without retry", "job_id", jobID, "error", msg)
		return p.failByID(ctx, jobID, msg)
	}

	job, err := p.queue.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("reload job %s: %w", jobID, err)
	}
	if job == nil {
		return fmt.Errorf("reload job %s: %w", jobID, domain.ErrNotFound)
	}

	if job.CanRetry() {
		err := p.queue.RetryJob(ctx, jobID)
		if err == nil {
			jobsProcessed.WithLabelValues(string(job.Type), outcomeRetried).Inc()
			slog.Warn("job failed, will retry",
				"job_id", jobID, "attempt", job.RetryCount+1, "max_retries", job.MaxRetries, "error", msg)
			return nil
		}
		if !errors.Is(err, domain.ErrRetriesExhausted) {
			return fmt.Errorf("retry job %s: %w", jobID, err)
		}
	}

	slog.Error("job failed", "job_id", jobID, "retries", job.RetryCount, "error", msg)
	return p.fail(ctx, job, msg)
}

// markProcessing records that jobID is running. A claimed job is already in
// processing, so the write must not be lost to a cancelled ctx either.
func (p *Processor) markProcessing(ctx context.Context, jobID string) error {
	ctx, cancel := bookkeepingContext(ctx)
	defer cancel()

	if err := p.queue.UpdateJobStatus(ctx, jobID, domain.JobStatusProcessing, nil, ""); err != nil {
		return fmt.Errorf("mark job %s processing: %w", jobID, err)
	}
	return nil
}

func (p *Processor) fail(ctx context.Context, job *domain.Job, msg string) error {
	ctx, cancel := bookkeepingContext(ctx)
	defer cancel()

	if err := p.queue.UpdateJobStatus(ctx, job.ID, domain.JobStatusFailed, nil, msg); err != nil {
		return fmt.Errorf("fail job %s: %w", job.ID, err)
	}
	jobsProcessed.WithLabelValues(string(job.Type), outcomeFailed).Inc()
	return nil
}

func (p *Processor) failByID(ctx context.Context, jobID, msg string) error {
	return p.fail(ctx, &domain.Job{ID: jobID, Type: domain.JobTypeCreateAndPublishIssue}, msg)
}

func failureMessage(err error) string {
	if err == nil || strings.TrimSpace(err.Error()) == "" {
		return domain.MsgUnknownError
	}
	return err.Error()
}

// bookkeepingContext keeps status writes alive when ctx was cancelled mid-job,
// so a job never stays in processing because of a shutdown.
func bookkeepingContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
}
