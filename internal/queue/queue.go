// Package queue is the only writer of job records. It validates status
// invariants before anything reaches the Job Store.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sumire/issuedraft/internal/domain"
)

// Store is the persistence contract of the Job Store.
type Store interface {
	Insert(ctx context.Context, job *domain.Job) error
	FindByID(ctx context.Context, id string) (*domain.Job, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Job, error)
	ClaimNextPending(ctx context.Context) (*domain.Job, error)
	UpdateStatus(ctx context.Context, id string, update domain.StatusUpdate) error
	IncrementRetry(ctx context.Context, id string) error
}

// Queue implements enqueue, claim, status transitions and retry on top of a Store.
type Queue struct {
	store      Store
	maxRetries int
}

// New creates a Queue whose jobs allow maxRetries retries.
func New(store Store, maxRetries int) *Queue {
	if maxRetries < 0 {
		maxRetries = domain.DefaultMaxRetries
	}
	return &Queue{store: store, maxRetries: maxRetries}
}

// Enqueue persists a new pending job for userID carrying payload.
func (q *Queue) Enqueue(ctx context.Context, userID string, payload domain.JobPayload) (*domain.Job, error) {
	if userID == "" {
		return nil, &domain.ValidationError{Field: "user_id", Message: "is required"}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode payload: %v", domain.ErrInvalidInput, err)
	}

	job := &domain.Job{
		ID:         uuid.NewString(),
		UserID:     userID,
		Type:       payload.JobType(),
		Status:     domain.JobStatusPending,
		Payload:    raw,
		MaxRetries: q.maxRetries,
	}
	if err := q.store.Insert(ctx, job); err != nil {
		return nil, storageErr(err)
	}

	slog.Info("job enqueued", "job_id", job.ID, "job_type", job.Type, "user_id", userID)
	return job, nil
}

// GetJob returns the job with jobID, or nil when it does not exist.
func (q *Queue) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := q.store.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, storageErr(err)
	}
	return job, nil
}

// ListJobs returns the most recent jobs of userID.
func (q *Queue) ListJobs(ctx context.Context, userID string, limit int) ([]domain.Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	jobs, err := q.store.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, storageErr(err)
	}
	return jobs, nil
}

// GetNextPendingJob claims one pending job, preferring the oldest, and returns
// it already marked processing. A claimed job is never handed to a second caller.
// Returns nil when no job is pending.
func (q *Queue) GetNextPendingJob(ctx context.Context) (*domain.Job, error) {
	job, err := q.store.ClaimNextPending(ctx)
	if err != nil {
		return nil, storageErr(err)
	}
	return job, nil
}

// UpdateJobStatus moves jobID to status. A completed job needs result and a
// failed job needs a non-empty errMsg; the other fields are cleared so that
// result and error only ever accompany their own status.
func (q *Queue) UpdateJobStatus(ctx context.Context, jobID string, status domain.JobStatus, result *domain.JobResult, errMsg string) error {
	update := domain.StatusUpdate{Status: status}

	switch status {
	case domain.JobStatusCompleted:
		if result == nil {
			return fmt.Errorf("%w: completed job %s needs a result", domain.ErrInvalidTransition, jobID)
		}
		update.Result = result
	case domain.JobStatusFailed:
		errMsg = sanitizeErrorMessage(errMsg)
		if errMsg == "" {
			return fmt.Errorf("%w: failed job %s needs an error", domain.ErrInvalidTransition, jobID)
		}
		update.Error = errMsg
	case domain.JobStatusPending, domain.JobStatusProcessing:
	default:
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, status)
	}

	if err := q.store.UpdateStatus(ctx, jobID, update); err != nil {
		return storageErr(err)
	}

	slog.Debug("job status updated", "job_id", jobID, "status", status)
	return nil
}

// RetryJob returns jobID to pending and increments its retry count. It refuses
// with ErrRetriesExhausted once retryCount has reached maxRetries.
func (q *Queue) RetryJob(ctx context.Context, jobID string) error {
	if err := q.store.IncrementRetry(ctx, jobID); err != nil {
		return storageErr(err)
	}

	slog.Info("job scheduled for retry", "job_id", jobID)
	return nil
}

// storageErr passes domain errors through and tags everything else as ErrStorage.
func storageErr(err error) error {
	for _, known := range []error{
		domain.ErrNotFound,
		domain.ErrInvalidTransition,
		domain.ErrRetriesExhausted,
		domain.ErrInvalidInput,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrStorage, err)
}

// maxErrorLength caps stored error messages, in runes.
const maxErrorLength = 1000

// sanitizeErrorMessage drops control characters other than line breaks and tabs
// and caps the message at maxErrorLength runes.
func sanitizeErrorMessage(msg string) string {
	var b strings.Builder
	b.Grow(len(msg))
	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}

	out := strings.TrimSpace(b.String())
	if utf8.RuneCountInString(out) > maxErrorLength {
		out = string([]rune(out)[:maxErrorLength-3]) + "..."
	}
	return out
}
