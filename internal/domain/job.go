package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the state of a background job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether a job in this status is never processed again.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// JobType discriminates job payload variants.
type JobType string

const (
	JobTypeCreateAndPublishIssue JobType = "create-and-publish-issue"
)

// DefaultMaxRetries is applied to jobs enqueued without an explicit limit.
const DefaultMaxRetries = 3

// Job is a persisted unit of asynchronous work.
type Job struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Type       JobType         `json:"type"`
	Status     JobStatus       `json:"status"`
	Payload    json.RawMessage `json:"payload"`
	Result     *JobResult      `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	RetryCount int             `json:"retry_count"`
	MaxRetries int             `json:"max_retries"`
	Version    int64           `json:"version"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// CanRetry reports whether another retry stays within the job's retry budget.
func (j Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// JobResult is populated once a job completes.
type JobResult struct {
	IssueURL    string `json:"issue_url"`
	IssueNumber int    `json:"issue_number"`
	Repository  string `json:"repository"`
	Title       string `json:"title"`
}

// StatusUpdate describes a status write against a job.
type StatusUpdate struct {
	Status JobStatus
	Result *JobResult
	Error  string
}

// JobPayload is implemented by every job payload variant.
type JobPayload interface {
	JobType() JobType
}

// CreateAndPublishIssuePayload is the input of a create-and-publish-issue job.
type CreateAndPublishIssuePayload struct {
	Title            string            `json:"title,omitempty" validate:"omitempty,max=256"`
	Prompt           string            `json:"prompt" validate:"required,max=20000"`
	Repository       string            `json:"repository" validate:"required,repository"`
	GeneratedContent *GeneratedContent `json:"generated_content,omitempty"`
}

// JobType implements JobPayload.
func (CreateAndPublishIssuePayload) JobType() JobType {
	return JobTypeCreateAndPublishIssue
}

// DecodePayload decodes raw into the payload variant registered for t.
func DecodePayload(t JobType, raw json.RawMessage) (JobPayload, error) {
	switch t {
	case JobTypeCreateAndPublishIssue:
		var p CreateAndPublishIssuePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, t)
	}
}
