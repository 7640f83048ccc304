package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sumire/issuedraft/internal/domain"
)

// maxProcessBatch caps ?max= on the process endpoint.
const maxProcessBatch = 50

// JobQueue is the queue API the job endpoints use.
type JobQueue interface {
	Enqueue(ctx context.Context, userID string, payload domain.JobPayload) (*domain.Job, error)
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, userID string, limit int) ([]domain.Job, error)
}

// JobRunner processes pending jobs on demand.
type JobRunner interface {
	ProcessPendingJobs(ctx context.Context, maxJobs int) (int, error)
}

// RepoDefaults supplies the repository a user selected in their profile.
type RepoDefaults interface {
	Overview(ctx context.Context, userID string) (domain.ProfileOverview, error)
}

// JobHandler exposes the job queue over HTTP.
type JobHandler struct {
	queue     JobQueue
	runner    JobRunner
	repos     RepoDefaults
	batchSize int
}

// NewJobHandler creates a JobHandler. batchSize is the default for ?max=.
func NewJobHandler(queue JobQueue, runner JobRunner, repos RepoDefaults, batchSize int) *JobHandler {
	return &JobHandler{queue: queue, runner: runner, repos: repos, batchSize: batchSize}
}

type createIssueJobRequest struct {
	Title            string                   `json:"title"`
	Prompt           string                   `json:"prompt"`
	Repository       string                   `json:"repository"`
	GeneratedContent *domain.GeneratedContent `json:"generated_content"`
}

// Create enqueues a create-and-publish-issue job for the caller. Without a
// repository in the body, the profile's selected repository is used.
func (h *JobHandler) Create(c echo.Context) error {
	userID, ok := GetUserID(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	var req createIssueJobRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}

	ctx := c.Request().Context()
	if req.Repository == "" {
		overview, err := h.repos.Overview(ctx, userID)
		if err != nil {
			return err
		}
		if overview.SelectedRepo != nil {
			req.Repository = *overview.SelectedRepo
		}
	}

	payload := domain.CreateAndPublishIssuePayload{
		Title:            req.Title,
		Prompt:           req.Prompt,
		Repository:       req.Repository,
		GeneratedContent: req.GeneratedContent,
	}
	if err := c.Validate(&payload); err != nil {
		return err
	}

	job, err := h.queue.Enqueue(ctx, userID, payload)
	if err != nil {
		return err
	}

	return JSON(c, http.StatusAccepted, job)
}

// Get returns one of the caller's jobs. Jobs of other users are reported as missing.
func (h *JobHandler) Get(c echo.Context) error {
	userID, ok := GetUserID(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	job, err := h.queue.GetJob(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if job == nil || job.UserID != userID {
		return domain.ErrNotFound
	}

	return JSON(c, http.StatusOK, job)
}

// List returns the caller's most recent jobs.
func (h *JobHandler) List(c echo.Context) error {
	userID, ok := GetUserID(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	limit, err := intQueryParam(c, "limit", 20)
	if err != nil {
		return err
	}

	jobs, err := h.queue.ListJobs(c.Request().Context(), userID, limit)
	if err != nil {
		return err
	}
	if jobs == nil {
		jobs = []domain.Job{}
	}

	return JSON(c, http.StatusOK, jobs)
}

// Process runs up to ?max= pending jobs synchronously. It is the external
// trigger for deployments that drive the queue from an outside scheduler.
func (h *JobHandler) Process(c echo.Context) error {
	maxJobs, err := intQueryParam(c, "max", h.batchSize)
	if err != nil {
		return err
	}
	if maxJobs < 1 || maxJobs > maxProcessBatch {
		return &domain.ValidationError{Field: "max", Message: fmt.Sprintf("must be between 1 and %d", maxProcessBatch)}
	}

	processed, err := h.runner.ProcessPendingJobs(c.Request().Context(), maxJobs)
	if err != nil {
		return err
	}

	return JSON(c, http.StatusOK, map[string]int{"processed": processed})
}

func intQueryParam(c echo.Context, name string, defaultValue int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &domain.ValidationError{Field: name, Message: "must be an integer"}
	}
	return n, nil
}
