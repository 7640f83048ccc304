package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/issuedraft/internal/domain"
)

const (
	// claimCandidates is how many pending rows one claim round considers.
	claimCandidates = 5
	claimRounds     = 3
)

const jobColumns = `id, user_id, job_type, status, payload, result, error_message,
	retry_count, max_retries, version, created_at, updated_at`

// JobRepository is the Job Store. Every write bumps version and updated_at.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

type jobRow struct {
	ID         string         `db:"id"`
	UserID     string         `db:"user_id"`
	Type       string         `db:"job_type"`
	Status     string         `db:"status"`
	Payload    string         `db:"payload"`
	Result     sql.NullString `db:"result"`
	Error      sql.NullString `db:"error_message"`
	RetryCount int            `db:"retry_count"`
	MaxRetries int            `db:"max_retries"`
	Version    int64          `db:"version"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func (r jobRow) toDomain() (*domain.Job, error) {
	job := &domain.Job{
		ID:         r.ID,
		UserID:     r.UserID,
		Type:       domain.JobType(r.Type),
		Status:     domain.JobStatus(r.Status),
		Payload:    json.RawMessage(r.Payload),
		Error:      r.Error.String,
		RetryCount: r.RetryCount,
		MaxRetries: r.MaxRetries,
		Version:    r.Version,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
	if r.Result.Valid && r.Result.String != "" {
		var res domain.JobResult
		if err := json.Unmarshal([]byte(r.Result.String), &res); err != nil {
			return nil, fmt.Errorf("decode result of job %s: %w", r.ID, err)
		}
		job.Result = &res
	}
	return job, nil
}

// Insert persists a new job. CreatedAt and UpdatedAt default to now when zero.
func (r *JobRepository) Insert(ctx context.Context, job *domain.Job) error {
	ts := now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = ts
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}

	result, err := encodeResult(job.Result)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO jobs (`+jobColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		job.ID, job.UserID, string(job.Type), string(job.Status), string(job.Payload),
		result, nullString(job.Error), job.RetryCount, job.MaxRetries, job.Version,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

// FindByID retrieves a job by its ID.
func (r *JobRepository) FindByID(ctx context.Context, id string) (*domain.Job, error) {
	var row jobRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find job %s: %w", id, err)
	}
	return row.toDomain()
}

// ListByUser returns the newest jobs owned by userID.
func (r *JobRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Job, error) {
	var rows []jobRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(
		`SELECT `+jobColumns+` FROM jobs WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs of user %s: %w", userID, err)
	}

	jobs := make([]domain.Job, 0, len(rows))
	for _, row := range rows {
		job, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

// ClaimNextPending moves the oldest pending job it can win to processing and
// returns it. The claim is a conditional update, so two workers never receive
// the same job. Returns nil when nothing is pending.
func (r *JobRepository) ClaimNextPending(ctx context.Context) (*domain.Job, error) {
	for round := 0; round < claimRounds; round++ {
		var ids []string
		err := r.db.SelectContext(ctx, &ids, r.db.Rebind(
			`SELECT id FROM jobs WHERE status = ?
			 ORDER BY created_at ASC, id ASC LIMIT ?`),
			string(domain.JobStatusPending), claimCandidates)
		if err != nil {
			return nil, fmt.Errorf("select pending jobs: %w", err)
		}
		if len(ids) == 0 {
			return nil, nil
		}

		// Once a claim is sent it must finish and be read back, or the row
		// would sit in processing with no caller to move it on.
		claimCtx := context.WithoutCancel(ctx)
		for _, id := range ids {
			res, err := r.db.ExecContext(claimCtx, r.db.Rebind(
				`UPDATE jobs SET status = ?, version = version + 1, updated_at = ?
				 WHERE id = ? AND status = ?`),
				string(domain.JobStatusProcessing), now(), id, string(domain.JobStatusPending))
			if err != nil {
				return nil, fmt.Errorf("claim job %s: %w", id, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return nil, fmt.Errorf("claim job %s: %w", id, err)
			}
			if n == 1 {
				return r.FindByID(claimCtx, id)
			}
		}
	}
	return nil, nil
}

// UpdateStatus writes a status, result and error in one statement. Jobs in a
// terminal status are never rewritten.
func (r *JobRepository) UpdateStatus(ctx context.Context, id string, update domain.StatusUpdate) error {
	result, err := encodeResult(update.Result)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE jobs SET status = ?, result = ?, error_message = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?)`),
		string(update.Status), result, nullString(update.Error), now(),
		id, string(domain.JobStatusCompleted), string(domain.JobStatusFailed))
	if err != nil {
		return fmt.Errorf("update job %s status: %w", id, err)
	}
	return r.checkWritten(ctx, id, res, domain.ErrInvalidTransition)
}

// IncrementRetry returns a job to pending and bumps retry_count, provided the
// job is not terminal and retry_count is still below max_retries.
func (r *JobRepository) IncrementRetry(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE jobs SET status = ?, retry_count = retry_count + 1, result = NULL, error_message = NULL,
		        version = version + 1, updated_at = ?
		 WHERE id = ? AND retry_count < max_retries AND status NOT IN (?, ?)`),
		string(domain.JobStatusPending), now(),
		id, string(domain.JobStatusCompleted), string(domain.JobStatusFailed))
	if err != nil {
		return fmt.Errorf("retry job %s: %w", id, err)
	}
	return r.checkWritten(ctx, id, res, domain.ErrRetriesExhausted)
}

// checkWritten explains a write that touched no row: the job is missing,
// terminal, or failed the statement's own guard (guardErr).
func (r *JobRepository) checkWritten(ctx context.Context, id string, res sql.Result, guardErr error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for job %s: %w", id, err)
	}
	if n > 0 {
		return nil
	}

	job, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: job %s is %s", domain.ErrInvalidTransition, id, job.Status)
	}
	return fmt.Errorf("%w: job %s", guardErr, id)
}

func encodeResult(res *domain.JobResult) (sql.NullString, error) {
	if res == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode job result: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
