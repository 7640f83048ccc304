package queue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/issuedraft/internal/domain"
	"github.com/sumire/issuedraft/internal/repository"
)

func newTestQueue(t *testing.T, maxRetries int) *Queue {
	t.Helper()
	db, err := repository.Open(context.Background(), repository.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(repository.NewJobRepository(db), maxRetries)
}

func testPayload() domain.CreateAndPublishIssuePayload {
	return domain.CreateAndPublishIssuePayload{Prompt: "add dark mode", Repository: "o/r"}
}

func TestQueue_Enqueue(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, 3)

	job, err := q.Enqueue(ctx, "u1", testPayload())
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, domain.JobTypeCreateAndPublishIssue, job.Type)
	assert.Equal(t, 0, job.RetryCount)
	assert.Equal(t, 3, job.MaxRetries)
	assert.False(t, job.CreatedAt.IsZero())

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	payload, err := domain.DecodePayload(stored.Type, stored.Payload)
	require.NoError(t, err)
	assert.Equal(t, testPayload(), payload)
}

func TestQueue_Enqueue_RequiresUser(t *testing.T) {
	_, err := newTestQueue(t, 3).Enqueue(context.Background(), "", testPayload())

	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestQueue_GetJob_Missing(t *testing.T) {
	job, err := newTestQueue(t, 3).GetJob(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, job)
}

func TestQueue_GetNextPendingJob(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, 3)

	none, err := q.GetNextPendingJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	job, err := q.Enqueue(ctx, "u1", testPayload())
	require.NoError(t, err)

	next, err := q.GetNextPendingJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, job.ID, next.ID)
	assert.Equal(t, domain.JobStatusProcessing, next.Status)

	again, err := q.GetNextPendingJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, again, "a claimed job is not handed out twice")
}

func TestQueue_UpdateJobStatus_Invariants(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, 3)
	job, err := q.Enqueue(ctx, "u1", testPayload())
	require.NoError(t, err)

	err = q.UpdateJobStatus(ctx, job.ID, domain.JobStatusCompleted, nil, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	err = q.UpdateJobStatus(ctx, job.ID, domain.JobStatusFailed, nil, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	err = q.UpdateJobStatus(ctx, job.ID, domain.JobStatus("paused"), nil, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	result := &domain.JobResult{IssueURL: "https://github.com/o/r/issues/1", IssueNumber: 1, Repository: "o/r", Title: "T"}
	require.NoError(t, q.UpdateJobStatus(ctx, job.ID, domain.JobStatusCompleted, result, "ignored"))

	got, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Equal(t, result, got.Result)
	assert.Empty(t, got.Error, "error only accompanies failed")
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestQueue_UpdateJobStatus_FailedDropsResult(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, 3)
	job, err := q.Enqueue(ctx, "u1", testPayload())
	require.NoError(t, err)

	require.NoError(t, q.UpdateJobStatus(ctx, job.ID, domain.JobStatusFailed, &domain.JobResult{Title: "x"}, "GitHub not connected"))

	got, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Nil(t, got.Result)
	assert.Equal(t, "GitHub not connected", got.Error)
}

func TestQueue_UpdateJobStatus_Missing(t *testing.T) {
	err := newTestQueue(t, 3).UpdateJobStatus(context.Background(), "missing", domain.JobStatusProcessing, nil, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQueue_RetryJob(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, 1)
	job, err := q.Enqueue(ctx, "u1", testPayload())
	require.NoError(t, err)

	_, err = q.GetNextPendingJob(ctx)
	require.NoError(t, err)
	require.NoError(t, q.RetryJob(ctx, job.ID))

	got, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)

	err = q.RetryJob(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrRetriesExhausted)

	got, err = q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, got.RetryCount, got.MaxRetries)
}

type brokenStore struct{ Store }

func (brokenStore) FindByID(context.Context, string) (*domain.Job, error) {
	return nil, errors.New("connection refused")
}

func TestQueue_StorageErrorsAreTagged(t *testing.T) {
	q := New(brokenStore{}, 3)

	_, err := q.GetJob(context.Background(), "id")
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestQueue_ListJobs(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, 3)
	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, "u1", testPayload())
		require.NoError(t, err)
	}
	_, err := q.Enqueue(ctx, "u2", testPayload())
	require.NoError(t, err)

	jobs, err := q.ListJobs(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}

func TestQueue_UpdateJobStatus_SanitizesError(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, 3)
	job, err := q.Enqueue(ctx, "u1", testPayload())
	require.NoError(t, err)

	require.NoError(t, q.UpdateJobStatus(ctx, job.ID, domain.JobStatusFailed, nil, "boom\x00\x1b[31m red\n"+strings.Repeat("x", 2000)))

	got, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got.Error, "boom[31m red\n"))
	assert.NotContains(t, got.Error, "\x00")
	assert.Equal(t, maxErrorLength, utf8.RuneCountInString(got.Error))
	assert.True(t, strings.HasSuffix(got.Error, "..."))
}

func TestQueue_UpdateJobStatus_ControlOnlyErrorIsRejected(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, 3)
	job, err := q.Enqueue(ctx, "u1", testPayload())
	require.NoError(t, err)

	err = q.UpdateJobStatus(ctx, job.ID, domain.JobStatusFailed, nil, "\x00\x01")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}
