package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sumire/issuedraft/internal/domain"
	"github.com/sumire/issuedraft/internal/queue"
	"github.com/sumire/issuedraft/internal/repository"
	"github.com/sumire/issuedraft/internal/service"
)

type fakeProfiles struct {
	mu     sync.Mutex
	key    string
	err    error
	tokens int
	cost   float64
	calls  int
}

func (f *fakeProfiles) GetOpenAIKey(context.Context, string) (string, error) {
	return f.key, f.err
}

func (f *fakeProfiles) UpdateUsageStats(_ context.Context, _ string, tokens int, cost float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.tokens += tokens
	f.cost += cost
	return nil
}

type fakeConnections struct {
	conn *domain.GitHubConnection
	err  error
}

func (f *fakeConnections) Get(context.Context, string) (*domain.GitHubConnection, error) {
	return f.conn, f.err
}

type fakeContent struct {
	result *service.GenerationResult
	err    error
	calls  int
}

func (f *fakeContent) Generate(context.Context, string, string) (*service.GenerationResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakePublisher fails the first failures calls, then succeeds.
type fakePublisher struct {
	failures int
	calls    int
	requests []domain.PublishRequest
}

func (f *fakePublisher) PublishWithRetry(_ context.Context, req domain.PublishRequest) domain.PublishResult {
	f.calls++
	f.requests = append(f.requests, req)
	if f.calls <= f.failures {
		return domain.PublishResult{Error: "GitHub request failed: connection reset"}
	}
	return domain.PublishResult{
		Success:     true,
		IssueURL:    "https://github.com/o/r/issues/7",
		IssueNumber: 7,
	}
}

type harness struct {
	queue       *queue.Queue
	profiles    *fakeProfiles
	connections *fakeConnections
	content     *fakeContent
	publisher   *fakePublisher
	processor   *Processor
}

func newHarness(t *testing.T, maxRetries int) *harness {
	t.Helper()
	db, err := repository.Open(context.Background(), repository.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{
		queue:       queue.New(repository.NewJobRepository(db), maxRetries),
		profiles:    &fakeProfiles{key: "sk-user"},
		connections: &fakeConnections{conn: &domain.GitHubConnection{UserID: "u1", AccessToken: "gho_token"}},
		content: &fakeContent{result: &service.GenerationResult{
			Content: domain.GeneratedContent{
				Markdown: "Add a dark mode toggle to settings.\n\n## Overview\nUsers want dark mode.",
				Summary:  domain.IssueSummary{Type: "feature", Priority: "medium", Complexity: "low"},
			},
			Tokens: 120,
			Cost:   0.0012,
		}},
		publisher: &fakePublisher{},
	}
	h.processor = NewProcessor(h.deps(), 0)
	return h
}

func (h *harness) deps() Deps {
	return Deps{
		Queue:       h.queue,
		Profiles:    h.profiles,
		Connections: h.connections,
		Content:     h.content,
		Titles:      service.NewTitleGenerator(nil),
		Publisher:   h.publisher,
	}
}

func (h *harness) enqueue(t *testing.T, payload domain.CreateAndPublishIssuePayload) *domain.Job {
	t.Helper()
	job, err := h.queue.Enqueue(context.Background(), "u1", payload)
	require.NoError(t, err)
	return job
}

func (h *harness) job(t *testing.T, id string) *domain.Job {
	t.Helper()
	job, err := h.queue.GetJob(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

var errTransient = errors.New("openai chat completion: 502 Bad Gateway")

// blockingContent never answers; it returns once ctx is done.
type blockingContent struct {
	calls int
}

func (b *blockingContent) Generate(ctx context.Context, _, _ string) (*service.GenerationResult, error) {
	b.calls++
	<-ctx.Done()
	return nil, ctx.Err()
}

// cancelAfterClaim cancels the caller's context right after a job is claimed.
type cancelAfterClaim struct {
	*queue.Queue
	cancel context.CancelFunc
}

func (c cancelAfterClaim) GetNextPendingJob(ctx context.Context) (*domain.Job, error) {
	job, err := c.Queue.GetNextPendingJob(ctx)
	c.cancel()
	return job, err
}
