package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/issuedraft/internal/domain"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

// issuesServer fails the first failures requests with failStatus, then creates issue 7.
func issuesServer(t *testing.T, failures int32, failStatus int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/o/r/issues", r.URL.Path)
		assert.Equal(t, "Bearer gho_token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		if n <= failures {
			w.WriteHeader(failStatus)
			_, _ = w.Write([]byte(`{"message":"upstream trouble"}`))
			return
		}

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Add dark mode", body["title"])
		assert.Equal(t, "## Overview", body["body"])
		assert.Equal(t, []any{"feature"}, body["labels"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"number":7,"html_url":"https://github.com/o/r/issues/7"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func publishRequest() domain.PublishRequest {
	return domain.PublishRequest{
		Title:       "Add dark mode",
		Body:        "## Overview",
		Labels:      []string{"feature"},
		AccessToken: "gho_token",
		Repository:  "o/r",
	}
}

func TestPublisher_Success(t *testing.T) {
	var calls atomic.Int32
	srv := issuesServer(t, 0, 0, &calls)

	p := NewPublisher(WithBaseURL(srv.URL), WithRetryConfig(fastRetry()))
	res := p.PublishWithRetry(context.Background(), publishRequest())

	assert.True(t, res.Success)
	assert.Equal(t, 7, res.IssueNumber)
	assert.Equal(t, "https://github.com/o/r/issues/7", res.IssueURL)
	assert.Empty(t, res.Error)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPublisher_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := issuesServer(t, 2, http.StatusBadGateway, &calls)

	p := NewPublisher(WithBaseURL(srv.URL), WithRetryConfig(fastRetry()))
	res := p.PublishWithRetry(context.Background(), publishRequest())

	assert.True(t, res.Success)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPublisher_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := issuesServer(t, 10, http.StatusServiceUnavailable, &calls)

	p := NewPublisher(WithBaseURL(srv.URL), WithRetryConfig(fastRetry()))
	res := p.PublishWithRetry(context.Background(), publishRequest())

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "503")
	assert.Equal(t, int32(3), calls.Load())
}

func TestPublisher_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := issuesServer(t, 10, http.StatusUnprocessableEntity, &calls)

	p := NewPublisher(WithBaseURL(srv.URL), WithRetryConfig(fastRetry()))
	res := p.PublishWithRetry(context.Background(), publishRequest())

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "422")
	assert.Equal(t, int32(1), calls.Load())
}

func TestPublisher_InvalidRepository(t *testing.T) {
	p := NewPublisher(WithRetryConfig(fastRetry()))

	req := publishRequest()
	req.Repository = "not-a-repo"
	res := p.PublishWithRetry(context.Background(), req)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "invalid repository")
}

func TestParseRepository(t *testing.T) {
	owner, name, err := ParseRepository("octo/hello-world")
	require.NoError(t, err)
	assert.Equal(t, "octo", owner)
	assert.Equal(t, "hello-world", name)

	for _, bad := range []string{"", "octo", "/repo", "octo/", "a/b/c"} {
		_, _, err := ParseRepository(bad)
		assert.Error(t, err, bad)
	}
}
