package service

import (
	"context"

	"github.com/sumire/issuedraft/internal/llm"
)

// fakeLLM replays canned responses and records requests.
type fakeLLM struct {
	content  string
	err      error
	requests []llm.CompletionRequest
}

func (f *fakeLLM) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return llm.CompletionResponse{}, f.err
	}
	return llm.CompletionResponse{Content: f.content}, nil
}
