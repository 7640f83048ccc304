package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/sumire/issuedraft/internal/domain"
	"github.com/sumire/issuedraft/internal/llm"
)

// CostPerToken is the flat estimate used to bill generated content.
const CostPerToken = 0.00001

// ErrInvalidCompletion means the completion API answered with an unusable document.
var ErrInvalidCompletion = errors.New("invalid completion response")

const issueSystemPrompt = `You are a senior engineer who turns short requests into complete GitHub issues.
Write the issue in GitHub-flavored markdown with these sections, in order:
## Overview
## Context
## Requirements
## Technical Specifications
## Implementation Guide
## Acceptance Criteria
## Additional Notes
## Definition of Done
Use checklists for acceptance criteria and definition of done.
Respond with JSON only:
{"markdown": string, "summary": {"type": "bug"|"feature"|"enhancement"|"documentation"|"refactor", "priority": "low"|"medium"|"high"|"critical", "complexity": "low"|"medium"|"high"}}`

// GenerationResult is generated issue content plus its estimated usage.
type GenerationResult struct {
	Content domain.GeneratedContent
	Tokens  int
	Cost    float64
}

// IssueGenerator expands a prompt into a structured issue via the completion API.
type IssueGenerator struct {
	clients llm.ClientFactory
	model   string
}

// NewIssueGenerator creates an IssueGenerator. An empty model uses the client's default.
func NewIssueGenerator(clients llm.ClientFactory, model string) *IssueGenerator {
	return &IssueGenerator{clients: clients, model: model}
}

// Generate calls the completion API with apiKey. Malformed responses are
// reported as ErrInvalidCompletion; a later attempt may succeed.
func (g *IssueGenerator) Generate(ctx context.Context, apiKey, prompt string) (*GenerationResult, error) {
	resp, err := g.clients(apiKey).Complete(ctx, llm.CompletionRequest{
		Model: g.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: issueSystemPrompt},
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature:  0.7,
		JSONResponse: true,
	})
	if err != nil {
		return nil, fmt.Errorf("generate issue content: %w", err)
	}

	var content domain.GeneratedContent
	if err := json.Unmarshal([]byte(resp.Content), &content); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCompletion, err)
	}
	content.Markdown = strings.TrimSpace(content.Markdown)
	if content.Markdown == "" {
		return nil, fmt.Errorf("%w: markdown is empty", ErrInvalidCompletion)
	}

	tokens := EstimateTokens(content.Markdown, resp.Content)
	return &GenerationResult{
		Content: content,
		Tokens:  tokens,
		Cost:    float64(tokens) * CostPerToken,
	}, nil
}

// EstimateTokens approximates usage as one token per four characters of
// markdown plus raw response.
func EstimateTokens(markdown, raw string) int {
	chars := utf8.RuneCountInString(markdown) + utf8.RuneCountInString(raw)
	return int(math.Ceil(float64(chars) / 4))
}
