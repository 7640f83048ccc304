package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sumire/issuedraft/internal/domain"
	"github.com/sumire/issuedraft/internal/llm"
)

const (
	// FallbackIssueTitle is used when content yields no usable words.
	FallbackIssueTitle = "Generated Issue"

	maxSentenceTitle  = 50
	maxGeneratedTitle = 70
	minUserTitle      = 5
	maxTitlePrompt    = 4000
)

// genericTitles are placeholders that never count as a user-chosen title.
// A title equal to or starting with one of them is replaced.
var genericTitles = []string{
	"new issue",
	"bug report",
	"feature request",
	"enhancement",
	"untitled",
	"issue title",
	"generated issue",
	"my issue",
	"todo",
}

var (
	headingPrefix = regexp.MustCompile(`^#{1,6}\s*`)
	labelPrefix   = regexp.MustCompile(`(?i)^title:\s*`)
	nonWord       = regexp.MustCompile(`[^\p{L}\p{N}_\s]+`)
	whitespace    = regexp.MustCompile(`\s+`)
)

const titleSystemPrompt = `You write GitHub issue titles.
Rules:
- Start with an action verb (Add, Fix, Implement, Improve, Remove, Update, Refactor).
- Be specific and concise; 5 to 50 characters is ideal.
- No trailing punctuation, no quotes, no issue type prefixes.
Respond with JSON only: {"title": string, "alternatives": string[]} with up to 3 alternatives.`

// TitleGenerator produces issue titles. Without an LLM client it only uses
// deterministic text extraction.
type TitleGenerator struct {
	client llm.Client
}

// NewTitleGenerator creates a TitleGenerator. client may be nil.
func NewTitleGenerator(client llm.Client) *TitleGenerator {
	return &TitleGenerator{client: client}
}

// GenerateAutoTitle keeps a meaningful currentTitle, otherwise asks the LLM
// (when configured) and falls back to extracting a title from content. It never fails.
func (g *TitleGenerator) GenerateAutoTitle(ctx context.Context, content, currentTitle string) domain.TitleSuggestion {
	if IsMeaningfulTitle(currentTitle) {
		return domain.TitleSuggestion{Title: currentTitle}
	}

	if g.client != nil {
		suggestion, err := g.generateWithAI(ctx, content)
		if err == nil {
			return suggestion
		}
		slog.Warn("ai title generation failed, using fallback", "error", err)
	}

	return domain.TitleSuggestion{Title: FallbackTitle(content)}
}

type titleCompletion struct {
	Title        string   `json:"title"`
	Alternatives []string `json:"alternatives"`
}

func (g *TitleGenerator) generateWithAI(ctx context.Context, content string) (domain.TitleSuggestion, error) {
	resp, err := g.client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: titleSystemPrompt},
			{Role: llm.RoleUser, Content: "Issue content:\n\n" + truncateRunes(content, maxTitlePrompt)},
		},
		Temperature:  0.3,
		JSONResponse: true,
	})
	if err != nil {
		return domain.TitleSuggestion{}, err
	}

	var parsed titleCompletion
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return domain.TitleSuggestion{}, fmt.Errorf("parse title completion: %w", err)
	}

	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		return domain.TitleSuggestion{}, errors.New("title completion is empty")
	}

	var alternatives []string
	for _, alt := range parsed.Alternatives {
		if alt = strings.TrimSpace(alt); alt != "" {
			alternatives = append(alternatives, ellipsize(alt, maxGeneratedTitle))
		}
	}

	return domain.TitleSuggestion{
		Title:        ellipsize(title, maxGeneratedTitle),
		IsGenerated:  true,
		Alternatives: alternatives,
	}, nil
}

// IsMeaningfulTitle reports whether title is long enough and not a generic placeholder.
func IsMeaningfulTitle(title string) bool {
	t := strings.TrimSpace(title)
	if utf8.RuneCountInString(t) <= minUserTitle {
		return false
	}

	lower := strings.ToLower(t)
	for _, generic := range genericTitles {
		if strings.HasPrefix(lower, generic) {
			return false
		}
	}
	return true
}

// FallbackTitle extracts a title from content: the first sentence when it is
// short enough, otherwise the text cut to fit with an ellipsis.
func FallbackTitle(content string) string {
	text := strings.TrimSpace(content)
	text = headingPrefix.ReplaceAllString(text, "")
	text = labelPrefix.ReplaceAllString(text, "")

	first := text
	if i := strings.IndexAny(text, ".!?"); i >= 0 {
		first = text[:i]
	}
	if sentence := cleanTitle(first); sentence != "" {
		return ellipsize(sentence, maxSentenceTitle)
	}

	if all := cleanTitle(text); all != "" {
		return ellipsize(all, maxSentenceTitle)
	}
	return FallbackIssueTitle
}

func cleanTitle(s string) string {
	s = nonWord.ReplaceAllString(s, "")
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// ellipsize cuts s to max runes, ending in "..." when it had to cut.
func ellipsize(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return strings.TrimSpace(truncateRunes(s, max-3)) + "..."
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
