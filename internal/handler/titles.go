package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sumire/issuedraft/internal/domain"
	"github.com/sumire/issuedraft/internal/llm"
	"github.com/sumire/issuedraft/internal/service"
)

// KeyLookup returns a user's completion API key, or "".
type KeyLookup interface {
	OpenAIKey(ctx context.Context, userID string) (string, error)
}

// TitleHandler suggests issue titles.
type TitleHandler struct {
	keys    KeyLookup
	clients llm.ClientFactory
	timeout time.Duration
}

// NewTitleHandler creates a TitleHandler. Callers with a stored key get AI
// suggestions through clients; everyone else gets the extracted fallback.
func NewTitleHandler(keys KeyLookup, clients llm.ClientFactory, timeout time.Duration) *TitleHandler {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &TitleHandler{keys: keys, clients: clients, timeout: timeout}
}

type suggestTitleRequest struct {
	Content      string `json:"content" validate:"required,max=20000"`
	CurrentTitle string `json:"current_title" validate:"max=256"`
}

// Suggest returns a title for the given issue content.
func (h *TitleHandler) Suggest(c echo.Context) error {
	userID, ok := GetUserID(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	var req suggestTitleRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	apiKey, err := h.keys.OpenAIKey(ctx, userID)
	if err != nil {
		return err
	}

	var client llm.Client
	if apiKey != "" && h.clients != nil {
		client = h.clients(apiKey)
	}

	suggestion := service.NewTitleGenerator(client).GenerateAutoTitle(ctx, req.Content, req.CurrentTitle)
	return JSON(c, http.StatusOK, suggestion)
}
