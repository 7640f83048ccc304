package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/issuedraft/internal/domain"
	"github.com/sumire/issuedraft/internal/service"
)

// ProfileHandler handles the caller's publishing settings.
type ProfileHandler struct {
	profiles *service.ProfileService
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(profiles *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// Get reports which publishing prerequisites the caller has configured.
func (h *ProfileHandler) Get(c echo.Context) error {
	userID, ok := GetUserID(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	overview, err := h.profiles.Overview(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, overview)
}

type openAIKeyRequest struct {
	APIKey string `json:"api_key" validate:"max=512"`
}

// SaveOpenAIKey stores the caller's key. An empty key removes it.
func (h *ProfileHandler) SaveOpenAIKey(c echo.Context) error {
	userID, ok := GetUserID(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	var req openAIKeyRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.profiles.SaveOpenAIKey(c.Request().Context(), userID, req.APIKey); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type selectRepoRequest struct {
	Repository string `json:"repository" validate:"required,repository"`
}

// SelectRepository sets the default repository for new jobs.
func (h *ProfileHandler) SelectRepository(c echo.Context) error {
	userID, ok := GetUserID(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	var req selectRepoRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.profiles.SelectRepository(c.Request().Context(), userID, req.Repository); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Usage returns the caller's estimated completion API usage.
func (h *ProfileHandler) Usage(c echo.Context) error {
	userID, ok := GetUserID(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	usage, err := h.profiles.Usage(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, usage)
}
