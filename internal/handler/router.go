package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes collects the handlers served by the API.
type Routes struct {
	Auth       *AuthHandler
	Tokens     TokenValidator
	Jobs       *JobHandler
	Titles     *TitleHandler
	Profile    *ProfileHandler
	CronSecret string
	// FrontendURL is the only origin allowed by CORS.
	FrontendURL string
}

// NewRouter builds the echo instance with middleware and every route registered.
func NewRouter(r Routes) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewAppValidator()
	e.HTTPErrorHandler = HTTPErrorHandler

	e.Use(middleware.RequestID())
	e.Use(RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{r.FrontendURL},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentType},
		ExposeHeaders:    []string{echo.HeaderXRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	e.GET("/health", func(c echo.Context) error {
		return JSON(c, http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")

	// Public
	auth := api.Group("/auth")
	auth.GET("/github", r.Auth.GitHubRedirect)
	auth.GET("/github/callback", r.Auth.GitHubCallback)
	auth.POST("/refresh", r.Auth.Refresh)

	// Scheduler trigger
	api.POST("/jobs/process", r.Jobs.Process, CronSecret(r.CronSecret))

	protected := api.Group("", JWTAuth(r.Tokens))
	protected.GET("/auth/me", r.Auth.Me)

	protected.POST("/jobs", r.Jobs.Create)
	protected.GET("/jobs", r.Jobs.List)
	protected.GET("/jobs/:id", r.Jobs.Get)

	protected.POST("/titles", r.Titles.Suggest)

	protected.GET("/profile", r.Profile.Get)
	protected.PUT("/profile/openai-key", r.Profile.SaveOpenAIKey)
	protected.PUT("/profile/github-repo", r.Profile.SelectRepository)
	protected.GET("/profile/usage", r.Profile.Usage)

	return e
}
