package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openai/openai-go/option"

	"github.com/sumire/issuedraft/internal/config"
	"github.com/sumire/issuedraft/internal/github"
	"github.com/sumire/issuedraft/internal/handler"
	"github.com/sumire/issuedraft/internal/llm"
	"github.com/sumire/issuedraft/internal/queue"
	"github.com/sumire/issuedraft/internal/repository"
	"github.com/sumire/issuedraft/internal/secret"
	"github.com/sumire/issuedraft/internal/service"
	"github.com/sumire/issuedraft/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})))

	ctx := context.Background()

	db, err := repository.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	slog.Info("database connected", "driver", cfg.DBDriver)

	box, err := secret.NewBox(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("init secret box: %w", err)
	}

	userRepo := repository.NewUserRepository(db)
	jobRepo := repository.NewJobRepository(db)
	profileRepo := repository.NewProfileRepository(db, box)
	connRepo := repository.NewGitHubConnectionRepository(db, box)

	jobQueue := queue.New(jobRepo, cfg.JobMaxRetries)

	var llmOpts []option.RequestOption
	if cfg.OpenAIBaseURL != "" {
		llmOpts = append(llmOpts, option.WithBaseURL(cfg.OpenAIBaseURL))
	}
	clients := llm.NewOpenAIFactory(cfg.OpenAIModel, llmOpts...)

	authSvc := service.NewAuthService(userRepo, connRepo, service.AuthConfig{
		GitHubClientID:     cfg.GitHubClientID,
		GitHubClientSecret: cfg.GitHubClientSecret,
		GitHubAPIURL:       cfg.GitHubAPIURL,
		JWTSecret:          cfg.JWTSecret,
		FrontendURL:        cfg.FrontendURL,
	})
	profileSvc := service.NewProfileService(profileRepo, connRepo)

	processor := worker.NewProcessor(worker.Deps{
		Queue:       jobQueue,
		Profiles:    profileRepo,
		Connections: connRepo,
		Content:     service.NewIssueGenerator(clients, cfg.OpenAIModel),
		Titles:      service.NewTitleGenerator(nil),
		Publisher:   github.NewPublisher(github.WithBaseURL(cfg.GitHubAPIURL)),
	}, cfg.ExternalCallTimeout)

	var scheduler *worker.Scheduler
	if cfg.WorkerSchedule != "" {
		scheduler, err = worker.NewScheduler(processor, cfg.WorkerSchedule, cfg.WorkerBatchSize)
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		scheduler.Start()
	} else {
		slog.Info("job scheduler disabled, jobs run via /api/v1/jobs/process")
	}

	e := handler.NewRouter(handler.Routes{
		Auth:        handler.NewAuthHandler(authSvc),
		Tokens:      authSvc,
		Jobs:        handler.NewJobHandler(jobQueue, processor, profileSvc, cfg.WorkerBatchSize),
		Titles:      handler.NewTitleHandler(profileSvc, clients, cfg.ExternalCallTimeout),
		Profile:     handler.NewProfileHandler(profileSvc),
		CronSecret:  cfg.CronSecret,
		FrontendURL: cfg.FrontendURL,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			slog.Error("scheduler shutdown", "error", err)
		}
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
