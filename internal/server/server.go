// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cardforge/cardforge/internal/config"
	"github.com/cardforge/cardforge/internal/database"
	"github.com/cardforge/cardforge/internal/handlers"
	"github.com/cardforge/cardforge/internal/i18n"
	"github.com/cardforge/cardforge/internal/repository"
	"github.com/cardforge/cardforge/internal/services/auth"
	"github.com/cardforge/cardforge/internal/services/email"
	"github.com/cardforge/cardforge/internal/services/keys"
	"github.com/cardforge/cardforge/internal/services/ratelimit"
	"github.com/cardforge/cardforge/internal/services/reset"
	"github.com/cardforge/cardforge/internal/services/session"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
)

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	// Database
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	// i18n
	if initErr := i18n.Init(); initErr != nil {
		return fmt.Errorf("failed to init i18n: %w", initErr)
	}

	// Repository
	repo := repository.New(db)

	// Services
	mailer, err := email.NewService(&cfg.SMTP)
	if err != nil {
		return fmt.Errorf("failed to create email service: %w", err)
	}

	limiter := ratelimit.New(cfg.Auth.RateLimitAttempts, time.Duration(cfg.Auth.RateLimitWindow)*time.Second)
	resets := reset.NewManager(repo, time.Duration(cfg.Auth.ResetCodeTTL)*time.Minute)
	authService := auth.NewService(repo, limiter, resets, mailer, auth.Options{
		RegistrationOpen: cfg.Auth.RegistrationOpen,
		StoreTimeout:     time.Duration(cfg.Auth.StoreTimeout) * time.Second,
	})

	secure := strings.HasPrefix(cfg.Server.BaseURL, "https://")
	sessions, err := session.NewManager(&cfg.Session, secure)
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}

	encryptionKey, err := keys.LoadKey(&cfg.Keys)
	if err != nil {
		return fmt.Errorf("failed to load settings encryption key: %w", err)
	}
	cipher, err := keys.NewCipher(encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to create settings cipher: %w", err)
	}
	keysService := keys.NewService(repo, cipher)

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e, cfg)
	setupRoutes(e, repo, authService, sessions, keysService)

	return startWithGracefulShutdown(ctx, e, cfg)
}

func setupRoutes(e *echo.Echo, repo *repository.Repository, authService *auth.Service, sessions *session.Manager, keysService *keys.Service) {
	h := handlers.New(repo)
	authHandlers := handlers.NewAuth(authService, sessions)
	accountHandlers := handlers.NewAccount(repo, keysService)

	e.GET("/health", h.Health)

	authGroup := e.Group("/auth")
	authGroup.POST("/register", authHandlers.Register)
	authGroup.POST("/login", authHandlers.Login)
	authGroup.POST("/logout", authHandlers.Logout)
	authGroup.POST("/password-reset", authHandlers.RequestPasswordReset)
	authGroup.POST("/password-reset/confirm", authHandlers.ConfirmPasswordReset)

	accountGroup := e.Group("/account", session.LoadUser(sessions), session.RequireAuth())
	accountGroup.GET("/keys", accountHandlers.GetKeys)
	accountGroup.PUT("/keys", accountHandlers.SaveKeys)
	accountGroup.GET("/preferences", accountHandlers.GetPreferences)
	accountGroup.PUT("/preferences", accountHandlers.SavePreferences)
}

func startWithGracefulShutdown(ctx context.Context, e *echo.Echo, cfg *config.Config) error {
	errChan := make(chan error, 1)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		slog.Info("Server running", "url", cfg.Server.BaseURL)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	return nil
}
