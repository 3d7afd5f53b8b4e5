// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cardforge/cardforge/internal/i18n"
	"github.com/cardforge/cardforge/internal/services/auth"
	"github.com/cardforge/cardforge/internal/services/session"
	"github.com/labstack/echo/v4"
)

// AuthHandlers contains handlers for authentication.
type AuthHandlers struct {
	auth     *auth.Service
	sessions *session.Manager
}

// NewAuth creates a new AuthHandlers instance.
func NewAuth(authService *auth.Service, sessions *session.Manager) *AuthHandlers {
	return &AuthHandlers{
		auth:     authService,
		sessions: sessions,
	}
}

// RegisterRequest is the request body for registration.
type RegisterRequest struct {
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// Register creates a new account and starts a session.
func (h *AuthHandlers) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	user, err := h.auth.Register(c.Request().Context(), req.Email, req.Password, req.PasswordConfirmation)
	if err != nil {
		return h.writeAuthError(c, err)
	}

	cookie, err := h.sessions.Create(user.ID, user.Email)
	if err != nil {
		slog.Error("session_create_failed", "error", err, "user_id", user.ID)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create session"})
	}
	c.SetCookie(cookie)

	return c.JSON(http.StatusCreated, map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
	})
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates a user and starts a session.
func (h *AuthHandlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	user, err := h.auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return h.writeAuthError(c, err)
	}

	cookie, err := h.sessions.Create(user.ID, user.Email)
	if err != nil {
		slog.Error("session_create_failed", "error", err, "user_id", user.ID)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create session"})
	}
	c.SetCookie(cookie)

	return c.JSON(http.StatusOK, map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
	})
}

// Logout clears the session cookie.
func (h *AuthHandlers) Logout(c echo.Context) error {
	c.SetCookie(h.sessions.Destroy())
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ResetRequestRequest is the request body for requesting a password reset.
type ResetRequestRequest struct {
	Email string `json:"email"`
}

// RequestPasswordReset issues a reset code. The response is identical
// whether or not the account exists.
func (h *AuthHandlers) RequestPasswordReset(c echo.Context) error {
	var req ResetRequestRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	if err := h.auth.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return h.writeAuthError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": i18n.T(c.Request().Context(), "reset_request_response"),
	})
}

// ResetConfirmRequest is the request body for completing a password reset.
type ResetConfirmRequest struct {
	Email                string `json:"email"`
	Code                 string `json:"code"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// ConfirmPasswordReset verifies a reset code and sets the new password.
func (h *AuthHandlers) ConfirmPasswordReset(c echo.Context) error {
	var req ResetConfirmRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	err := h.auth.ConfirmPasswordReset(c.Request().Context(), req.Email, req.Code, req.Password, req.PasswordConfirmation)
	if err != nil {
		return h.writeAuthError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": i18n.T(c.Request().Context(), "reset_success"),
	})
}

// writeAuthError maps auth service errors to HTTP responses without leaking
// anything beyond the taxonomy.
func (h *AuthHandlers) writeAuthError(c echo.Context, err error) error {
	var rateErr *auth.RateLimitError
	if errors.As(err, &rateErr) {
		retryAfter := int(rateErr.RetryAfter.Seconds()) + 1
		c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
		return c.JSON(http.StatusTooManyRequests, map[string]any{
			"error":       "too many attempts",
			"retry_after": retryAfter,
		})
	}

	var pwErr *auth.PasswordValidationError
	if errors.As(err, &pwErr) {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"error":   "password does not meet requirements",
			"reasons": pwErr.Messages(),
		})
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	case errors.Is(err, auth.ErrUserExists):
		return c.JSON(http.StatusConflict, map[string]string{"error": "user already exists"})
	case errors.Is(err, auth.ErrInvalidEmail):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid email format"})
	case errors.Is(err, auth.ErrPasswordMismatch):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "passwords do not match"})
	case errors.Is(err, auth.ErrRegistrationClosed):
		return c.JSON(http.StatusForbidden, map[string]string{"error": "registration is closed"})
	case errors.Is(err, auth.ErrInvalidOrExpiredCode):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid or expired verification code"})
	case errors.Is(err, auth.ErrStoreUnavailable):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "temporarily unavailable, please retry"})
	default:
		slog.Error("auth_handler_error", "error", err, "path", c.Path())
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
