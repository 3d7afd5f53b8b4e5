// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/cardforge/cardforge/internal/repository"
	"github.com/cardforge/cardforge/internal/services/keys"
	"github.com/cardforge/cardforge/internal/services/session"
	"github.com/labstack/echo/v4"
)

// prefPrefix namespaces preferences within the user settings table.
const prefPrefix = "pref."

// AccountHandlers contains handlers for authenticated account settings.
type AccountHandlers struct {
	repo *repository.Repository
	keys *keys.Service
}

// NewAccount creates a new AccountHandlers instance.
func NewAccount(repo *repository.Repository, keysService *keys.Service) *AccountHandlers {
	return &AccountHandlers{repo: repo, keys: keysService}
}

// GetKeys returns the user's provider API keys, decrypted.
func (h *AccountHandlers) GetKeys(c echo.Context) error {
	user := session.UserFromContext(c)
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
	}

	apiKeys, err := h.keys.Get(c.Request().Context(), user.ID)
	if err != nil {
		slog.Error("get_keys_failed", "error", err, "user_id", user.ID)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "temporarily unavailable, please retry"})
	}

	return c.JSON(http.StatusOK, map[string]any{"keys": apiKeys})
}

// SaveKeysRequest is the request body for storing provider API keys.
type SaveKeysRequest struct {
	Keys map[string]string `json:"keys"`
}

// SaveKeys encrypts and stores provider API keys for the user.
func (h *AccountHandlers) SaveKeys(c echo.Context) error {
	user := session.UserFromContext(c)
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
	}

	var req SaveKeysRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	if err := h.keys.Save(c.Request().Context(), user.ID, req.Keys); err != nil {
		slog.Error("save_keys_failed", "error", err, "user_id", user.ID)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "temporarily unavailable, please retry"})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// GetPreferences returns the user's preferences.
func (h *AccountHandlers) GetPreferences(c echo.Context) error {
	user := session.UserFromContext(c)
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
	}

	settings, err := h.repo.GetUserSettings(c.Request().Context(), user.ID, prefPrefix)
	if err != nil {
		slog.Error("get_preferences_failed", "error", err, "user_id", user.ID)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "temporarily unavailable, please retry"})
	}

	prefs := make(map[string]string, len(settings))
	for _, setting := range settings {
		prefs[strings.TrimPrefix(setting.Name, prefPrefix)] = setting.Value
	}

	return c.JSON(http.StatusOK, map[string]any{"preferences": prefs})
}

// SavePreferencesRequest is the request body for storing preferences.
type SavePreferencesRequest struct {
	Preferences map[string]string `json:"preferences"`
}

// SavePreferences merges the given preferences into the user's settings.
func (h *AccountHandlers) SavePreferences(c echo.Context) error {
	user := session.UserFromContext(c)
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
	}

	var req SavePreferencesRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	for name, value := range req.Preferences {
		if err := h.repo.UpsertUserSetting(c.Request().Context(), user.ID, prefPrefix+name, value); err != nil {
			slog.Error("save_preferences_failed", "error", err, "user_id", user.ID)
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "temporarily unavailable, please retry"})
		}
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
