// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package session

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// contextKey is the echo context key holding the session user.
const contextKey = "session_user"

// LoadUser returns middleware that decodes the session cookie and stores
// the session user in the echo context. Requests without a valid session
// pass through unauthenticated.
func LoadUser(m *Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(m.CookieName())
			if err == nil {
				if user, err := m.Validate(cookie); err == nil {
					c.Set(contextKey, user)
				}
			}
			return next(c)
		}
	}
}

// RequireAuth returns middleware that rejects unauthenticated requests.
func RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if UserFromContext(c) == nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
			}
			return next(c)
		}
	}
}

// UserFromContext returns the session user set by LoadUser, or nil.
func UserFromContext(c echo.Context) *User {
	user, _ := c.Get(contextKey).(*User)
	return user
}
