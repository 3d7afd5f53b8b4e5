// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session issues and validates signed session cookies. The cookie
// carries only the logical session identity (user id + email); all account
// state lives in the store.
package session

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cardforge/cardforge/internal/config"
	"github.com/gorilla/securecookie"
)

// ErrInvalidSession is returned for missing, tampered or expired cookies.
var ErrInvalidSession = errors.New("invalid session")

// User is the identity stored in a valid session cookie.
type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// payload is the cookie value. The expiry is embedded and checked on
// decode, in addition to securecookie's own MaxAge check.
type payload struct {
	User      User  `json:"user"`
	ExpiresAt int64 `json:"expires_at"`
}

// Manager creates and validates session cookies.
type Manager struct {
	codec      *securecookie.SecureCookie
	cookieName string
	maxAge     time.Duration
	secure     bool
}

// NewManager creates a session manager from config. The hash key is
// required and must be 32 or 64 hex-encoded bytes; a block key enables
// cookie encryption on top of signing.
func NewManager(cfg *config.SessionConfig, secure bool) (*Manager, error) {
	hashKey, err := hex.DecodeString(cfg.HashKey)
	if err != nil || (len(hashKey) != 32 && len(hashKey) != 64) {
		return nil, fmt.Errorf("invalid session hash key: want 32 or 64 hex-encoded bytes")
	}

	var blockKey []byte
	if cfg.BlockKey != "" {
		blockKey, err = hex.DecodeString(cfg.BlockKey)
		if err != nil || (len(blockKey) != 16 && len(blockKey) != 24 && len(blockKey) != 32) {
			return nil, fmt.Errorf("invalid session block key: want 16, 24 or 32 hex-encoded bytes")
		}
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(cfg.MaxAge)

	return &Manager{
		codec:      codec,
		cookieName: cfg.CookieName,
		maxAge:     time.Duration(cfg.MaxAge) * time.Second,
		secure:     secure,
	}, nil
}

// CookieName returns the configured session cookie name.
func (m *Manager) CookieName() string {
	return m.cookieName
}

// Create issues a session cookie for the given user.
func (m *Manager) Create(userID int64, email string) (*http.Cookie, error) {
	value := payload{
		User:      User{ID: userID, Email: email},
		ExpiresAt: time.Now().Add(m.maxAge).Unix(),
	}

	encoded, err := m.codec.Encode(m.cookieName, value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}

	return &http.Cookie{
		Name:     m.cookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(m.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// Validate decodes and checks a session cookie, returning the session user.
func (m *Manager) Validate(cookie *http.Cookie) (*User, error) {
	if cookie == nil || cookie.Value == "" {
		return nil, ErrInvalidSession
	}

	var value payload
	if err := m.codec.Decode(m.cookieName, cookie.Value, &value); err != nil {
		return nil, ErrInvalidSession
	}

	if time.Now().Unix() > value.ExpiresAt {
		return nil, ErrInvalidSession
	}

	return &value.User, nil
}

// Destroy returns an expired cookie that clears the session.
func (m *Manager) Destroy() *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
