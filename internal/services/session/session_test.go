// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package session_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/cardforge/cardforge/internal/config"
	"github.com/cardforge/cardforge/internal/services/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	// 32 bytes, hex encoded.
	testHashKey  = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	testBlockKey = "202122232425262728292a2b2c2d2e2f303132333435363738393a3b3c3d3e3f"
)

func newTestManager(t *testing.T) *session.Manager {
	t.Helper()
	m, err := session.NewManager(&config.SessionConfig{
		CookieName: "cardforge_session",
		MaxAge:     3600,
		HashKey:    testHashKey,
	}, false)
	require.NoError(t, err)
	return m
}

func TestNewManager_InvalidHashKey(t *testing.T) {
	tests := []struct {
		name    string
		hashKey string
	}{
		{"empty", ""},
		{"not hex", "zz"},
		{"too short", "0001020304"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := session.NewManager(&config.SessionConfig{
				CookieName: "s",
				MaxAge:     3600,
				HashKey:    tt.hashKey,
			}, false)
			assert.ErrorContains(t, err, "invalid session hash key")
		})
	}
}

func TestNewManager_InvalidBlockKey(t *testing.T) {
	_, err := session.NewManager(&config.SessionConfig{
		CookieName: "s",
		MaxAge:     3600,
		HashKey:    testHashKey,
		BlockKey:   "abcd",
	}, false)

	assert.ErrorContains(t, err, "invalid session block key")
}

func TestCreateAndValidate(t *testing.T) {
	m := newTestManager(t)

	cookie, err := m.Create(42, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "cardforge_session", cookie.Name)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	user, err := m.Validate(cookie)
	require.NoError(t, err)
	assert.EqualValues(t, 42, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
}

func TestValidate_TamperedCookie(t *testing.T) {
	m := newTestManager(t)

	cookie, err := m.Create(42, "alice@example.com")
	require.NoError(t, err)
	cookie.Value = strings.ToUpper(cookie.Value)

	_, err = m.Validate(cookie)
	assert.ErrorIs(t, err, session.ErrInvalidSession)
}

func TestValidate_MissingCookie(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Validate(nil)
	assert.ErrorIs(t, err, session.ErrInvalidSession)

	_, err = m.Validate(&http.Cookie{Name: "cardforge_session"})
	assert.ErrorIs(t, err, session.ErrInvalidSession)
}

func TestValidate_WrongKey(t *testing.T) {
	m := newTestManager(t)
	cookie, err := m.Create(42, "alice@example.com")
	require.NoError(t, err)

	other, err := session.NewManager(&config.SessionConfig{
		CookieName: "cardforge_session",
		MaxAge:     3600,
		HashKey:    testBlockKey,
	}, false)
	require.NoError(t, err)

	_, err = other.Validate(cookie)
	assert.ErrorIs(t, err, session.ErrInvalidSession)
}

func TestEncryptedCookie(t *testing.T) {
	m, err := session.NewManager(&config.SessionConfig{
		CookieName: "cardforge_session",
		MaxAge:     3600,
		HashKey:    testHashKey,
		BlockKey:   testBlockKey,
	}, true)
	require.NoError(t, err)

	cookie, err := m.Create(7, "bob@example.com")
	require.NoError(t, err)
	assert.True(t, cookie.Secure)
	assert.NotContains(t, cookie.Value, "bob@example.com")

	user, err := m.Validate(cookie)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", user.Email)
}

func TestDestroy(t *testing.T) {
	m := newTestManager(t)

	cookie := m.Destroy()

	assert.Equal(t, "cardforge_session", cookie.Name)
	assert.Empty(t, cookie.Value)
	assert.Equal(t, -1, cookie.MaxAge)
}
