// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/cardforge/cardforge/internal/config"
	"github.com/cardforge/cardforge/internal/handlers"
	"github.com/cardforge/cardforge/internal/models"
	"github.com/cardforge/cardforge/internal/repository"
	"github.com/cardforge/cardforge/internal/services/keys"
	"github.com/cardforge/cardforge/internal/services/session"
	"github.com/cardforge/cardforge/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type accountFixture struct {
	e        *echo.Echo
	handlers *handlers.AccountHandlers
	repo     *repository.Repository
	sessions *session.Manager
	user     *models.User
}

func newAccountFixture(t *testing.T) *accountFixture {
	t.Helper()

	_, repo := testutil.NewTestDB(t)
	user := testutil.NewTestUser(t, repo, "alice@example.com", "Passw0rd!")

	cipher, err := keys.NewCipher(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)

	sessions, err := session.NewManager(&config.SessionConfig{
		CookieName: "cardforge_session",
		MaxAge:     3600,
		HashKey:    testHashKey,
	}, false)
	require.NoError(t, err)

	return &accountFixture{
		e:        echo.New(),
		handlers: handlers.NewAccount(repo, keys.NewService(repo, cipher)),
		repo:     repo,
		sessions: sessions,
		user:     user,
	}
}

func TestAccountRequiresAuth(t *testing.T) {
	f := newAccountFixture(t)

	c, rec := testutil.NewEchoContext(f.e, http.MethodGet, "/account/keys", nil)
	chained := session.LoadUser(f.sessions)(session.RequireAuth()(f.handlers.GetKeys))
	require.NoError(t, chained(c))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSaveAndGetKeys(t *testing.T) {
	f := newAccountFixture(t)
	cookie, err := f.sessions.Create(f.user.ID, f.user.Email)
	require.NoError(t, err)

	c, rec := testutil.NewEchoContext(f.e, http.MethodPut, "/account/keys",
		strings.NewReader(`{"keys":{"openai":"sk-test-1"}}`))
	c.Request().AddCookie(cookie)
	chained := session.LoadUser(f.sessions)(session.RequireAuth()(f.handlers.SaveKeys))
	require.NoError(t, chained(c))
	require.Equal(t, http.StatusOK, rec.Code)

	c, rec = testutil.NewEchoContext(f.e, http.MethodGet, "/account/keys", nil)
	c.Request().AddCookie(cookie)
	chained = session.LoadUser(f.sessions)(session.RequireAuth()(f.handlers.GetKeys))
	require.NoError(t, chained(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Keys map[string]string `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "sk-test-1", body.Keys["openai"])
}

func TestSaveAndGetPreferences(t *testing.T) {
	f := newAccountFixture(t)
	cookie, err := f.sessions.Create(f.user.ID, f.user.Email)
	require.NoError(t, err)

	c, rec := testutil.NewEchoContext(f.e, http.MethodPut, "/account/preferences",
		strings.NewReader(`{"preferences":{"deck_name":"Medicine","cards_per_page":"20"}}`))
	c.Request().AddCookie(cookie)
	chained := session.LoadUser(f.sessions)(session.RequireAuth()(f.handlers.SavePreferences))
	require.NoError(t, chained(c))
	require.Equal(t, http.StatusOK, rec.Code)

	c, rec = testutil.NewEchoContext(f.e, http.MethodGet, "/account/preferences", nil)
	c.Request().AddCookie(cookie)
	chained = session.LoadUser(f.sessions)(session.RequireAuth()(f.handlers.GetPreferences))
	require.NoError(t, chained(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Preferences map[string]string `json:"preferences"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Medicine", body.Preferences["deck_name"])
	assert.Equal(t, "20", body.Preferences["cards_per_page"])
}

func TestPreferences_TamperedSessionRejected(t *testing.T) {
	f := newAccountFixture(t)
	cookie, err := f.sessions.Create(f.user.ID, f.user.Email)
	require.NoError(t, err)
	cookie.Value += "tampered"

	c, rec := testutil.NewEchoContext(f.e, http.MethodGet, "/account/preferences", nil)
	c.Request().AddCookie(cookie)
	chained := session.LoadUser(f.sessions)(session.RequireAuth()(f.handlers.GetPreferences))
	require.NoError(t, chained(c))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
