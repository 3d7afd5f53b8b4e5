// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/cardforge/cardforge/internal/models"
	"github.com/cardforge/cardforge/internal/repository"
	"github.com/cardforge/cardforge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(t *testing.T, repo *repository.Repository, email string) *models.User {
	t.Helper()
	user := &models.User{
		Email:          email,
		PasswordHash:   "hash-" + email,
		PasswordScheme: models.SchemeBcrypt,
	}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

func TestCreateUser(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := newUser(t, repo, "alice@example.com")

	assert.NotZero(t, user.ID)
	assert.False(t, user.CreatedAt.IsZero())

	got, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, models.SchemeBcrypt, got.PasswordScheme)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	newUser(t, repo, "alice@example.com")
	err := repo.CreateUser(context.Background(), &models.User{
		Email:          "alice@example.com",
		PasswordHash:   "other",
		PasswordScheme: models.SchemeBcrypt,
	})

	assert.Error(t, err)
}

func TestGetUserByEmail_NotFound(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	_, err := repo.GetUserByEmail(context.Background(), "nobody@example.com")

	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUserExists(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	newUser(t, repo, "alice@example.com")

	exists, err := repo.UserExists(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.UserExists(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUpdateUserPassword(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := newUser(t, repo, "alice@example.com")

	require.NoError(t, repo.UpdateUserPassword(ctx, user.ID, "new-hash", models.SchemeBcrypt))

	got, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
}

func TestUpdateUserPasswordIf(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := newUser(t, repo, "alice@example.com")

	err := repo.UpdateUserPasswordIf(ctx, user.ID, user.PasswordHash, "migrated", models.SchemeBcrypt)
	require.NoError(t, err)

	// A second writer holding the stale hash loses the race.
	err = repo.UpdateUserPasswordIf(ctx, user.ID, user.PasswordHash, "migrated-again", models.SchemeBcrypt)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	got, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "migrated", got.PasswordHash)
}

func TestCountUsers(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	count, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	newUser(t, repo, "alice@example.com")
	newUser(t, repo, "bob@example.com")

	count, err = repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestReplaceResetCode(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := newUser(t, repo, "alice@example.com")
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.ReplaceResetCode(ctx, user.ID, "hash-one", now, now.Add(15*time.Minute)))

	code, err := repo.GetResetCode(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash-one", code.CodeHash)
	assert.False(t, code.Consumed)

	// Replacing resets the consumed flag and swaps the hash.
	require.NoError(t, repo.ConsumeResetCode(ctx, code.ID))
	require.NoError(t, repo.ReplaceResetCode(ctx, user.ID, "hash-two", now, now.Add(15*time.Minute)))

	code, err = repo.GetResetCode(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash-two", code.CodeHash)
	assert.False(t, code.Consumed)
}

func TestConsumeResetCode_OnlyOnce(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := newUser(t, repo, "alice@example.com")
	now := time.Now().UTC()

	require.NoError(t, repo.ReplaceResetCode(ctx, user.ID, "hash", now, now.Add(15*time.Minute)))
	code, err := repo.GetResetCode(ctx, user.ID)
	require.NoError(t, err)

	require.NoError(t, repo.ConsumeResetCode(ctx, code.ID))
	assert.ErrorIs(t, repo.ConsumeResetCode(ctx, code.ID), repository.ErrNotFound)
}

func TestDeleteResetCode(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := newUser(t, repo, "alice@example.com")
	now := time.Now().UTC()

	require.NoError(t, repo.ReplaceResetCode(ctx, user.ID, "hash", now, now.Add(15*time.Minute)))
	require.NoError(t, repo.DeleteResetCode(ctx, user.ID))

	_, err := repo.GetResetCode(ctx, user.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteExpiredResetCodes(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	expired := newUser(t, repo, "expired@example.com")
	active := newUser(t, repo, "active@example.com")
	now := time.Now().UTC()

	require.NoError(t, repo.ReplaceResetCode(ctx, expired.ID, "old", now.Add(-time.Hour), now.Add(-45*time.Minute)))
	require.NoError(t, repo.ReplaceResetCode(ctx, active.ID, "fresh", now, now.Add(15*time.Minute)))

	require.NoError(t, repo.DeleteExpiredResetCodes(ctx))

	_, err := repo.GetResetCode(ctx, expired.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.GetResetCode(ctx, active.ID)
	assert.NoError(t, err)
}

func TestUserSettings(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := newUser(t, repo, "alice@example.com")

	require.NoError(t, repo.UpsertUserSetting(ctx, user.ID, "apikey.openai", "sk-1"))
	require.NoError(t, repo.UpsertUserSetting(ctx, user.ID, "apikey.anthropic", "sk-2"))
	require.NoError(t, repo.UpsertUserSetting(ctx, user.ID, "pref.deck_name", "Medicine"))

	keys, err := repo.GetUserSettings(ctx, user.ID, "apikey.")
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "apikey.anthropic", keys[0].Name)
	assert.Equal(t, "apikey.openai", keys[1].Name)

	// Upsert overwrites in place.
	require.NoError(t, repo.UpsertUserSetting(ctx, user.ID, "apikey.openai", "sk-3"))
	keys, err = repo.GetUserSettings(ctx, user.ID, "apikey.")
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "sk-3", keys[1].Value)
}

func TestUserSettings_ScopedPerUser(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	alice := newUser(t, repo, "alice@example.com")
	bob := newUser(t, repo, "bob@example.com")

	require.NoError(t, repo.UpsertUserSetting(ctx, alice.ID, "pref.deck_name", "Medicine"))

	settings, err := repo.GetUserSettings(ctx, bob.ID, "pref.")
	require.NoError(t, err)
	assert.Empty(t, settings)
}

func TestDeleteUserSetting(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := newUser(t, repo, "alice@example.com")

	require.NoError(t, repo.UpsertUserSetting(ctx, user.ID, "pref.deck_name", "Medicine"))
	require.NoError(t, repo.DeleteUserSetting(ctx, user.ID, "pref.deck_name"))

	settings, err := repo.GetUserSettings(ctx, user.ID, "pref.")
	require.NoError(t, err)
	assert.Empty(t, settings)
}
