// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package reset_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cardforge/cardforge/internal/repository"
	"github.com/cardforge/cardforge/internal/services/reset"
	"github.com/cardforge/cardforge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T) (*reset.Manager, *repository.Repository, *testClock, int64) {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	user := testutil.NewTestUser(t, repo, "alice@example.com", "Passw0rd!")
	clock := newTestClock()
	m := reset.NewManager(repo, 15*time.Minute).WithClock(clock.Now)
	return m, repo, clock, user.ID
}

func TestIssueAndVerify(t *testing.T) {
	m, _, _, userID := newTestManager(t)
	ctx := context.Background()

	code, err := m.Issue(ctx, userID)

	require.NoError(t, err)
	assert.Len(t, code, reset.CodeLength)

	status, err := m.Verify(ctx, userID, code)
	require.NoError(t, err)
	assert.Equal(t, reset.StatusValid, status)
}

func TestIssue_PlaintextNeverStored(t *testing.T) {
	m, repo, _, userID := newTestManager(t)
	ctx := context.Background()

	code, err := m.Issue(ctx, userID)
	require.NoError(t, err)

	stored, err := repo.GetResetCode(ctx, userID)
	require.NoError(t, err)
	assert.NotEqual(t, code, stored.CodeHash)
	assert.Equal(t, reset.HashCode(code), stored.CodeHash)
}

func TestVerify_WrongCode(t *testing.T) {
	m, _, _, userID := newTestManager(t)
	ctx := context.Background()

	_, err := m.Issue(ctx, userID)
	require.NoError(t, err)

	status, err := m.Verify(ctx, userID, "ZZZZZZ")
	require.NoError(t, err)
	assert.Equal(t, reset.StatusInvalid, status)
}

func TestVerify_NoActiveRequest(t *testing.T) {
	m, _, _, userID := newTestManager(t)

	status, err := m.Verify(context.Background(), userID, "ABCDEF")

	require.NoError(t, err)
	assert.Equal(t, reset.StatusNotFound, status)
}

func TestVerify_Expired(t *testing.T) {
	m, _, clock, userID := newTestManager(t)
	ctx := context.Background()

	code, err := m.Issue(ctx, userID)
	require.NoError(t, err)

	clock.Advance(16 * time.Minute)

	status, err := m.Verify(ctx, userID, code)
	require.NoError(t, err)
	assert.Equal(t, reset.StatusExpired, status)

	// The expired row is cleared; a second attempt finds nothing.
	status, err = m.Verify(ctx, userID, code)
	require.NoError(t, err)
	assert.Equal(t, reset.StatusNotFound, status)
}

func TestVerify_ReplayRejected(t *testing.T) {
	m, _, _, userID := newTestManager(t)
	ctx := context.Background()

	code, err := m.Issue(ctx, userID)
	require.NoError(t, err)

	status, err := m.Verify(ctx, userID, code)
	require.NoError(t, err)
	assert.Equal(t, reset.StatusValid, status)

	status, err = m.Verify(ctx, userID, code)
	require.NoError(t, err)
	assert.Equal(t, reset.StatusNotFound, status)
}

func TestIssue_InvalidatesPriorCode(t *testing.T) {
	m, _, _, userID := newTestManager(t)
	ctx := context.Background()

	first, err := m.Issue(ctx, userID)
	require.NoError(t, err)
	second, err := m.Issue(ctx, userID)
	require.NoError(t, err)

	// The first code is dead even though it has not expired.
	status, err := m.Verify(ctx, userID, first)
	require.NoError(t, err)
	assert.NotEqual(t, reset.StatusValid, status)

	status, err = m.Verify(ctx, userID, second)
	require.NoError(t, err)
	assert.Equal(t, reset.StatusValid, status)
}

func TestVerify_NormalizesCandidate(t *testing.T) {
	m, _, _, userID := newTestManager(t)
	ctx := context.Background()

	code, err := m.Issue(ctx, userID)
	require.NoError(t, err)

	status, err := m.Verify(ctx, userID, "  "+code+" ")
	require.NoError(t, err)
	assert.Equal(t, reset.StatusValid, status)
}

func TestHashCode_Deterministic(t *testing.T) {
	assert.Equal(t, reset.HashCode("ABC123"), reset.HashCode("ABC123"))
	assert.NotEqual(t, reset.HashCode("ABC123"), reset.HashCode("ABC124"))
	assert.Len(t, reset.HashCode("ABC123"), 64)
}
