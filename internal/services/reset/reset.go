// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package reset issues and verifies time-limited, single-use password reset
// codes. Only the SHA-256 hash of a code is ever stored; the plaintext is
// returned once for out-of-band delivery.
package reset

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cardforge/cardforge/internal/models"
	"github.com/cardforge/cardforge/internal/repository"
)

const (
	// CodeLength is the length of a reset code in hex characters.
	CodeLength = 6
	// DefaultTTL is how long a reset code stays valid.
	DefaultTTL = 15 * time.Minute
)

// Status is the outcome of verifying a candidate code.
type Status int

const (
	// StatusValid means the code matched and has now been consumed.
	StatusValid Status = iota
	// StatusExpired means an unconsumed code existed but its TTL elapsed.
	StatusExpired
	// StatusInvalid means an active code existed but the candidate did not match.
	StatusInvalid
	// StatusNotFound means no active code exists for the identity.
	StatusNotFound
)

// Store is the subset of the account store the manager needs.
type Store interface {
	ReplaceResetCode(ctx context.Context, userID int64, codeHash string, issuedAt, expiresAt time.Time) error
	GetResetCode(ctx context.Context, userID int64) (*models.ResetCode, error)
	ConsumeResetCode(ctx context.Context, id int64) error
	DeleteResetCode(ctx context.Context, userID int64) error
}

// Manager issues and verifies reset codes.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager creates a Manager backed by the given store.
func NewManager(store Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}
}

// Issue generates a fresh reset code for the user, stores its hash and
// expiry, and invalidates any prior request. The returned plaintext is
// never persisted.
func (m *Manager) Issue(ctx context.Context, userID int64) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate reset code: %w", err)
	}

	issuedAt := m.now().UTC()
	expiresAt := issuedAt.Add(m.ttl)

	if err := m.store.ReplaceResetCode(ctx, userID, HashCode(code), issuedAt, expiresAt); err != nil {
		return "", fmt.Errorf("failed to store reset code: %w", err)
	}

	return code, nil
}

// Verify checks a candidate code against the user's active reset request.
// A matching code is marked consumed before StatusValid is returned, so a
// replay sees StatusNotFound. Expired rows are removed on detection for the
// same reason.
func (m *Manager) Verify(ctx context.Context, userID int64, candidate string) (Status, error) {
	rc, err := m.store.GetResetCode(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return StatusNotFound, nil
		}
		return StatusNotFound, fmt.Errorf("failed to load reset code: %w", err)
	}

	if rc.Consumed {
		return StatusNotFound, nil
	}

	if m.now().After(rc.ExpiresAt) {
		if err := m.store.DeleteResetCode(ctx, userID); err != nil {
			return StatusExpired, fmt.Errorf("failed to clear expired reset code: %w", err)
		}
		return StatusExpired, nil
	}

	candidateHash := HashCode(NormalizeCode(candidate))
	if subtle.ConstantTimeCompare([]byte(candidateHash), []byte(rc.CodeHash)) != 1 {
		return StatusInvalid, nil
	}

	if err := m.store.ConsumeResetCode(ctx, rc.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Another verification consumed it first.
			return StatusNotFound, nil
		}
		return StatusInvalid, fmt.Errorf("failed to consume reset code: %w", err)
	}

	return StatusValid, nil
}

// HashCode computes the SHA256 hash of a reset code.
func HashCode(code string) string {
	hash := sha256.Sum256([]byte(code))
	return hex.EncodeToString(hash[:])
}

// NormalizeCode trims whitespace and uppercases a user-supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// generateCode returns CodeLength uppercase hex characters from a
// cryptographically secure source.
func generateCode() (string, error) {
	bytes := make([]byte, (CodeLength+1)/2)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(bytes))[:CodeLength], nil
}

// WithClock overrides the manager's clock. Used in tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}
