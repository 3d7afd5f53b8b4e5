// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cardforge/cardforge/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// Hasher produces and verifies password hashes. New hashes always use the
// current scheme (bcrypt); verification additionally understands the legacy
// unsalted SHA-256 format so old accounts keep working until migrated.
type Hasher struct {
	cost int
}

// NewHasher creates a Hasher with the default bcrypt cost.
func NewHasher() *Hasher {
	return &Hasher{cost: bcrypt.DefaultCost}
}

// verifiers maps each scheme tag to its verification function. Both
// functions are constant-time with respect to secret material.
var verifiers = map[models.HashScheme]func(password, storedHash string) bool{
	models.SchemeBcrypt: verifyBcrypt,
	models.SchemeLegacy: verifyLegacy,
}

// Hash hashes a password with the current scheme. The salt is generated by
// bcrypt and embedded in the output.
func (h *Hasher) Hash(password string) (string, models.HashScheme, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), models.SchemeBcrypt, nil
}

// Verify reports whether password matches storedHash under the given scheme.
// Unknown schemes never match.
func (h *Hasher) Verify(password, storedHash string, scheme models.HashScheme) bool {
	verify, ok := verifiers[scheme]
	if !ok {
		return false
	}
	return verify(password, storedHash)
}

// NeedsMigration reports whether a stored hash should be re-hashed with the
// current scheme on the next successful login.
func (h *Hasher) NeedsMigration(scheme models.HashScheme) bool {
	return scheme != models.SchemeBcrypt
}

// DetectScheme classifies a stored hash for records imported without a
// scheme tag. A 64-char hex string without bcrypt's '$' separators is a
// legacy SHA-256 digest.
func DetectScheme(storedHash string) models.HashScheme {
	if len(storedHash) == 64 && !strings.Contains(storedHash, "$") {
		if _, err := hex.DecodeString(storedHash); err == nil {
			return models.SchemeLegacy
		}
	}
	return models.SchemeBcrypt
}

func verifyBcrypt(password, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)) == nil
}

func verifyLegacy(password, storedHash string) bool {
	digest := sha256.Sum256([]byte(password))
	computed := hex.EncodeToString(digest[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
