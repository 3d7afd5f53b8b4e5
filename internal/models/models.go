// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// HashScheme tags the format of a stored password hash so verification
// can dispatch without sniffing the hash itself.
type HashScheme string

const (
	// SchemeLegacy is the phased-out unsalted SHA-256 hex digest.
	SchemeLegacy HashScheme = "sha256"
	// SchemeBcrypt is the current password hashing scheme.
	SchemeBcrypt HashScheme = "bcrypt"
)

// User is a registered account. Email is unique and stored lowercased.
type User struct { //nolint:govet // fieldalignment: readability over optimization
	ID             int64      `db:"id" json:"id"`
	Email          string     `db:"email" json:"email"`
	PasswordHash   string     `db:"password_hash" json:"-"`
	PasswordScheme HashScheme `db:"password_scheme" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// ResetCode stores the hashed password reset code for a user. At most one
// row exists per user; issuing a new code replaces the previous row.
type ResetCode struct { //nolint:govet // fieldalignment: readability over optimization
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	CodeHash  string    `db:"code_hash" json:"-"` // SHA256 hash
	IssuedAt  time.Time `db:"issued_at" json:"issued_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	Consumed  bool      `db:"consumed" json:"consumed"`
}

// UserSetting is one key/value entry of a user's settings. Secret values
// (provider API keys) are stored encrypted with an "enc:" prefix.
type UserSetting struct {
	UserID    int64     `db:"user_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	Value     string    `db:"value" json:"-"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
