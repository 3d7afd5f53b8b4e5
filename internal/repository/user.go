// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"github.com/cardforge/cardforge/internal/models"
)

// CreateUser creates a new user. The caller is expected to have normalized
// the email address already.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, password_scheme, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		user.Email, user.PasswordHash, user.PasswordScheme, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return err
	}

	user.ID, err = res.LastInsertId()
	return err
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by their email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE email = ?`, email)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// UserExists checks if a user with the given email exists.
func (r *Repository) UserExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, email)
	return exists, err
}

// UpdateUserPassword overwrites a user's password hash and scheme tag in a
// single statement so the record is never half-migrated.
func (r *Repository) UpdateUserPassword(ctx context.Context, id int64, hash string, scheme models.HashScheme) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, password_scheme = ?, updated_at = ? WHERE id = ?`,
		hash, scheme, time.Now().UTC(), id)
	return err
}

// UpdateUserPasswordIf replaces a user's password hash and scheme only if
// the stored hash still equals oldHash. Returns ErrNotFound when another
// writer got there first.
func (r *Repository) UpdateUserPasswordIf(ctx context.Context, id int64, oldHash, newHash string, scheme models.HashScheme) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, password_scheme = ?, updated_at = ?
		 WHERE id = ? AND password_hash = ?`,
		newHash, scheme, time.Now().UTC(), id, oldHash)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountUsers returns the total number of users.
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users`)
	return count, err
}
