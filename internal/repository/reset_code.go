// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"github.com/cardforge/cardforge/internal/models"
)

// ReplaceResetCode stores a hashed reset code for a user, replacing any
// prior request for the same user in one statement. Issuing a new code
// therefore always invalidates the previous one.
func (r *Repository) ReplaceResetCode(ctx context.Context, userID int64, codeHash string, issuedAt, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reset_codes (user_id, code_hash, issued_at, expires_at, consumed)
		 VALUES (?, ?, ?, ?, 0)
		 ON CONFLICT (user_id) DO UPDATE SET
		   code_hash = excluded.code_hash,
		   issued_at = excluded.issued_at,
		   expires_at = excluded.expires_at,
		   consumed = 0`,
		userID, codeHash, issuedAt, expiresAt)
	return err
}

// GetResetCode retrieves the reset code row for a user.
func (r *Repository) GetResetCode(ctx context.Context, userID int64) (*models.ResetCode, error) {
	var code models.ResetCode
	err := r.db.GetContext(ctx, &code, `SELECT * FROM reset_codes WHERE user_id = ?`, userID)
	if err != nil {
		return nil, wrapError(err)
	}
	return &code, nil
}

// ConsumeResetCode marks a reset code as consumed. The consumed guard makes
// the mark atomic: two concurrent verifications cannot both succeed.
func (r *Repository) ConsumeResetCode(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reset_codes SET consumed = 1 WHERE id = ? AND consumed = 0`, id)
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

// DeleteResetCode removes the reset code row for a user.
func (r *Repository) DeleteResetCode(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reset_codes WHERE user_id = ?`, userID)
	return err
}

// DeleteExpiredResetCodes removes reset codes past their expiry.
func (r *Repository) DeleteExpiredResetCodes(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reset_codes WHERE expires_at < ?`, time.Now().UTC())
	return err
}
