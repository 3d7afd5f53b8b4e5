// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"strings"
	"time"

	"github.com/cardforge/cardforge/internal/models"
)

// UpsertUserSetting stores one key/value entry of a user's settings.
func (r *Repository) UpsertUserSetting(ctx context.Context, userID int64, name, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_settings (user_id, name, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, name) DO UPDATE SET
		   value = excluded.value,
		   updated_at = excluded.updated_at`,
		userID, name, value, time.Now().UTC())
	return err
}

// GetUserSettings retrieves all settings for a user with the given name
// prefix (e.g. "apikey." for stored provider API keys).
func (r *Repository) GetUserSettings(ctx context.Context, userID int64, prefix string) ([]models.UserSetting, error) {
	var settings []models.UserSetting
	err := r.db.SelectContext(ctx, &settings,
		`SELECT * FROM user_settings WHERE user_id = ? AND name LIKE ? ESCAPE '\' ORDER BY name`,
		userID, likePrefix(prefix))
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// DeleteUserSetting removes one settings entry.
func (r *Repository) DeleteUserSetting(ctx context.Context, userID int64, name string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_settings WHERE user_id = ? AND name = ?`, userID, name)
	return err
}

// likePrefix escapes LIKE metacharacters so a prefix match stays a prefix match.
func likePrefix(prefix string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(prefix) + "%"
}
