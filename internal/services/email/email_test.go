// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email_test

import (
	"context"
	"testing"

	"github.com/cardforge/cardforge/internal/config"
	"github.com/cardforge/cardforge/internal/i18n"
	"github.com/cardforge/cardforge/internal/services/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewService_RequiresFrom(t *testing.T) {
	_, err := email.NewService(&config.SMTPConfig{})
	assert.ErrorContains(t, err, "from address")
}

func TestNewService_DevModeWithoutHost(t *testing.T) {
	svc, err := email.NewService(&config.SMTPConfig{From: "noreply@example.com"})
	require.NoError(t, err)
	assert.True(t, svc.DevMode())
}

func TestNewService_RealModeWithHost(t *testing.T) {
	svc, err := email.NewService(&config.SMTPConfig{
		Host: "smtp.example.com",
		Port: 587,
		From: "noreply@example.com",
	})
	require.NoError(t, err)
	assert.False(t, svc.DevMode())
}

func TestDevModeSends(t *testing.T) {
	require.NoError(t, i18n.Init())
	svc, err := email.NewService(&config.SMTPConfig{From: "noreply@example.com"})
	require.NoError(t, err)
	ctx := context.Background()

	// Dev mode logs instead of dialing; both sends succeed without SMTP.
	assert.NoError(t, svc.SendWelcome(ctx, "alice@example.com"))
	assert.NoError(t, svc.SendResetCode(ctx, "alice@example.com", "A1B2C3"))
}
