// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cardforge/cardforge/internal/config"
	"github.com/cardforge/cardforge/internal/i18n"
	"github.com/wneessen/go-mail"
)

// Service sends account emails via SMTP using go-mail. When no SMTP host is
// configured it runs in dev mode: messages are logged instead of sent, so
// the auth flows work in local development without a mail server.
type Service struct {
	cfg     *config.SMTPConfig
	devMode bool
}

// NewService creates a new email service.
func NewService(cfg *config.SMTPConfig) (*Service, error) {
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}

	svc := &Service{cfg: cfg, devMode: cfg.Host == ""}
	if svc.devMode {
		slog.Info("email_dev_mode", "reason", "no SMTP host configured")
	}
	return svc, nil
}

// DevMode reports whether emails are logged instead of sent.
func (s *Service) DevMode() bool {
	return s.devMode
}

// SendWelcome sends the post-registration welcome email.
func (s *Service) SendWelcome(ctx context.Context, to string) error {
	subject := i18n.T(ctx, "email_welcome_subject")
	body := i18n.T(ctx, "email_welcome_body")
	return s.send(to, subject, body)
}

// SendResetCode mails a password reset code. The code is only ever sent
// out-of-band; it is never persisted in plaintext.
func (s *Service) SendResetCode(ctx context.Context, to, code string) error {
	subject := i18n.T(ctx, "email_reset_subject")
	body := i18n.TData(ctx, "email_reset_body", map[string]any{
		"Code": code,
	})
	return s.send(to, subject, body)
}

// send delivers an email via SMTP, or logs it in dev mode.
func (s *Service) send(to, subject, body string) error {
	if s.devMode {
		slog.Info("email_simulated", "to", to, "subject", subject, "body", body)
		return nil
	}

	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}

	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// Use implicit TLS (SSL) for port 465, STARTTLS for others
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSend(msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}
