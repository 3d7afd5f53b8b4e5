// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth implements the account-security core: registration, login
// with transparent hash migration, and the password reset flows. All state
// mutation goes through the injected account store; rate limiting and reset
// code management are injected as well so tests can use in-memory fakes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/cardforge/cardforge/internal/models"
	"github.com/cardforge/cardforge/internal/repository"
	"github.com/cardforge/cardforge/internal/services/ratelimit"
	"github.com/cardforge/cardforge/internal/services/reset"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserExists           = errors.New("user already exists")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidEmail         = errors.New("invalid email format")
	ErrPasswordMismatch     = errors.New("passwords do not match")
	ErrRegistrationClosed   = errors.New("registration is closed")
	ErrInvalidOrExpiredCode = errors.New("invalid or expired verification code")
	ErrStoreUnavailable     = errors.New("account store unavailable")
)

// RateLimitError reports that an operation was blocked by the rate limiter.
type RateLimitError struct {
	Operation  ratelimit.Operation
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many %s attempts, retry after %s", e.Operation, e.RetryAfter.Round(time.Second))
}

// dummyHash is used for constant-time login to prevent timing attacks
// revealing whether an identity exists.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

// Mailer delivers account emails. Sends are fire-and-forget from the auth
// flows: failures are logged, never propagated.
type Mailer interface {
	SendWelcome(ctx context.Context, to string) error
	SendResetCode(ctx context.Context, to, code string) error
}

// Options configures a Service.
type Options struct {
	RegistrationOpen bool
	StoreTimeout     time.Duration
}

// Service orchestrates the auth flows.
type Service struct {
	repo      *repository.Repository
	hasher    *Hasher
	validator *PasswordValidator
	limiter   *ratelimit.Limiter
	resets    *reset.Manager
	mailer    Mailer
	opts      Options
}

// NewService creates a new auth service.
func NewService(repo *repository.Repository, limiter *ratelimit.Limiter, resets *reset.Manager, mailer Mailer, opts Options) *Service {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	return &Service{
		repo:      repo,
		hasher:    NewHasher(),
		validator: DefaultPasswordValidator(),
		limiter:   limiter,
		resets:    resets,
		mailer:    mailer,
		opts:      opts,
	}
}

// PasswordValidator returns the password validator for use in handlers.
func (s *Service) PasswordValidator() *PasswordValidator {
	return s.validator
}

// NormalizeEmail lowercases and trims an email address. All identity lookups
// and rate limit keys use the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new user account and triggers a welcome email.
func (s *Service) Register(ctx context.Context, email, password, confirmation string) (*models.User, error) {
	email = NormalizeEmail(email)

	if res := s.limiter.Allow(ratelimit.OpRegister, email); !res.Allowed {
		return nil, &RateLimitError{Operation: ratelimit.OpRegister, RetryAfter: res.RetryAfter}
	}

	if !s.opts.RegistrationOpen {
		return nil, ErrRegistrationClosed
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}

	if password != confirmation {
		return nil, ErrPasswordMismatch
	}

	if validation := s.validator.Validate(password); !validation.Valid {
		return nil, &PasswordValidationError{Errors: validation.Errors}
	}

	exists, err := s.userExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUserExists
	}

	hash, scheme, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:          email,
		PasswordHash:   hash,
		PasswordScheme: scheme,
	}

	if err := s.createUser(ctx, user); err != nil {
		return nil, err
	}

	slog.Info("register_success", "user_id", user.ID, "email", email)
	s.sendAsync(ctx, "welcome", email, func(ctx context.Context) error {
		return s.mailer.SendWelcome(ctx, email)
	})

	return user, nil
}

// Login authenticates a user. A legacy password hash is re-hashed with the
// current scheme on success; the hash and scheme tag are swapped in a single
// guarded update so the record is never half-migrated.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = NormalizeEmail(email)

	if res := s.limiter.Allow(ratelimit.OpLogin, email); !res.Allowed {
		return nil, &RateLimitError{Operation: ratelimit.OpLogin, RetryAfter: res.RetryAfter}
	}

	user, err := s.getUser(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Constant-time: always perform a bcrypt comparison so a missing
			// account is indistinguishable from a wrong password.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			slog.Warn("login_failed", "email", email, "reason", "user_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !s.hasher.Verify(password, user.PasswordHash, user.PasswordScheme) {
		slog.Warn("login_failed", "email", email, "reason", "invalid_password")
		return nil, ErrInvalidCredentials
	}

	if s.hasher.NeedsMigration(user.PasswordScheme) {
		if err := s.migrateHash(ctx, user, password); err != nil {
			return nil, err
		}
	}

	slog.Info("login_success", "user_id", user.ID, "email", email)
	return user, nil
}

// RequestPasswordReset issues a reset code and mails it to the user. The
// response is identical whether or not the identity exists.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)

	if res := s.limiter.Allow(ratelimit.OpResetRequest, email); !res.Allowed {
		return &RateLimitError{Operation: ratelimit.OpResetRequest, RetryAfter: res.RetryAfter}
	}

	user, err := s.getUser(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// No enumeration leak: skip issuance, respond like success.
			slog.Info("reset_request_skipped", "email", email, "reason", "user_not_found")
			return nil
		}
		return err
	}

	sctx, cancel := s.storeCtx(ctx)
	code, err := s.resets.Issue(sctx, user.ID)
	cancel()
	if err != nil {
		return storeErr(err)
	}

	slog.Info("reset_code_issued", "user_id", user.ID, "email", email)
	s.sendAsync(ctx, "reset_code", email, func(ctx context.Context) error {
		return s.mailer.SendResetCode(ctx, email, code)
	})

	return nil
}

// ConfirmPasswordReset verifies a reset code and sets a new password. Any
// verification failure is reported as ErrInvalidOrExpiredCode so callers
// cannot distinguish a missing, expired or mismatched code.
func (s *Service) ConfirmPasswordReset(ctx context.Context, email, code, newPassword, confirmation string) error {
	email = NormalizeEmail(email)

	if res := s.limiter.Allow(ratelimit.OpResetVerify, email); !res.Allowed {
		return &RateLimitError{Operation: ratelimit.OpResetVerify, RetryAfter: res.RetryAfter}
	}

	if newPassword != confirmation {
		return ErrPasswordMismatch
	}

	if validation := s.validator.Validate(newPassword); !validation.Valid {
		return &PasswordValidationError{Errors: validation.Errors}
	}

	user, err := s.getUser(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidOrExpiredCode
		}
		return err
	}

	sctx, cancel := s.storeCtx(ctx)
	status, err := s.resets.Verify(sctx, user.ID, code)
	cancel()
	if err != nil {
		return storeErr(err)
	}
	if status != reset.StatusValid {
		slog.Warn("reset_verify_failed", "email", email, "user_id", user.ID)
		return ErrInvalidOrExpiredCode
	}

	hash, scheme, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	uctx, ucancel := s.storeCtx(ctx)
	defer ucancel()
	if err := s.repo.UpdateUserPassword(uctx, user.ID, hash, scheme); err != nil {
		return storeErr(err)
	}

	// The code verified; the attempt log for this operation is cleared.
	s.limiter.Reset(ratelimit.OpResetVerify, email)

	slog.Info("password_reset_success", "user_id", user.ID, "email", email)
	return nil
}

// migrateHash re-hashes the password with the current scheme. The update is
// guarded by the old hash; losing the race to a concurrent migration of the
// same record is fine.
func (s *Service) migrateHash(ctx context.Context, user *models.User, password string) error {
	hash, scheme, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	err = s.repo.UpdateUserPasswordIf(sctx, user.ID, user.PasswordHash, hash, scheme)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			slog.Debug("hash_migration_lost_race", "user_id", user.ID)
			return nil
		}
		return storeErr(err)
	}

	user.PasswordHash = hash
	user.PasswordScheme = scheme
	slog.Info("hash_migrated", "user_id", user.ID, "email", user.Email)
	return nil
}

func (s *Service) getUser(ctx context.Context, email string) (*models.User, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	user, err := s.repo.GetUserByEmail(sctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, storeErr(err)
	}
	return user, nil
}

func (s *Service) userExists(ctx context.Context, email string) (bool, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	exists, err := s.repo.UserExists(sctx, email)
	if err != nil {
		return false, storeErr(err)
	}
	return exists, nil
}

func (s *Service) createUser(ctx context.Context, user *models.User) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if err := s.repo.CreateUser(sctx, user); err != nil {
		return storeErr(err)
	}
	return nil
}

// storeCtx bounds a store access so no operation blocks indefinitely.
func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}

// storeErr surfaces store I/O failures as a retryable infrastructure error.
func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// sendAsync dispatches an email after the surrounding state change has been
// committed. Failures are logged, never returned.
func (s *Service) sendAsync(ctx context.Context, kind, to string, send func(context.Context) error) {
	if s.mailer == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := send(ctx); err != nil {
			slog.Error("email_send_failed", "kind", kind, "to", to, "error", err)
		}
	}()
}
