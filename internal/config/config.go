// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"fmt"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	SMTP     SMTPConfig
	Auth     AuthConfig
	Session  SessionConfig
	Keys     KeysConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in MB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

type AuthConfig struct { //nolint:govet // fieldalignment not critical
	RegistrationOpen  bool
	RateLimitAttempts int // attempts per (identity, operation) within the window
	RateLimitWindow   int // window length in seconds
	ResetCodeTTL      int // reset code lifetime in minutes
	StoreTimeout      int // account store access timeout in seconds
}

type SessionConfig struct { //nolint:govet // fieldalignment not critical
	CookieName string // Session cookie name
	MaxAge     int    // Session max age in seconds
	HashKey    string // 32-byte hex string for HMAC signing
	BlockKey   string // 32-byte hex string for AES encryption (optional)
}

type KeysConfig struct {
	EncryptionKey string // 32-byte hex string for settings encryption
	KeyFile       string // fallback key file, auto-generated if missing
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		Auth: AuthConfig{
			RegistrationOpen:  cmd.Bool("registration-open"),
			RateLimitAttempts: int(cmd.Int("rate-limit-attempts")),
			RateLimitWindow:   int(cmd.Int("rate-limit-window")),
			ResetCodeTTL:      int(cmd.Int("reset-code-ttl")),
			StoreTimeout:      int(cmd.Int("store-timeout")),
		},
		Session: SessionConfig{
			CookieName: cmd.String("session-cookie-name"),
			MaxAge:     int(cmd.Int("session-max-age")),
			HashKey:    cmd.String("session-hash-key"),
			BlockKey:   cmd.String("session-block-key"),
		},
		Keys: KeysConfig{
			EncryptionKey: cmd.String("settings-encryption-key"),
			KeyFile:       cmd.String("settings-key-file"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	return cfg
}

func buildBaseURL(cfg *Config) string {
	if cfg.Server.Port == 80 {
		return fmt.Sprintf("http://%s", cfg.Server.Host)
	}
	return fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HOST"), toml.TOML("server.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PORT"), toml.TOML("server.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL for the application",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BASE_URL"), toml.TOML("server.base_url", configFile)),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_BODY_SIZE"), toml.TOML("server.max_body_size", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL"), toml.TOML("log.level", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_FORMAT"), toml.TOML("log.format", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/app.db",
			Usage:   "Database DSN",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host (empty enables dev mode: emails are logged, not sent)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PORT"), toml.TOML("smtp.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_USERNAME"), toml.TOML("smtp.username", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PASSWORD"), toml.TOML("smtp.password", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Value:   "noreply@localhost",
			Usage:   "Sender address for outbound email",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Value:   "CardForge",
			Usage:   "Sender display name for outbound email",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Use TLS for SMTP connections",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
		// Auth flags
		&cli.BoolFlag{
			Name:    "registration-open",
			Value:   true,
			Usage:   "Allow new account registration",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REGISTRATION_OPEN"), toml.TOML("auth.registration_open", configFile)),
		},
		&cli.IntFlag{
			Name:    "rate-limit-attempts",
			Value:   5,
			Usage:   "Attempts allowed per identity and operation within the window",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RATE_LIMIT_ATTEMPTS"), toml.TOML("auth.rate_limit_attempts", configFile)),
		},
		&cli.IntFlag{
			Name:    "rate-limit-window",
			Value:   300,
			Usage:   "Rate limit window in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RATE_LIMIT_WINDOW"), toml.TOML("auth.rate_limit_window", configFile)),
		},
		&cli.IntFlag{
			Name:    "reset-code-ttl",
			Value:   15,
			Usage:   "Password reset code lifetime in minutes",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RESET_CODE_TTL"), toml.TOML("auth.reset_code_ttl", configFile)),
		},
		&cli.IntFlag{
			Name:    "store-timeout",
			Value:   5,
			Usage:   "Account store access timeout in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("STORE_TIMEOUT"), toml.TOML("auth.store_timeout", configFile)),
		},
		// Session flags
		&cli.StringFlag{
			Name:    "session-cookie-name",
			Value:   "_session",
			Usage:   "Session cookie name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_COOKIE_NAME"), toml.TOML("session.cookie_name", configFile)),
		},
		&cli.IntFlag{
			Name:    "session-max-age",
			Value:   86400 * 30,
			Usage:   "Session max age in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_MAX_AGE"), toml.TOML("session.max_age", configFile)),
		},
		&cli.StringFlag{
			Name:    "session-hash-key",
			Usage:   "32-byte hex key for session cookie signing",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_HASH_KEY"), toml.TOML("session.hash_key", configFile)),
		},
		&cli.StringFlag{
			Name:    "session-block-key",
			Usage:   "32-byte hex key for session cookie encryption (optional)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_BLOCK_KEY"), toml.TOML("session.block_key", configFile)),
		},
		// Settings encryption flags
		&cli.StringFlag{
			Name:    "settings-encryption-key",
			Usage:   "32-byte hex key for encrypting stored provider API keys",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SETTINGS_ENCRYPTION_KEY"), toml.TOML("keys.encryption_key", configFile)),
		},
		&cli.StringFlag{
			Name:    "settings-key-file",
			Value:   "./data/.encryption_key",
			Usage:   "File used to persist an auto-generated settings encryption key",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SETTINGS_KEY_FILE"), toml.TOML("keys.key_file", configFile)),
		},
	}
}
