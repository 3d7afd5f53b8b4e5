// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package keys stores per-user provider API keys encrypted at rest. Values
// are AES-GCM encrypted and written with an "enc:" prefix; plaintext values
// left over from older deployments are migrated to encrypted form on read.
package keys

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cardforge/cardforge/internal/config"
	"github.com/cardforge/cardforge/internal/models"
)

const (
	encPrefix = "enc:"
	// settingPrefix namespaces API keys within the user settings table.
	settingPrefix = "apikey."
)

// Store is the subset of the account store the service needs.
type Store interface {
	UpsertUserSetting(ctx context.Context, userID int64, name, value string) error
	GetUserSettings(ctx context.Context, userID int64, prefix string) ([]models.UserSetting, error)
}

// Cipher encrypts and decrypts setting values with AES-256-GCM.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// LoadKey resolves the encryption key: the configured hex key wins,
// otherwise the key file is read, otherwise a fresh key is generated and
// persisted to the key file.
func LoadKey(cfg *config.KeysConfig) ([]byte, error) {
	if cfg.EncryptionKey != "" {
		key, err := hex.DecodeString(cfg.EncryptionKey)
		if err != nil || len(key) != 32 {
			return nil, fmt.Errorf("invalid settings encryption key: want 32 hex-encoded bytes")
		}
		return key, nil
	}

	if data, err := os.ReadFile(cfg.KeyFile); err == nil {
		key, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil || len(key) != 32 {
			return nil, fmt.Errorf("invalid key file %s: want 32 hex-encoded bytes", cfg.KeyFile)
		}
		return key, nil
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.KeyFile), 0o750); err != nil {
		return nil, err
	}
	if err := os.WriteFile(cfg.KeyFile, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("failed to persist encryption key: %w", err)
	}

	slog.Info("settings_key_generated", "file", cfg.KeyFile)
	return key, nil
}

// Encrypt encrypts a value and prefixes it with the "enc:" marker.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt decrypts a marked value. Unmarked values are returned as-is, the
// migration case for plaintext keys written before encryption existed.
func (c *Cipher) Decrypt(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}

	sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encPrefix))
	if err != nil {
		return "", fmt.Errorf("malformed encrypted value: %w", err)
	}

	nonceSize := c.aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", fmt.Errorf("malformed encrypted value: too short")
	}

	plaintext, err := c.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}

	return string(plaintext), nil
}

// IsEncrypted reports whether a stored value carries the encryption marker.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, encPrefix)
}

// Service manages encrypted provider API keys on top of the account store.
type Service struct {
	store  Store
	cipher *Cipher
}

// NewService creates a keys service.
func NewService(store Store, cipher *Cipher) *Service {
	return &Service{store: store, cipher: cipher}
}

// Save encrypts and stores provider API keys, merging with existing ones.
func (s *Service) Save(ctx context.Context, userID int64, apiKeys map[string]string) error {
	for provider, value := range apiKeys {
		if value == "" {
			continue
		}
		if !IsEncrypted(value) {
			encrypted, err := s.cipher.Encrypt(value)
			if err != nil {
				return fmt.Errorf("failed to encrypt key for %s: %w", provider, err)
			}
			value = encrypted
		}
		if err := s.store.UpsertUserSetting(ctx, userID, settingPrefix+provider, value); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the user's provider API keys, decrypted. Plaintext values are
// re-written encrypted as a side effect.
func (s *Service) Get(ctx context.Context, userID int64) (map[string]string, error) {
	settings, err := s.store.GetUserSettings(ctx, userID, settingPrefix)
	if err != nil {
		return nil, err
	}

	apiKeys := make(map[string]string, len(settings))
	for _, setting := range settings {
		provider := strings.TrimPrefix(setting.Name, settingPrefix)

		plaintext, err := s.cipher.Decrypt(setting.Value)
		if err != nil {
			slog.Error("key_decrypt_failed", "user_id", userID, "provider", provider, "error", err)
			continue
		}
		apiKeys[provider] = plaintext

		if !IsEncrypted(setting.Value) {
			slog.Info("key_migrated_to_encrypted", "user_id", userID, "provider", provider)
			encrypted, err := s.cipher.Encrypt(plaintext)
			if err != nil {
				return nil, err
			}
			if err := s.store.UpsertUserSetting(ctx, userID, setting.Name, encrypted); err != nil {
				return nil, err
			}
		}
	}

	return apiKeys, nil
}
