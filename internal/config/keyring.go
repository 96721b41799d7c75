package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/zalando/go-keyring"

	"github.com/fruitflybrain/neuroarch/internal/logging"
)

const (
	// KeyringService is the service name in the OS keychain
	KeyringService = "neuroarch"

	// KeyringStorePasswordItem holds the graph store password
	KeyringStorePasswordItem = "neo4j-password"
)

// KeyringManager handles secure credential storage in OS keychain
type KeyringManager struct {
	logger *slog.Logger
}

// NewKeyringManager creates a new keyring manager
func NewKeyringManager() *KeyringManager {
	return &KeyringManager{
		logger: logging.Component("keyring"),
	}
}

// SaveStorePassword stores the graph store password in the OS keychain
// - macOS: Keychain Access.app → "neuroarch" → "neo4j-password"
// - Windows: Credential Manager
// - Linux: Secret Service (requires libsecret)
func (km *KeyringManager) SaveStorePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	if err := keyring.Set(KeyringService, KeyringStorePasswordItem, password); err != nil {
		km.logger.Error("failed to save store password to keychain", "error", err)
		return fmt.Errorf("failed to save to OS keychain: %w", err)
	}

	km.logger.Info("store password saved to keychain", "service", KeyringService)
	return nil
}

// GetStorePassword retrieves the store password. An unset password is ("", nil).
func (km *KeyringManager) GetStorePassword() (string, error) {
	password, err := keyring.Get(KeyringService, KeyringStorePasswordItem)
	if err == keyring.ErrNotFound {
		return "", nil
	}
	if err != nil {
		km.logger.Error("failed to get store password from keychain", "error", err)
		return "", fmt.Errorf("failed to read from OS keychain: %w", err)
	}

	km.logger.Debug("store password retrieved from keychain")
	return password, nil
}

// DeleteStorePassword removes the store password from the OS keychain
func (km *KeyringManager) DeleteStorePassword() error {
	err := keyring.Delete(KeyringService, KeyringStorePasswordItem)
	if err == keyring.ErrNotFound {
		// Already deleted, not an error
		return nil
	}
	if err != nil {
		km.logger.Error("failed to delete store password from keychain", "error", err)
		return fmt.Errorf("failed to delete from OS keychain: %w", err)
	}

	km.logger.Info("store password deleted from keychain")
	return nil
}

// IsAvailable checks if OS keychain is available
// Returns false on headless systems (CI/CD) where keychain isn't available
func (km *KeyringManager) IsAvailable() bool {
	_, err := keyring.Get(KeyringService, "test-availability")
	if err == keyring.ErrNotFound {
		return true
	}
	if err != nil {
		km.logger.Debug("keychain not available", "error", err)
		return false
	}
	return true
}

// PasswordSource says where the store password comes from: "env",
// "keychain", "config" or "none".
func (km *KeyringManager) PasswordSource(cfg *Config) string {
	if os.Getenv("NEO4J_PASSWORD") != "" {
		return "env"
	}
	if stored, _ := km.GetStorePassword(); stored != "" {
		return "keychain"
	}
	if cfg.Store.Password != "" {
		return "config"
	}
	return "none"
}

// MaskSecret masks a secret for display: "s3c...word"
func MaskSecret(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) < 12 {
		return "***"
	}
	return fmt.Sprintf("%s...%s", secret[:3], secret[len(secret)-4:])
}
