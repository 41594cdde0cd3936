// Package config loads the daemon's two configuration surfaces: a flat
// env-var Paths struct for the process-wide ledger/vault/backup locations,
// and a nested Viper-based PollerConfig for the email poller's closed
// configuration set (spec §4.7). Grounded on the teacher's own split
// between config.Load() (flat env vars, internal/config/config.go) and
// LoadEmailConfigWithViper (nested provider config,
// internal/config/viper_email.go).
package config

import (
	"fmt"
	"os"
)

// Paths holds the process-wide filesystem locations the daemon needs
// outside of the poller's own config (vault root, ledger file, backup
// destination).
type Paths struct {
	VaultRoot     string
	LedgerPath    string
	BackupDir     string
	MetricsAddr   string
	VoiceInboxDir string
}

// LoadPaths reads Paths from the environment, applying the teacher's
// getEnvOrDefault convention.
func LoadPaths() (Paths, error) {
	p := Paths{
		VaultRoot:     getEnvOrDefault("CAPTURE_BRIDGE_VAULT_ROOT", "./vault"),
		LedgerPath:    getEnvOrDefault("CAPTURE_BRIDGE_LEDGER_PATH", "./capture-bridge.sqlite"),
		BackupDir:     getEnvOrDefault("CAPTURE_BRIDGE_BACKUP_DIR", "./backups"),
		MetricsAddr:   getEnvOrDefault("CAPTURE_BRIDGE_METRICS_ADDR", ":9090"),
		VoiceInboxDir: getEnvOrDefault("CAPTURE_BRIDGE_VOICE_INBOX_DIR", "./voice-inbox"),
	}
	if err := p.validate(); err != nil {
		return Paths{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return p, nil
}

func (p Paths) validate() error {
	if p.VaultRoot == "" {
		return fmt.Errorf("vault root cannot be empty")
	}
	if p.LedgerPath == "" {
		return fmt.Errorf("ledger path cannot be empty")
	}
	if p.BackupDir == "" {
		return fmt.Errorf("backup dir cannot be empty")
	}
	if p.MetricsAddr == "" {
		return fmt.Errorf("metrics addr cannot be empty")
	}
	if p.VoiceInboxDir == "" {
		return fmt.Errorf("voice inbox dir cannot be empty")
	}
	return nil
}

// getEnvOrDefault returns the environment variable value or default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
