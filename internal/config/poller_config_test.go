package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIsolatedViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigName("nonexistent-capture-bridge-config")
	v.AddConfigPath(t.TempDir())
	return v
}

func TestLoadPollerConfigDefaults(t *testing.T) {
	cfg, err := LoadPollerConfigWithViper(newIsolatedViper(t))
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.PollInterval)
	assert.True(t, cfg.Sequential)
	assert.False(t, cfg.RateLimitEnabled())
	assert.Equal(t, "./credentials", cfg.CredentialsPath)
}

func TestLoadPollerConfigReadsEnv(t *testing.T) {
	t.Setenv("CAPTURE_BRIDGE_POLLER_POLL_INTERVAL", "30s")
	t.Setenv("CAPTURE_BRIDGE_POLLER_RATE_LIMIT_MAX_RPS", "2.5")
	t.Setenv("CAPTURE_BRIDGE_POLLER_RATE_LIMIT_BURST", "5")
	t.Setenv("CAPTURE_BRIDGE_POLLER_CREDENTIALS_PATH", "/etc/capture-bridge/creds")

	cfg, err := LoadPollerConfigWithViper(newIsolatedViper(t))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.True(t, cfg.RateLimitEnabled())
	assert.Equal(t, 2.5, cfg.MaxRequestsPerSec)
	assert.Equal(t, 5, cfg.BurstCapacity)
	assert.Equal(t, "/etc/capture-bridge/creds", cfg.CredentialsPath)
}

func TestLoadPollerConfigRejectsNonPositivePollInterval(t *testing.T) {
	t.Setenv("CAPTURE_BRIDGE_POLLER_POLL_INTERVAL", "0s")
	_, err := LoadPollerConfigWithViper(newIsolatedViper(t))
	assert.Error(t, err)
}

func TestLoadPollerConfigRejectsEmptyCredentialsPath(t *testing.T) {
	v := newIsolatedViper(t)
	v.Set("poller.credentials_path", "")
	_, err := LoadPollerConfigWithViper(v)
	assert.Error(t, err)
}
