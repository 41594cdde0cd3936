package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// PollerConfig is the email poller's closed configuration set (spec §4.7).
// Sequential is not user-configurable: polls on the same poller are always
// serialized by an internal mutex, but the field is kept so the unmarshaled
// shape mirrors the spec's named set and a caller can assert on it.
type PollerConfig struct {
	PollInterval      time.Duration
	Sequential        bool
	MaxRequestsPerSec float64
	BurstCapacity     int
	CredentialsPath   string
}

// LoadPollerConfigWithViper loads PollerConfig using the supplied *viper.Viper,
// the way the teacher's LoadEmailConfigWithViper takes a caller-supplied
// instance so tests can isolate state.
func LoadPollerConfigWithViper(v *viper.Viper) (PollerConfig, error) {
	setPollerDefaults(v)
	setupPollerEnvBinding(v)

	if err := loadPollerConfigFile(v); err != nil {
		return PollerConfig{}, fmt.Errorf("failed to load config file: %w", err)
	}

	cfg, err := unmarshalPollerConfig(v)
	if err != nil {
		return PollerConfig{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return PollerConfig{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadPollerConfig loads PollerConfig using a fresh default Viper instance.
func LoadPollerConfig() (PollerConfig, error) {
	return LoadPollerConfigWithViper(viper.New())
}

func setPollerDefaults(v *viper.Viper) {
	v.SetDefault("poller.poll_interval", "60s")
	v.SetDefault("poller.sequential", true)
	v.SetDefault("poller.rate_limit.max_requests_per_second", 0.0)
	v.SetDefault("poller.rate_limit.burst_capacity", 0)
	v.SetDefault("poller.credentials_path", "./credentials")
}

func setupPollerEnvBinding(v *viper.Viper) {
	v.SetEnvPrefix("CAPTURE_BRIDGE")
	v.AutomaticEnv()

	bindings := map[string]string{
		"poller.poll_interval":                    "POLLER_POLL_INTERVAL",
		"poller.sequential":                       "POLLER_SEQUENTIAL",
		"poller.rate_limit.max_requests_per_second": "POLLER_RATE_LIMIT_MAX_RPS",
		"poller.rate_limit.burst_capacity":        "POLLER_RATE_LIMIT_BURST",
		"poller.credentials_path":                 "POLLER_CREDENTIALS_PATH",
	}
	for configKey, envSuffix := range bindings {
		_ = v.BindEnv(configKey, "CAPTURE_BRIDGE_"+envSuffix)
	}
}

func loadPollerConfigFile(v *viper.Viper) error {
	if v.ConfigFileUsed() == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.capture-bridge")
		v.SetConfigName("capture-bridge")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !isConfigFileNotFound(err, &notFound) {
			return err
		}
	}
	return nil
}

func isConfigFileNotFound(err error, target *viper.ConfigFileNotFoundError) bool {
	e, ok := err.(viper.ConfigFileNotFoundError)
	if ok {
		*target = e
	}
	return ok
}

func unmarshalPollerConfig(v *viper.Viper) (PollerConfig, error) {
	cfg := PollerConfig{}

	pollInterval, err := time.ParseDuration(v.GetString("poller.poll_interval"))
	if err != nil {
		return PollerConfig{}, fmt.Errorf("invalid poll_interval: %w", err)
	}
	cfg.PollInterval = pollInterval

	cfg.Sequential = v.GetBool("poller.sequential")
	cfg.MaxRequestsPerSec = v.GetFloat64("poller.rate_limit.max_requests_per_second")
	cfg.BurstCapacity = v.GetInt("poller.rate_limit.burst_capacity")
	cfg.CredentialsPath = v.GetString("poller.credentials_path")

	return cfg, nil
}

func (c PollerConfig) validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if !c.Sequential {
		return fmt.Errorf("sequential must be true: concurrent polls on one poller are not supported")
	}
	if c.MaxRequestsPerSec < 0 {
		return fmt.Errorf("rate_limit.max_requests_per_second must be non-negative")
	}
	if c.BurstCapacity < 0 {
		return fmt.Errorf("rate_limit.burst_capacity must be non-negative")
	}
	if c.CredentialsPath == "" {
		return fmt.Errorf("credentials_path cannot be empty")
	}
	return nil
}

// RateLimitEnabled reports whether the rate_limit block was configured with
// a positive rate (spec §4.7: "optional token bucket").
func (c PollerConfig) RateLimitEnabled() bool {
	return c.MaxRequestsPerSec > 0
}
