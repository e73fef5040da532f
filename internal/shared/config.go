package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Monitor     MonitorConfig     `toml:"monitor"`
}

// CredentialsConfig contains the YouTube Data API credentials.
//
// APIKey serves unauthenticated (public data) access; ClientID/ClientSecret
// serve the per-user OAuth refresh-token flow.
type CredentialsConfig struct {
	YouTube YouTubeConfig `toml:"youtube"`
}

// YouTubeConfig contains YouTube Data API credentials.
type YouTubeConfig struct {
	APIKey       string `toml:"api_key"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// MonitorConfig tunes the ingestion engine.
type MonitorConfig struct {
	DailyQuota       int     `toml:"daily_quota"`        // rolling daily call ceiling for the primary backend
	QuotaThreshold   float64 `toml:"quota_threshold"`    // fraction of the ceiling at which the engine suspends
	BatchSize        int     `toml:"batch_size"`         // videos per store batch
	MaxBatchRetries  int     `toml:"max_batch_retries"`  // attempts before a batch is dropped
	RetryCooldownSec int     `toml:"retry_cooldown_sec"` // sleep between quota-failed batch attempts
	ChannelWorkers   int     `toml:"channel_workers"`    // bounded fan-out per channel collection
	RequestsPerSec   float64 `toml:"requests_per_sec"`   // outbound pacing for the primary backend
}

// RetryCooldown returns the configured cooldown as a [time.Duration].
func (m MonitorConfig) RetryCooldown() time.Duration {
	return time.Duration(m.RetryCooldownSec) * time.Second
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
