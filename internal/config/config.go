// Package config provides the configuration schema and loader for the
// voxlabel server.
package config

import "time"

// LogLevel controls log verbosity for the voxlabel server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for voxlabel.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Session   SessionConfig   `yaml:"session"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig holds network and logging settings for the voxlabel server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// SessionConfig tunes the inactivity lifecycle of a labeling session.
// Zero values fall back to the defaults in the lifecycle package.
type SessionConfig struct {
	// TimeoutBudget is the total inactivity budget before session data is
	// purged (default 30m).
	TimeoutBudget time.Duration `yaml:"timeout_budget"`

	// WarningThreshold is how much remaining budget triggers the expiry
	// warning (default 5m).
	WarningThreshold time.Duration `yaml:"warning_threshold"`

	// WarningRearm is how long after a dismissed warning the warning may
	// fire again (default 2m).
	WarningRearm time.Duration `yaml:"warning_rearm"`

	// TickInterval is how often the lifecycle state is re-evaluated
	// (default 1s). Mostly useful in tests.
	TickInterval time.Duration `yaml:"tick_interval"`
}

// ProvidersConfig declares which provider implementation to use for each
// boundary stage.
type ProvidersConfig struct {
	Transcriber ProviderEntry `yaml:"transcriber"`
	Summarizer  ProviderEntry `yaml:"summarizer"`
}

// ProviderEntry is the common configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "openai", "mock").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "whisper-1", "gpt-4o-mini").
	Model string `yaml:"model"`
}
