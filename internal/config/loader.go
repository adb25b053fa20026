package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"transcriber": {"openai", "mock"},
	"summarizer":  {"openai", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is configured"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is configured"))
		}
	}

	// Session timing
	if cfg.Session.TimeoutBudget < 0 {
		errs = append(errs, fmt.Errorf("session.timeout_budget %s must not be negative", cfg.Session.TimeoutBudget))
	}
	if cfg.Session.WarningThreshold < 0 {
		errs = append(errs, fmt.Errorf("session.warning_threshold %s must not be negative", cfg.Session.WarningThreshold))
	}
	if cfg.Session.WarningRearm < 0 {
		errs = append(errs, fmt.Errorf("session.warning_rearm %s must not be negative", cfg.Session.WarningRearm))
	}
	if cfg.Session.TickInterval < 0 {
		errs = append(errs, fmt.Errorf("session.tick_interval %s must not be negative", cfg.Session.TickInterval))
	}
	if cfg.Session.TimeoutBudget > 0 && cfg.Session.WarningThreshold >= cfg.Session.TimeoutBudget {
		errs = append(errs, fmt.Errorf("session.warning_threshold %s must be smaller than session.timeout_budget %s",
			cfg.Session.WarningThreshold, cfg.Session.TimeoutBudget))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("transcriber", cfg.Providers.Transcriber.Name)
	validateProviderName("summarizer", cfg.Providers.Summarizer.Name)

	// Provider availability warnings
	if cfg.Providers.Transcriber.Name == "" {
		slog.Warn("no transcriber provider configured; transcript import is the only way to get segments")
	}
	if cfg.Providers.Summarizer.Name == "" {
		slog.Warn("no summarizer provider configured; summary generation will be unavailable")
	}
	if cfg.Providers.Transcriber.Name == "openai" && cfg.Providers.Transcriber.APIKey == "" {
		errs = append(errs, errors.New("providers.transcriber.api_key is required when name is openai"))
	}
	if cfg.Providers.Summarizer.Name == "openai" && cfg.Providers.Summarizer.APIKey == "" {
		errs = append(errs, errors.New("providers.summarizer.api_key is required when name is openai"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
