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
	"live":  {"gemini"},
	"audio": {"portaudio", "mock"},
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

	// Provider name validation — warn for unknown provider names.
	validateProviderName("live", cfg.Live.Provider)
	validateProviderName("audio", cfg.Audio.Platform)

	// Credential availability
	if cfg.Live.APIKey == "" && os.Getenv("GEMINI_API_KEY") == "" {
		slog.Warn("no API key configured; set live.api_key or the GEMINI_API_KEY environment variable before starting a session")
	}

	// Video
	if cfg.Video.FrameIntervalMS < 0 {
		errs = append(errs, fmt.Errorf("video.frame_interval_ms %d must not be negative", cfg.Video.FrameIntervalMS))
	}
	if cfg.Video.FrameIntervalMS > 0 && cfg.Video.FrameIntervalMS < 100 {
		errs = append(errs, fmt.Errorf("video.frame_interval_ms %d is below the 100ms floor", cfg.Video.FrameIntervalMS))
	}
	if cfg.Video.JPEGQuality != 0 && (cfg.Video.JPEGQuality < 1 || cfg.Video.JPEGQuality > 100) {
		errs = append(errs, fmt.Errorf("video.jpeg_quality %d is out of range [1, 100]", cfg.Video.JPEGQuality))
	}
	if cfg.Video.SourceDir != "" {
		if info, err := os.Stat(cfg.Video.SourceDir); err != nil || !info.IsDir() {
			errs = append(errs, fmt.Errorf("video.source_dir %q is not a readable directory", cfg.Video.SourceDir))
		}
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
