// Package config provides the configuration schema, loader, file watcher,
// and provider registry for the kolan live assistant client.
package config

import "time"

// LogLevel controls log verbosity for the kolan client.
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

// Config is the root configuration structure for kolan.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`
	Live   LiveConfig   `yaml:"live"`
	Audio  AudioConfig  `yaml:"audio"`
	Video  VideoConfig  `yaml:"video"`
}

// ServerConfig holds logging and telemetry settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address serving the Prometheus /metrics
	// endpoint (e.g., ":9090"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// LiveConfig selects and configures the realtime voice backend.
type LiveConfig struct {
	// Provider selects the registered live provider implementation.
	// Defaults to "gemini".
	Provider string `yaml:"provider"`

	// APIKey is the authentication key for the provider's API. When empty,
	// the client falls back to the GEMINI_API_KEY environment variable.
	APIKey string `yaml:"api_key"`

	// Model selects a specific model within the provider. Leave empty to
	// use the provider's built-in default.
	Model string `yaml:"model"`

	// BaseURL overrides the provider's default endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Voice is the provider-specific name of the synthesised voice.
	Voice string `yaml:"voice"`

	// SystemInstruction is the system-level prompt that shapes the
	// assistant's behaviour for the whole session.
	SystemInstruction string `yaml:"system_instruction"`
}

// AudioConfig selects the local audio hardware.
type AudioConfig struct {
	// Platform selects the registered device platform implementation.
	// Defaults to "portaudio".
	Platform string `yaml:"platform"`
}

// VideoConfig configures the camera sampling path.
type VideoConfig struct {
	// FrameIntervalMS is the milliseconds between camera stills.
	// Zero means the built-in default (500 ms, two frames per second).
	FrameIntervalMS int `yaml:"frame_interval_ms"`

	// JPEGQuality is the JPEG compression quality (1-100). Zero means the
	// built-in default (70).
	JPEGQuality int `yaml:"jpeg_quality"`

	// SourceDir, when set, replaces camera hardware with a directory of
	// image files cycled in order. Useful on machines without a camera.
	SourceDir string `yaml:"source_dir"`
}

// FrameInterval returns the configured sampling cadence as a duration.
func (v VideoConfig) FrameInterval() time.Duration {
	if v.FrameIntervalMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(v.FrameIntervalMS) * time.Millisecond
}
