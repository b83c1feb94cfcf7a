// Package config provides the configuration schema and loader for the
// voicelink client.
package config

import (
	"time"

	"github.com/godt333/voicelink/internal/bargein"
	"github.com/godt333/voicelink/pkg/realtime"
)

// LogLevel controls log verbosity for the voicelink process.
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

// Config is the root configuration structure for voicelink.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Audio       AudioConfig       `yaml:"audio"`
	Turn        TurnConfig        `yaml:"turn"`
	BargeIn     BargeInConfig     `yaml:"barge_in"`
}

// ServerConfig holds settings for the local ops endpoint (health and
// metrics) and logging.
type ServerConfig struct {
	// ListenAddr is the TCP address the ops HTTP server listens on
	// (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// CredentialsConfig points at the external credential service.
type CredentialsConfig struct {
	// Endpoint is the credential service URL.
	Endpoint string `yaml:"endpoint"`

	// APIKey authenticates voicelink against the credential service. Usually
	// injected via VOICELINK_CREDENTIALS_API_KEY rather than the file.
	APIKey string `yaml:"api_key"`
}

// AudioConfig holds capture and playback parameters.
type AudioConfig struct {
	// CaptureRate is the outbound capture sample rate in Hz. Default: 16000.
	CaptureRate int `yaml:"capture_rate"`

	// PlaybackRate is the inbound playback sample rate in Hz. Default: 24000.
	PlaybackRate int `yaml:"playback_rate"`

	// FrameDuration is the fixed outbound frame size. Default: 20ms.
	FrameDuration time.Duration `yaml:"frame_duration"`
}

// TurnConfig holds the initial turn detection parameters sent on connect.
type TurnConfig struct {
	// Voice is the backend voice identity for synthesized replies.
	Voice string `yaml:"voice"`

	// Mode selects server or manual turn detection.
	Mode realtime.TurnDetectionMode `yaml:"mode"`

	// Threshold is the server VAD activation threshold in [0, 1].
	Threshold float64 `yaml:"threshold"`

	// SilenceDurationMs is the trailing silence that ends a turn, in
	// milliseconds.
	SilenceDurationMs int `yaml:"silence_duration_ms"`
}

// BargeInConfig holds the local interruption detection policy.
type BargeInConfig struct {
	// Enabled toggles local barge-in detection.
	Enabled bool `yaml:"enabled"`

	// Sensitivity selects the detection tier: low, medium or high.
	Sensitivity bargein.Sensitivity `yaml:"sensitivity"`
}

// Defaults fills unset fields with their documented default values.
func (c *Config) Defaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Audio.CaptureRate == 0 {
		c.Audio.CaptureRate = 16000
	}
	if c.Audio.PlaybackRate == 0 {
		c.Audio.PlaybackRate = 24000
	}
	if c.Audio.FrameDuration == 0 {
		c.Audio.FrameDuration = 20 * time.Millisecond
	}
	if c.Turn.Mode == "" {
		c.Turn.Mode = realtime.TurnDetectionServer
	}
	if c.Turn.SilenceDurationMs == 0 {
		c.Turn.SilenceDurationMs = 500
	}
	if c.BargeIn.Sensitivity == "" {
		c.BargeIn.Sensitivity = bargein.SensitivityMedium
	}
}

// RealtimeTurnConfig converts the configured turn parameters into the wire
// form used on connect.
func (c *Config) RealtimeTurnConfig() realtime.TurnConfig {
	return realtime.TurnConfig{
		Voice:             c.Turn.Voice,
		Mode:              c.Turn.Mode,
		Threshold:         c.Turn.Threshold,
		SilenceDurationMs: c.Turn.SilenceDurationMs,
	}
}
