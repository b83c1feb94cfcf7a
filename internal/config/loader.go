package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.Defaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Credentials.Endpoint == "" {
		errs = append(errs, errors.New("credentials.endpoint is required"))
	}
	if cfg.Audio.CaptureRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.capture_rate %d must be positive", cfg.Audio.CaptureRate))
	}
	if cfg.Audio.PlaybackRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.playback_rate %d must be positive", cfg.Audio.PlaybackRate))
	}
	if cfg.Audio.FrameDuration <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_duration %s must be positive", cfg.Audio.FrameDuration))
	}
	if !cfg.Turn.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("turn.mode %q is invalid; valid values: server_vad, manual", cfg.Turn.Mode))
	}
	if cfg.Turn.Threshold < 0 || cfg.Turn.Threshold > 1 {
		errs = append(errs, fmt.Errorf("turn.threshold %v must be within [0, 1]", cfg.Turn.Threshold))
	}
	if cfg.Turn.SilenceDurationMs < 0 {
		errs = append(errs, fmt.Errorf("turn.silence_duration_ms %d must not be negative", cfg.Turn.SilenceDurationMs))
	}
	if !cfg.BargeIn.Sensitivity.IsValid() {
		errs = append(errs, fmt.Errorf("barge_in.sensitivity %q is invalid; valid values: low, medium, high", cfg.BargeIn.Sensitivity))
	}

	return errors.Join(errs...)
}
