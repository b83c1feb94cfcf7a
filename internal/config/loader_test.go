package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/godt333/voicelink/internal/bargein"
	"github.com/godt333/voicelink/internal/config"
	"github.com/godt333/voicelink/pkg/realtime"
)

const fullConfig = `
server:
  listen_addr: ":9090"
  log_level: debug
credentials:
  endpoint: "https://creds.example.com/token"
  api_key: "key-123"
audio:
  capture_rate: 16000
  playback_rate: 24000
  frame_duration: 20ms
turn:
  voice: "aria"
  mode: server_vad
  threshold: 0.6
  silence_duration_ms: 700
barge_in:
  enabled: true
  sensitivity: high
`

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(fullConfig))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Credentials.Endpoint != "https://creds.example.com/token" {
		t.Errorf("credentials.endpoint = %q", cfg.Credentials.Endpoint)
	}
	if cfg.Audio.FrameDuration != 20*time.Millisecond {
		t.Errorf("frame_duration = %s", cfg.Audio.FrameDuration)
	}
	if cfg.Turn.Voice != "aria" || cfg.Turn.Threshold != 0.6 {
		t.Errorf("turn = %+v", cfg.Turn)
	}
	if !cfg.BargeIn.Enabled || cfg.BargeIn.Sensitivity != bargein.SensitivityHigh {
		t.Errorf("barge_in = %+v", cfg.BargeIn)
	}
}

func TestLoadFromReader_DefaultsApplied(t *testing.T) {
	t.Parallel()

	minimal := `
credentials:
  endpoint: "https://creds.example.com/token"
`
	cfg, err := config.LoadFromReader(strings.NewReader(minimal))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("default listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("default log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Audio.CaptureRate != 16000 || cfg.Audio.PlaybackRate != 24000 {
		t.Errorf("default rates = %d/%d", cfg.Audio.CaptureRate, cfg.Audio.PlaybackRate)
	}
	if cfg.Audio.FrameDuration != 20*time.Millisecond {
		t.Errorf("default frame_duration = %s", cfg.Audio.FrameDuration)
	}
	if cfg.Turn.Mode != realtime.TurnDetectionServer {
		t.Errorf("default turn.mode = %q", cfg.Turn.Mode)
	}
	if cfg.Turn.SilenceDurationMs != 500 {
		t.Errorf("default silence_duration_ms = %d", cfg.Turn.SilenceDurationMs)
	}
	if cfg.BargeIn.Sensitivity != bargein.SensitivityMedium {
		t.Errorf("default barge_in.sensitivity = %q", cfg.BargeIn.Sensitivity)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	bad := `
credentials:
  endpoint: "https://creds.example.com/token"
wormhole: true
`
	if _, err := config.LoadFromReader(strings.NewReader(bad)); err == nil {
		t.Fatal("unknown top-level field accepted")
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	t.Parallel()

	bad := `
server:
  log_level: shout
credentials:
  endpoint: ""
turn:
  mode: psychic
  threshold: 3.5
barge_in:
  sensitivity: extreme
`
	_, err := config.LoadFromReader(strings.NewReader(bad))
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	for _, want := range []string{"log_level", "credentials.endpoint", "turn.mode", "turn.threshold", "barge_in.sensitivity"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %s: %v", want, err)
		}
	}
}

func TestValidate_NegativeSilenceRejected(t *testing.T) {
	t.Parallel()

	bad := `
credentials:
  endpoint: "https://creds.example.com/token"
turn:
  silence_duration_ms: -100
`
	if _, err := config.LoadFromReader(strings.NewReader(bad)); err == nil {
		t.Fatal("negative silence duration accepted")
	}
}

func TestRealtimeTurnConfig_Conversion(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(fullConfig))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	got := cfg.RealtimeTurnConfig()
	want := realtime.TurnConfig{
		Voice:             "aria",
		Mode:              realtime.TurnDetectionServer,
		Threshold:         0.6,
		SilenceDurationMs: 700,
	}
	if got != want {
		t.Errorf("RealtimeTurnConfig = %+v, want %+v", got, want)
	}
}
