// Command voicelink is the realtime duplex voice client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/godt333/voicelink/internal/app"
	"github.com/godt333/voicelink/internal/config"
	"github.com/godt333/voicelink/internal/observe"
	"github.com/godt333/voicelink/pkg/audio"
)

// version is stamped by the build.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", "", "optional .env file with secrets")
	flag.Parse()

	if *envPath != "" {
		if err := godotenv.Load(*envPath); err != nil {
			fmt.Fprintf(os.Stderr, "voicelink: load env file %q: %v\n", *envPath, err)
			return 1
		}
	} else {
		// A .env next to the binary is picked up when present; its absence is
		// fine.
		_ = godotenv.Load()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicelink: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicelink: %v\n", err)
		}
		return 1
	}
	if key := os.Getenv("VOICELINK_CREDENTIALS_API_KEY"); key != "" {
		cfg.Credentials.APIKey = key
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("voicelink starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voicelink",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// Headless devices; platform builds swap in real hardware via app options.
	application, err := app.New(cfg,
		app.WithCaptureDevice(&audio.SilenceCapture{Rate: cfg.Audio.CaptureRate, Interval: cfg.Audio.FrameDuration}),
		app.WithPlaybackSink(&audio.WallClockSink{}),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	go func() {
		if err := application.Connect(ctx); err != nil {
			slog.Error("initial connect failed", "err", err)
		}
	}()

	slog.Info("client ready; press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
