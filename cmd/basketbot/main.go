// Command basketbot runs the basket arbitrage engine. With -calibrate it
// instead samples the live books and writes the observed price ranges.
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

	"github.com/alanyoungcy/basketbot/internal/app"
	"github.com/alanyoungcy/basketbot/internal/calibrate"
	"github.com/alanyoungcy/basketbot/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	calibrateOnly := flag.Bool("calibrate", false, "sample price ranges and exit")
	output := flag.String("o", "", "calibration output file (default: calibrate.output_path or stdout)")
	flag.Parse()

	logger := newLogger("info")
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger = newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	defer application.Close()

	if *calibrateOnly {
		path := *output
		if path == "" {
			path = cfg.Calibrate.OutputPath
		}
		if err := runCalibrate(ctx, application, path); err != nil {
			logger.Error("calibration failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	logger.Info("basketbot starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	logger.Info("basketbot stopped")
}

func runCalibrate(ctx context.Context, application *app.App, path string) error {
	ranges, err := application.Calibrate(ctx)
	if err != nil {
		return err
	}
	if path == "" {
		return calibrate.Write(os.Stdout, ranges)
	}
	if err := calibrate.WriteFile(path, ranges); err != nil {
		return err
	}
	slog.Info("calibration written", slog.String("path", path), slog.Int("instruments", len(ranges)))
	return nil
}

// newLogger builds the JSON logger at the named level; unknown names mean
// info.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
