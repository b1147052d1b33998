package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nitz7155/HiSmartStudy/internal/app"
	"github.com/nitz7155/HiSmartStudy/internal/config"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	webDir := findWebDir()
	if webDir != "" {
		logger.Info("serving dashboard", "dir", webDir)
	}

	a, err := app.New(ctx, app.Config{
		Service:   cfg,
		StaticDir: webDir,
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	logger.Info("seat vision service starting", "addr", cfg.Server.Addr, "cameras", cfg.Cameras.RegistryPath)
	if err := a.Run(ctx, cfg.Server.Addr); err != nil {
		logger.Error("service stopped", "error", err)
		a.Close()
		os.Exit(1)
	}
	logger.Info("service stopped")
}

// findWebDir searches for the dashboard directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.seatvision/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".seatvision", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
