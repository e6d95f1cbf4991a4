package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"handler_runner/config"
	"handler_runner/container"
	"handler_runner/handlers"
	"handler_runner/server"
)

func main() {
	// Parse command line flags
	configFile := flag.String("config", "", "Path to config file")
	httpAddr := flag.String("http.addr", "", "HTTP server address (overrides config)")
	httpPort := flag.Int("http.port", 0, "HTTP server port (overrides config)")
	logLevel := flag.String("log.level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		slog.Error("Invalid log level", "level", *logLevel, "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *httpPort != 0 {
		cfg.HTTPPort = *httpPort
	}

	c := container.New(cfg, container.WithLogger(logger))
	if err := handlers.RegisterAll(c, cfg); err != nil {
		slog.Error("Failed to register handlers", "error", err)
		os.Exit(1)
	}

	// A handler that fails to initialize stays out of service; the others run.
	if err := c.Start(context.Background()); err != nil {
		slog.Error("Some handlers failed to initialize", "error", err)
	}

	srv := server.New(cfg, c)

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)

	go func() {
		slog.Info("Starting server...")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start or stopped unexpectedly", "error", err)
			errChan <- err
		} else if err == http.ErrServerClosed {
			slog.Info("Server stopped gracefully (http.ErrServerClosed)")
		}
	}()

	select {
	case sig := <-stopChan:
		slog.Info("Received signal, initiating shutdown...", "signal", sig.String())
	case err := <-errChan:
		slog.Error("Server error, initiating shutdown...", "error", err)
	}

	// Leave room for the HTTP drain plus the container's own grace period.
	shutdownTimeout := 15*time.Second + cfg.DrainGracePeriod.ToStd()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := srv.Stop(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server gracefully stopped")
}
