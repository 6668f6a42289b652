// Package main is the entry point for the videoup upload coordination server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/videoup/videoup/internal/config"
	"github.com/videoup/videoup/internal/logging"
	"github.com/videoup/videoup/internal/metrics"
	"github.com/videoup/videoup/internal/server"
	"github.com/videoup/videoup/internal/storage"
	"github.com/videoup/videoup/internal/upload"
)

// provisionTimeout bounds the bucket check at startup.
const provisionTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "videoup.yaml", "path to configuration file")
	port := flag.Int("port", 0, "override listening port (default: from config or 8080)")
	host := flag.String("host", "", "override listening host (default: from config or 0.0.0.0)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (default: from config or info)")
	logFormat := flag.String("log-format", "", "log format: text, json (default: from config or text)")
	shutdownTimeout := flag.Int("shutdown-timeout", 0, "graceful shutdown timeout in seconds (default: from config or 30)")
	backendName := flag.String("backend", "", "storage backend: s3, minio, memory (default: from config or minio)")
	bucket := flag.String("bucket", "", "override upload bucket (default: from config or videos)")
	endpoint := flag.String("endpoint", "", "override object store endpoint")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Command-line flags override config file values.
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *shutdownTimeout != 0 {
		cfg.Server.ShutdownTimeout = *shutdownTimeout
	}
	if *backendName != "" {
		cfg.Storage.Backend = *backendName
	}
	if *bucket != "" {
		cfg.Storage.Bucket = *bucket
	}
	if *endpoint != "" {
		cfg.Storage.Endpoint = *endpoint
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	if cfg.Observability.Metrics {
		metrics.Register()
	}

	ctx := context.Background()

	var (
		adapter storage.Backend
		opts    []server.ServerOption
	)
	switch cfg.Storage.Backend {
	case "s3":
		s3Backend, err := storage.NewS3Backend(ctx, cfg.Storage)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize S3 storage backend: %v\n", err)
			os.Exit(1)
		}
		adapter = s3Backend
	case "minio":
		minioBackend, err := storage.NewMinioBackend(cfg.Storage)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize MinIO storage backend: %v\n", err)
			os.Exit(1)
		}
		adapter = minioBackend
	case "memory":
		mem := storage.NewMemoryBackend(memoryBaseURL(cfg))
		adapter = mem
		opts = append(opts, server.WithMemoryBackend(mem))
		slog.Warn("Using in-memory storage backend; uploads are lost on restart", "base_url", mem.BaseURL)
	}
	backend := storage.Guard(adapter)

	// The bucket must exist before any session work is accepted.
	provCtx, cancel := context.WithTimeout(ctx, provisionTimeout)
	err = upload.NewProvisioner(backend, cfg.Storage.Bucket).EnsureBucketReady(provCtx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to provision bucket %q: %v\n", cfg.Storage.Bucket, err)
		os.Exit(1)
	}
	slog.Info("Bucket ready", "backend", cfg.Storage.Backend, "bucket", cfg.Storage.Bucket)

	coord := upload.New(backend, cfg.Storage.Bucket, upload.ConfigOptions(cfg.Upload)...)
	srv := server.New(cfg, coord, backend, opts...)

	addr := cfg.Addr()

	// Start the server in a goroutine so we can handle shutdown signals.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("videoup listening", "addr", addr)
		if err := srv.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Received signal, shutting down", "signal", sig)

		// Give in-flight requests time to complete.
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("Shutdown error", "error", err)
		}
		slog.Info("Server stopped")

	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}
}

// memoryBaseURL returns the public URL the in-memory store is reachable at.
// An explicit endpoint wins; otherwise the listen address is used, with a
// wildcard host replaced by localhost.
func memoryBaseURL(cfg *config.Config) string {
	if cfg.Storage.Endpoint != "" {
		return cfg.Storage.Endpoint + storage.MemoryPathPrefix
	}
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d%s", host, cfg.Server.Port, storage.MemoryPathPrefix)
}
