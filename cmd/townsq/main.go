// Townsq is a per-topic message store for community platforms.
//
// This binary starts the townsq HTTP server: per-topic message tables with
// hybrid text/vector search, embedding generation with a deterministic
// fallback, and a cross-topic per-user message quota.
//
// Usage:
//
//	# Start server with defaults
//	townsq
//
//	# Load a config file
//	townsq -config /etc/townsq/config.yaml
//
//	# Configure via environment
//	TOWNSQ_SERVER_PORT=9090 TOWNSQ_EMBEDDING_BACKEND=openai townsq
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/townsq/internal/config"
	"github.com/fyrsmithlabs/townsq/internal/embeddings"
	townsqhttp "github.com/fyrsmithlabs/townsq/internal/http"
	"github.com/fyrsmithlabs/townsq/internal/logging"
	"github.com/fyrsmithlabs/townsq/internal/messagestore"
	"github.com/fyrsmithlabs/townsq/internal/quota"
	"github.com/fyrsmithlabs/townsq/internal/registry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("townsq %s (%s)\n", version, gitCommit)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// run starts the townsq server and blocks until ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting townsq",
		zap.String("version", version),
		zap.String("data_path", cfg.DataPath),
		zap.String("embedding_backend", string(cfg.Embedding.Backend)),
	)

	embedder, err := embeddings.NewProvider(cfg.Embedding, logger)
	if err != nil {
		return fmt.Errorf("creating embedding provider: %w", err)
	}
	defer embedder.Close()

	reg := registry.New(messagestore.Config{
		RootPath:            cfg.DataPath,
		SimilarityThreshold: cfg.Search.SimilarityThreshold,
		ExactMatchThreshold: cfg.Search.ExactMatchThreshold,
	}, embedder, logger)
	if err := reg.SeedDefaults(ctx); err != nil {
		return fmt.Errorf("seeding default topics: %w", err)
	}

	limiter := quota.New(reg, cfg.MaxMessagesPerUser, logger)

	server, err := townsqhttp.NewServer(reg, limiter, logger, &townsqhttp.Config{
		Host:               "0.0.0.0",
		Port:               cfg.Server.Port,
		WriteRatePerSecond: cfg.Server.WriteRatePerSecond,
		WriteRateBurst:     cfg.Server.WriteRateBurst,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
