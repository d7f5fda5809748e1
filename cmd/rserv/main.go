package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"rserv/infrastructure/config"
	"rserv/infrastructure/di"
	"rserv/interfaces/http/rest"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	printBanner(cfg)

	container, err := di.Build(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize container", zap.Error(err))
	}
	defer container.Close()

	if err := container.Bootstrap(); err != nil {
		logger.Fatal("Failed to rebuild indexes from store", zap.Error(err))
	}

	router := rest.NewRouter(
		container.Documents,
		container.Sessions,
		container.Overlay,
		container.Metrics,
		cfg,
		logger,
	)

	srv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      router.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("address", cfg.ListenAddr()),
			zap.String("schema", cfg.SchemaName),
			zap.String("graph", cfg.RservGraph),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func printBanner(cfg *config.Config) {
	fmt.Printf(`rserv — file-backed document server with graph overlay

  server
    listen             %s
    schema             %s
    data dir           %s
    schema dir         %s

  documents
    patch null policy  %s
    cascading delete   %t
    ref embed depth    %d
    default page size  %d

  graph
    mode               %s
    cycle detection    %s
    max query depth    %d
    query ttl          %ds
    adjacency file     %s
    index file         %s

  reads
    cache ttl          %ds
    fulltext           %t
    metrics            %t

`,
		cfg.ListenAddr(), cfg.SchemaName, cfg.DataDir, cfg.SchemaDir,
		cfg.PatchNull, cfg.CascadingDelete, cfg.RefEmbedDepth, cfg.DefaultPageSize,
		cfg.RservGraph, cfg.GraphCycleDetection, cfg.MaxQueryDepth, cfg.GraphQueryTTL,
		cfg.AdjacencyListFile, cfg.GraphIndexFile,
		cfg.CacheTTL, cfg.FulltextEnabled, cfg.EnableMetrics,
	)
}
