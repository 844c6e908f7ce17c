package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/piclocate/piclocate-engine/pkg/adapters/imagestore"
	"github.com/piclocate/piclocate-engine/pkg/auth"
	"github.com/piclocate/piclocate-engine/pkg/cache"
	"github.com/piclocate/piclocate-engine/pkg/config"
	"github.com/piclocate/piclocate-engine/pkg/database"
	"github.com/piclocate/piclocate-engine/pkg/indexing"
	"github.com/piclocate/piclocate-engine/pkg/logging"
	"github.com/piclocate/piclocate-engine/pkg/providers"
	"github.com/piclocate/piclocate-engine/pkg/repositories"
	"github.com/piclocate/piclocate-engine/pkg/search"
)

// exitCode is the process exit status per spec.md §6: 0 success, 2 config
// error, 3 auth error, 4 DB unreachable, 5 source-store unreachable.
type exitCode int

const (
	exitOK            exitCode = 0
	exitConfigError   exitCode = 2
	exitAuthError     exitCode = 3
	exitDBUnreachable exitCode = 4
	exitSourceUnreach exitCode = 5
)

// bootstrapError pairs a startup failure with the exit code it maps to, so
// every command reports the right status without duplicating the
// classification logic.
type bootstrapError struct {
	code exitCode
	err  error
}

func (e *bootstrapError) Error() string { return e.err.Error() }
func (e *bootstrapError) Unwrap() error { return e.err }

// app bundles every collaborator a command needs, constructed once at
// startup and shared by serve/index/search.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *database.DB
	jwks   *auth.JWKSClient

	images   repositories.ImageRepository
	store    imagestore.Store
	embedder providers.Embedder
	detector providers.Detector
	vlm      providers.VLM

	verdictCache *cache.VerdictCache
	engine       *search.Engine
	progress     *indexing.ProgressTracker
	pipeline     *indexing.Pipeline
}

// bootstrap loads configuration and wires every collaborator, failing fast
// with the exit code spec.md §6 assigns to each class of startup failure.
func bootstrap(ctx context.Context, version string) (*app, error) {
	cfg, err := config.Load(version)
	if err != nil {
		return nil, &bootstrapError{exitConfigError, fmt.Errorf("config: %w", err)}
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		return nil, &bootstrapError{exitConfigError, fmt.Errorf("logger: %w", err)}
	}

	jwks, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		return nil, &bootstrapError{exitAuthError, fmt.Errorf("jwks: %w", err)}
	}

	searchConcurrency := cfg.VLM.Concurrency
	if searchConcurrency <= 0 {
		searchConcurrency = 1
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.ResolvePoolSize(searchConcurrency),
	})
	if err != nil {
		return nil, &bootstrapError{exitDBUnreachable, fmt.Errorf("database: %w", err)}
	}

	store, err := imagestore.New(imagestore.Config{
		BaseURL: cfg.Source.BaseURL,
		APIKey:  cfg.Source.APIKey,
	}, logger)
	if err != nil {
		return nil, &bootstrapError{exitSourceUnreach, fmt.Errorf("source store: %w", err)}
	}
	if _, err := store.ListFolder(ctx, cfg.Source.RootFolderID); err != nil {
		return nil, &bootstrapError{exitSourceUnreach, fmt.Errorf("source store unreachable: %w", err)}
	}

	images := repositories.NewImageRepository(db.Pool)

	embedder, err := providers.NewOpenAIEmbedder(providers.EmbedderConfig{
		Endpoint:  cfg.Embedding.ModelURL,
		APIKey:    cfg.Embedding.APIKey,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
	}, logger)
	if err != nil {
		return nil, &bootstrapError{exitConfigError, fmt.Errorf("embedder: %w", err)}
	}

	detector, err := providers.NewHTTPDetector(providers.DetectorConfig{
		Endpoint: cfg.Vision.DetectModelURL,
		APIKey:   cfg.Vision.DetectAPIKey,
	}, logger)
	if err != nil {
		return nil, &bootstrapError{exitConfigError, fmt.Errorf("detector: %w", err)}
	}

	vlm, err := providers.NewOpenAIVLM(providers.VLMConfig{
		Endpoint: cfg.VLM.ModelURL,
		APIKey:   cfg.VLM.APIKey,
		Model:    cfg.VLM.Model,
	}, logger)
	if err != nil {
		return nil, &bootstrapError{exitConfigError, fmt.Errorf("vlm: %w", err)}
	}

	verdictCache, err := cache.NewVerdictCache(cfg.Cache.MaxItems, cfg.Cache.TTLDays)
	if err != nil {
		return nil, &bootstrapError{exitConfigError, fmt.Errorf("verdict cache: %w", err)}
	}

	engine := search.NewEngine(images, embedder, vlm, store, verdictCache, cfg.Search, cfg.VLM, logger)

	progress := indexing.NewProgressTracker(db.Pool, logger)
	if err := progress.Restore(ctx); err != nil {
		return nil, &bootstrapError{exitDBUnreachable, fmt.Errorf("restore indexing progress: %w", err)}
	}
	crawler := indexing.NewCrawler(store, images, cfg.Indexing.Incremental, logger)
	fetcher := indexing.NewFetcher(store, images, cfg.Vision.MaxImagePx, logger)
	persister := indexing.NewPersister(images, embedder, logger)
	pipeline := indexing.NewPipeline(crawler, fetcher, detector, embedder, persister, progress, indexing.PoolSizes{
		FetcherPool: cfg.Indexing.FetcherPoolSize,
		VisionPool:  cfg.Indexing.VisionPoolSize,
		EmbedPool:   cfg.Indexing.EmbedPoolSize,
		PersistPool: cfg.Indexing.PersistPoolSize,
	}, logger)

	return &app{
		cfg:          cfg,
		logger:       logger,
		db:           db,
		jwks:         jwks,
		images:       images,
		store:        store,
		embedder:     embedder,
		detector:     detector,
		vlm:          vlm,
		verdictCache: verdictCache,
		engine:       engine,
		progress:     progress,
		pipeline:     pipeline,
	}, nil
}
