package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/pablobfonseca/go-photo-organizer/classification"
	"github.com/pablobfonseca/go-photo-organizer/classifier"
	"github.com/pablobfonseca/go-photo-organizer/config"
	"github.com/pablobfonseca/go-photo-organizer/database"
	"github.com/pablobfonseca/go-photo-organizer/handlers"
	"github.com/pablobfonseca/go-photo-organizer/identity"
	"github.com/pablobfonseca/go-photo-organizer/library"
	"github.com/pablobfonseca/go-photo-organizer/logging"
	"github.com/pablobfonseca/go-photo-organizer/queue"
	"github.com/pablobfonseca/go-photo-organizer/services"
	"github.com/pablobfonseca/go-photo-organizer/worker"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, dir := range []string{cfg.UploadsDir, cfg.OrganizedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	db, err := database.Connect(cfg, logger)
	if err != nil {
		return err
	}
	repo := database.NewCategoryRepository(db, "/uploads")

	keywords := classifier.NewKeywordClassifier()
	registry := identity.NewRegistry(cfg.PersonSimilarityThreshold)
	ollama := services.NewOllamaClient(services.OllamaClientOptions{
		BaseURL:        cfg.OllamaURL(),
		Model:          cfg.Model,
		EmbeddingModel: cfg.EmbeddingModel,
		Timeout:        cfg.OllamaTimeout,
		RetryMax:       cfg.OllamaRetryMax,
	})

	var source services.LabelSource = services.NewKeywordLabelSource(keywords)
	if cfg.LabelSource == config.SourceOllama {
		ollamaSource := services.NewOllamaLabelSource(ollama, cfg.OllamaCacheSize, logger)
		go ollamaSource.Initialize(ctx)
		source = ollamaSource
	}

	var embedder services.EmbeddingSource = services.NewPseudoEmbedder(cfg.PseudoEmbeddingDimensions)
	if cfg.EmbeddingSource == config.SourceOllama {
		var limiter *rate.Limiter
		if cfg.OllamaRateLimit > 0 {
			limiter = rate.NewLimiter(rate.Limit(cfg.OllamaRateLimit), 1)
		}
		embedder = &services.FallbackEmbedder{
			Primary:  services.NewOllamaEmbedder(ollama, limiter, cfg.OllamaCacheSize),
			Fallback: embedder,
		}
	}

	engine := classification.NewEngine(keywords, registry, source, classification.Options{
		HashFallback: cfg.HashFallback,
		Logger:       logger,
	})
	lib := library.New(repo, engine, registry, embedder, library.Options{
		UploadsDir:   cfg.UploadsDir,
		OrganizedDir: cfg.OrganizedDir,
		Logger:       logger,
	})
	if err := lib.Restore(ctx); err != nil {
		return err
	}

	var tasks handlers.TaskQueue
	if cfg.RedisAddr != "" {
		client, err := queue.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Warn("Queue functionality will be disabled", "error", err)
		} else {
			defer client.Close()
			q := queue.New(client, queue.BulkQueue, logger)
			w := worker.NewWorker(q, lib, logger)
			w.Start(ctx)
			defer w.Stop()
			tasks = q
		}
	}

	h := handlers.NewHandler(lib, tasks, cfg.MaxUploadMB, logger)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(h, cfg.UploadsDir, cfg.OrganizedDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server running", "port", cfg.Port, "label_source", source.Name(), "embedding_source", cfg.EmbeddingSource)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
