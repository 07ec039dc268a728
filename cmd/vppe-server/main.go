// Command vppe-server runs the HTTP API that turns scanned PDFs into
// EPUB3 books. Entrypoint shape (config load, logger, graceful
// shutdown on SIGINT/SIGTERM) is grounded on
// libs/knowledge-engine/cmd/knowledge-engine-api/main.go.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spherical/vppe/internal/cleanup"
	"github.com/spherical/vppe/internal/config"
	"github.com/spherical/vppe/internal/events"
	"github.com/spherical/vppe/internal/httpapi"
	"github.com/spherical/vppe/internal/observability"
	"github.com/spherical/vppe/internal/ocr"
	"github.com/spherical/vppe/internal/orchestrator"
	"github.com/spherical/vppe/internal/pdfrender"
	"github.com/spherical/vppe/internal/registry"
	epubassembler "github.com/spherical/vppe/internal/epub"
)

func main() {
	cfg := config.Load()

	logger := observability.NewLogger(observability.LogConfig{
		Level:       "info",
		Format:      "console",
		ServiceName: "vppe",
	})

	logger.Info().
		Str("data_dir", cfg.DataDir).
		Str("ollama_model", cfg.OllamaModel).
		Int("ocr_workers", cfg.OCRWorkers).
		Msg("starting vppe-server")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create data directory: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.DataDir+"/jobs", 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create jobs directory: %v\n", err)
		os.Exit(1)
	}

	reg := registry.New(cfg.DataDir, logger)
	if err := reg.LoadFromDisk(); err != nil {
		logger.Error().Err(err).Msg("failed to load jobs from disk")
	}

	bus := events.NewRegistry(cfg.SSERingBufferSize)

	renderer := pdfrender.New(cfg.MaxImageDimension)
	ocrClient := ocr.New(ocr.Config{
		BaseURL:    cfg.OllamaBaseURL,
		Model:      cfg.OllamaModel,
		Timeout:    cfg.OCRTimeout,
		MaxRetries: cfg.OCRRetries,
		Logger:     logger,
	})
	assembler := epubassembler.New()

	orch := orchestrator.New(orchestrator.Config{
		Renderer:        renderer,
		OCR:             ocrClient,
		Assembler:       assembler,
		Registry:        reg,
		Bus:             bus,
		Logger:          logger,
		DataDir:         cfg.DataDir,
		RenderDPI:       cfg.RenderDPI,
		JPEGQuality:     cfg.JPEGQuality,
		OCRWorkers:      cfg.OCRWorkers,
		RenderQueueSize: cfg.RenderQueueSize,
		PagesPerChapter: cfg.PagesPerChapter,
		DefaultPrompt:   cfg.DefaultOCRPrompt,
	})

	sweeper := cleanup.New(cleanup.Config{
		Registry:    reg,
		Bus:         bus,
		Logger:      logger,
		DataDir:     cfg.DataDir,
		JobTTLHours: cfg.JobTTLHours,
		PDFTTLHours: cfg.PDFTTLHours,
		Interval:    cfg.CleanupInterval,
	})

	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	go sweeper.Run(cleanupCtx)

	router := httpapi.NewRouter(cfg, reg, bus, orch, renderer, sweeper, logger)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // SSE streams and large EPUB downloads run long.
		IdleTimeout:  90 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server error")
		}
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	}

	stopCleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("forced shutdown failed")
		}
	}

	logger.Info().Msg("vppe-server stopped")
}
