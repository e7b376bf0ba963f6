package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/avelik/docqa/internal/api"
	"github.com/avelik/docqa/internal/chunker"
	"github.com/avelik/docqa/internal/config"
	"github.com/avelik/docqa/internal/extract"
	"github.com/avelik/docqa/internal/index"
	"github.com/avelik/docqa/internal/llm"
	"github.com/avelik/docqa/internal/ollama"
	"github.com/avelik/docqa/internal/rag"
	"github.com/avelik/docqa/internal/reranking"
	"github.com/avelik/docqa/internal/retrieval"
	"github.com/avelik/docqa/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the docqa HTTP server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the docqa MCP server on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// buildApp wires the full pipeline from configuration. The returned cleanup
// closes the metadata store.
func buildApp(ctx context.Context, cfg config.Config) (*rag.Service, *llm.Registry, func(), error) {
	oc := ollama.New(cfg.Embedding.BaseURL)

	// The embedding model is load-bearing; refuse to start without it.
	if err := ollama.EnsureReady(ctx, oc, []string{cfg.Embedding.Model}, os.Stderr); err != nil {
		return nil, nil, nil, err
	}

	// The reranking model is optional; without it queries keep retrieval
	// order.
	var reranker reranking.Reranker
	if err := ollama.EnsureReady(ctx, oc, []string{cfg.Rerank.Model}, os.Stderr); err != nil {
		slog.Warn("reranking model unavailable, queries will keep retrieval order",
			"model", cfg.Rerank.Model, "error", err)
		reranker = reranking.NoOp{}
	} else {
		reranker = reranking.NewCrossEncoder(oc, cfg.Rerank.Model, cfg.Rerank.Timeout)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening storage: %w", err)
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}

	embedder := retrieval.NewEmbedder(oc, cfg.Embedding.Model, cfg.Embedding.Dimension)
	idx := index.NewMemory(cfg.Embedding.Dimension)
	registry := llm.NewRegistry()

	svc := rag.New(
		chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap),
		embedder,
		idx,
		extract.NewPDF(),
		store,
		registry,
		reranker,
		cfg.Upload.Dir,
		slog.Default(),
	)
	return svc, registry, cleanup, nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "docqa version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, registry, cleanup, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	handler := api.NewHandler(api.Deps{
		RAG:         svc,
		LLM:         registry,
		MaxFileSize: cfg.Upload.MaxFileSize,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("docqa listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, _, cleanup, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	mcpSrv := api.NewMCPServer(api.MCPDeps{RAG: svc})
	stdioSrv := server.NewStdioServer(mcpSrv)

	slog.Info("MCP server started (stdio transport)")
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
