package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/piclocate/piclocate-engine/pkg/auth"
	"github.com/piclocate/piclocate-engine/pkg/handlers"
	"github.com/piclocate/piclocate-engine/pkg/mcp"
	"github.com/piclocate/piclocate-engine/pkg/mcp/tools"
	"github.com/piclocate/piclocate-engine/pkg/middleware"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	a, err := bootstrap(ctx, version)
	if err != nil {
		return err
	}
	defer a.db.Close()
	defer a.jwks.Close()

	mux := http.NewServeMux()

	handlers.NewHealthHandler(a.cfg, a.db.Pool, a.embedder, a.vlm, a.store, a.cfg.Source.RootFolderID, a.logger).RegisterRoutes(mux)
	authMiddleware := auth.NewMiddleware(a.jwks, a.logger)

	searchHandler := handlers.NewSearchHandler(a.engine, a.logger)
	mux.HandleFunc("/search", authMiddleware.RequireAuth(searchHandler.Search))

	indexHandler := handlers.NewIndexHandler(a.pipeline, a.progress, a.cfg.Source.RootFolderID, a.logger)
	mux.HandleFunc("/index/start", authMiddleware.RequireAuth(indexHandler.Start))
	mux.HandleFunc("/index/status", authMiddleware.RequireAuth(indexHandler.Status))

	statsHandler := handlers.NewStatsHandler(a.images, a.verdictCache, a.logger)
	mux.HandleFunc("/stats", authMiddleware.RequireAuth(statsHandler.Stats))

	mcpServer := mcp.NewServer("piclocate-engine", version, a.logger)
	tools.RegisterAll(mcpServer.MCP(), tools.Deps{Engine: a.engine, Progress: a.progress, Version: version})
	mux.Handle("/mcp", middleware.MCPRequestLogger(a.logger)(mcpServer.NewStreamableHTTPServer()))

	addr := a.cfg.BindAddr + ":" + a.cfg.Port
	a.logger.Info("starting piclocate-engine", zap.String("addr", addr), zap.String("version", version))

	handler := middleware.RequestLogger(a.logger)(mux)
	if err := http.ListenAndServe(addr, handler); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
