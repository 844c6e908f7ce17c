package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/piclocate/piclocate-engine/pkg/auth"
	"github.com/piclocate/piclocate-engine/pkg/indexing"
)

// StartResponse is the POST /index/start response body (spec.md §6):
// {status: "started"|"already_running"}.
type StartResponse struct {
	Status string `json:"status"`
}

// IndexHandler exposes indexing run control and status (spec.md §4.9,
// §6). Pipeline.Run blocks until the whole crawl finishes, so /index/start
// launches it on a detached background context and returns immediately;
// progress is polled through /index/status.
type IndexHandler struct {
	pipeline     *indexing.Pipeline
	progress     *indexing.ProgressTracker
	rootFolderID string
	logger       *zap.Logger
}

// NewIndexHandler constructs an IndexHandler.
func NewIndexHandler(pipeline *indexing.Pipeline, progress *indexing.ProgressTracker, rootFolderID string, logger *zap.Logger) *IndexHandler {
	return &IndexHandler{pipeline: pipeline, progress: progress, rootFolderID: rootFolderID, logger: logger.Named("index_handler")}
}

// RegisterRoutes mounts POST /index/start and GET /index/status on mux.
func (h *IndexHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/index/start", h.Start)
	mux.HandleFunc("/index/status", h.Status)
}

// Start handles POST /index/start. Returns 409 if a run is already in
// progress, since the crawler/fetcher/persister pools aren't safe to
// share across two concurrent runs.
func (h *IndexHandler) Start(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		_ = ErrorResponse(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is supported")
		return
	}

	if h.progress.Snapshot().IsRunning {
		if err := WriteJSON(w, http.StatusConflict, StartResponse{Status: "already_running"}); err != nil {
			h.logger.Error("failed to encode index start response", zap.Error(err))
		}
		return
	}

	subject, _ := auth.RequireSubject(r.Context())
	h.logger.Info("indexing run started", zap.String("subject", subject), zap.String("root_folder_id", h.rootFolderID))

	go func() {
		if err := h.pipeline.Run(context.Background(), h.rootFolderID); err != nil {
			h.logger.Error("indexing run failed", zap.Error(err))
		}
	}()

	if err := WriteJSON(w, http.StatusAccepted, StartResponse{Status: "started"}); err != nil {
		h.logger.Error("failed to encode index start response", zap.Error(err))
	}
}

// Status handles GET /index/status, reporting the current Snapshot.
func (h *IndexHandler) Status(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, h.progress.Snapshot()); err != nil {
		h.logger.Error("failed to encode index status response", zap.Error(err))
	}
}
