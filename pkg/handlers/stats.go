package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/piclocate/piclocate-engine/pkg/cache"
	"github.com/piclocate/piclocate-engine/pkg/repositories"
)

// StatsHandler wraps ImageRepository.Stats for the HTTP surface
// (spec.md §6).
type StatsHandler struct {
	images repositories.ImageRepository
	cache  *cache.VerdictCache
	logger *zap.Logger
}

// NewStatsHandler constructs a StatsHandler.
func NewStatsHandler(images repositories.ImageRepository, verdictCache *cache.VerdictCache, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{images: images, cache: verdictCache, logger: logger.Named("stats_handler")}
}

// RegisterRoutes mounts GET /stats on mux.
func (h *StatsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/stats", h.Stats)
}

// statsResponse wraps the indexed-image aggregate with the live size of
// the VLM verdict cache, for operators watching cache effectiveness.
type statsResponse struct {
	repositories.Stats
	VerdictCacheSize int `json:"verdict_cache_size"`
}

// Stats handles GET /stats, reporting the indexed-image aggregate.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.images.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to load stats", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "fatal", "failed to load stats")
		return
	}

	resp := statsResponse{Stats: stats, VerdictCacheSize: h.cache.Len()}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("failed to encode stats response", zap.Error(err))
	}
}
