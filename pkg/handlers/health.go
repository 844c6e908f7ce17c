package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/piclocate/piclocate-engine/pkg/adapters/imagestore"
	"github.com/piclocate/piclocate-engine/pkg/config"
	"github.com/piclocate/piclocate-engine/pkg/providers"
)

// healthCheckTimeout bounds each per-dependency probe /health runs so one
// slow or dead provider can't make the whole endpoint hang.
const healthCheckTimeout = 5 * time.Second

// ComponentStatus reports one dependency's reachability.
type ComponentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Components is the per-dependency breakdown spec.md §6 requires from
// GET /health.
type Components struct {
	DB          ComponentStatus `json:"db"`
	Embedder    ComponentStatus `json:"embedder"`
	VLM         ComponentStatus `json:"vlm"`
	SourceStore ComponentStatus `json:"source_store"`
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status      string     `json:"status"`
	Components  Components `json:"components"`
	Connections *PoolStats `json:"connections,omitempty"`
}

// PoolStats mirrors the pgxpool.Stat fields useful to an operator glancing
// at /health or /metrics.
type PoolStats struct {
	AcquiredConns int32 `json:"acquired_conns"`
	IdleConns     int32 `json:"idle_conns"`
	MaxConns      int32 `json:"max_conns"`
	TotalConns    int32 `json:"total_conns"`
}

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// HealthHandler handles health check, ping, and pool-metrics endpoints.
// pool, embedder, vlm, and store may each be nil (e.g. in unit tests); a
// nil collaborator reports "not_configured" instead of being probed.
type HealthHandler struct {
	cfg          *config.Config
	pool         *pgxpool.Pool
	embedder     providers.Embedder
	vlm          providers.VLM
	store        imagestore.Store
	rootFolderID string
	logger       *zap.Logger
}

// NewHealthHandler creates a new HealthHandler with the given configuration.
func NewHealthHandler(
	cfg *config.Config,
	pool *pgxpool.Pool,
	embedder providers.Embedder,
	vlm providers.VLM,
	store imagestore.Store,
	rootFolderID string,
	logger *zap.Logger,
) *HealthHandler {
	return &HealthHandler{
		cfg:          cfg,
		pool:         pool,
		embedder:     embedder,
		vlm:          vlm,
		store:        store,
		rootFolderID: rootFolderID,
		logger:       logger,
	}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/ping", h.Ping)
	mux.HandleFunc("/metrics", h.Metrics)
}

// Health handles GET /health requests, probing every wired dependency
// (spec.md §6: {status, components:{db, embedder, vlm, source_store}}).
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	components := Components{
		DB:          h.checkDB(ctx),
		Embedder:    h.checkEmbedder(ctx),
		VLM:         h.checkVLM(ctx),
		SourceStore: h.checkSourceStore(ctx),
	}

	status := "ok"
	for _, c := range []ComponentStatus{components.DB, components.Embedder, components.VLM, components.SourceStore} {
		if c.Status == "error" {
			status = "degraded"
			break
		}
	}

	response := HealthResponse{Status: status, Components: components}
	if h.pool != nil {
		response.Connections = poolStats(h.pool)
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

func (h *HealthHandler) checkDB(ctx context.Context) ComponentStatus {
	if h.pool == nil {
		return ComponentStatus{Status: "not_configured"}
	}
	if err := h.pool.Ping(ctx); err != nil {
		return ComponentStatus{Status: "error", Error: err.Error()}
	}
	return ComponentStatus{Status: "ok"}
}

func (h *HealthHandler) checkEmbedder(ctx context.Context) ComponentStatus {
	if h.embedder == nil {
		return ComponentStatus{Status: "not_configured"}
	}
	if _, err := h.embedder.Embed(ctx, "healthcheck"); err != nil {
		return ComponentStatus{Status: "error", Error: err.Error()}
	}
	return ComponentStatus{Status: "ok"}
}

func (h *HealthHandler) checkVLM(ctx context.Context) ComponentStatus {
	if h.vlm == nil {
		return ComponentStatus{Status: "not_configured"}
	}
	if _, err := h.vlm.Verify(ctx, "healthcheck", nil); err != nil {
		return ComponentStatus{Status: "error", Error: err.Error()}
	}
	return ComponentStatus{Status: "ok"}
}

func (h *HealthHandler) checkSourceStore(ctx context.Context) ComponentStatus {
	if h.store == nil {
		return ComponentStatus{Status: "not_configured"}
	}
	if _, err := h.store.ListFolder(ctx, h.rootFolderID); err != nil {
		return ComponentStatus{Status: "error", Error: err.Error()}
	}
	return ComponentStatus{Status: "ok"}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "piclocate-engine",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}

// Metrics handles GET /metrics, reporting database pool stats. Returns 503
// if no pool is wired.
func (h *HealthHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		http.Error(w, "database pool unavailable", http.StatusServiceUnavailable)
		return
	}

	if err := WriteJSON(w, http.StatusOK, poolStats(h.pool)); err != nil {
		h.logger.Error("Failed to encode metrics response", zap.Error(err))
	}
}

func poolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		AcquiredConns: stat.AcquiredConns(),
		IdleConns:     stat.IdleConns(),
		MaxConns:      stat.MaxConns(),
		TotalConns:    stat.TotalConns(),
	}
}
