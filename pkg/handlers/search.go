package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/piclocate/piclocate-engine/pkg/apperrors"
	"github.com/piclocate/piclocate-engine/pkg/auth"
	"github.com/piclocate/piclocate-engine/pkg/models"
	"github.com/piclocate/piclocate-engine/pkg/search"
)

// SearchRequest is the POST /search request body (spec.md §6).
type SearchRequest struct {
	Query string `json:"query"`
	Lang  string `json:"lang,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// SearchResponse is the POST /search response body (spec.md §6):
// {query, translated_query, results[], total_results, processing_ms, partial?}.
type SearchResponse struct {
	Query           string                `json:"query"`
	TranslatedQuery string                `json:"translated_query"`
	Results         []models.SearchResult `json:"results"`
	TotalResults    int                   `json:"total_results"`
	ProcessingMs    int64                 `json:"processing_ms"`
	Partial         bool                  `json:"partial,omitempty"`
}

// SearchHandler wraps search.Engine for the HTTP surface.
type SearchHandler struct {
	engine *search.Engine
	logger *zap.Logger
}

// NewSearchHandler constructs a SearchHandler.
func NewSearchHandler(engine *search.Engine, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{engine: engine, logger: logger.Named("search_handler")}
}

// RegisterRoutes mounts POST /search on mux.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/search", h.Search)
}

// Search handles POST /search: runs the three-stage pipeline for one
// query and returns the ranked results (spec.md §4.5-§4.8, §6).
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		_ = ErrorResponse(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is supported")
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_input", "request body must be valid JSON")
		return
	}
	if req.Query == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_input", "query must not be empty")
		return
	}

	result, err := h.engine.Search(r.Context(), req.Query, req.Lang, req.Limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if subject, err := auth.RequireSubject(r.Context()); err == nil {
		h.logger.Info("search served", zap.String("subject", subject), zap.Int("result_count", len(result.Results)))
	}

	resp := SearchResponse{
		Query:           result.Query,
		TranslatedQuery: result.TranslatedQuery,
		Results:         result.Results,
		TotalResults:    result.TotalResults,
		ProcessingMs:    result.ProcessingMs,
		Partial:         result.Partial,
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("failed to encode search response", zap.Error(err))
	}
}

// writeError maps an AppError's Kind to its HTTP status (spec.md §7); any
// other error is treated as unclassified/fatal.
func (h *SearchHandler) writeError(w http.ResponseWriter, err error) {
	kind := apperrors.KindOf(err)
	h.logger.Error("search failed", zap.String("kind", string(kind)), zap.Error(err))

	status := http.StatusInternalServerError
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status = appErr.HTTPStatus()
	}
	_ = ErrorResponse(w, status, string(kind), err.Error())
}
