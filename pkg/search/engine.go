package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/piclocate/piclocate-engine/pkg/adapters/imagestore"
	"github.com/piclocate/piclocate-engine/pkg/cache"
	"github.com/piclocate/piclocate-engine/pkg/config"
	"github.com/piclocate/piclocate-engine/pkg/models"
	"github.com/piclocate/piclocate-engine/pkg/providers"
	"github.com/piclocate/piclocate-engine/pkg/repositories"
)

// Engine owns every collaborator the search pipeline needs and drives
// query→retrieve→verify→rerank end to end. It replaces the process-global
// singletons the design note (spec.md §9) flags, with explicit
// construction instead (Open Question resolved in DESIGN.md).
type Engine struct {
	images   repositories.ImageRepository
	embedder providers.Embedder
	vlm      providers.VLM
	store    imagestore.Store
	cache    *cache.VerdictCache

	search config.SearchConfig
	vlmCfg config.VLMConfig

	logger *zap.Logger
}

// NewEngine constructs an Engine.
func NewEngine(
	images repositories.ImageRepository,
	embedder providers.Embedder,
	vlm providers.VLM,
	store imagestore.Store,
	verdictCache *cache.VerdictCache,
	search config.SearchConfig,
	vlmCfg config.VLMConfig,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		images:   images,
		embedder: embedder,
		vlm:      vlm,
		store:    store,
		cache:    verdictCache,
		search:   search,
		vlmCfg:   vlmCfg,
		logger:   logger.Named("search"),
	}
}

// Response is the full outcome of one Search call: the ranked results plus
// the bookkeeping fields spec.md §6 lists alongside them in the POST
// /search response body.
type Response struct {
	Query           string                `json:"query"`
	TranslatedQuery string                `json:"translated_query"`
	Results         []models.SearchResult `json:"results"`
	TotalResults    int                   `json:"total_results"`
	ProcessingMs    int64                 `json:"processing_ms"`
	Partial         bool                  `json:"partial,omitempty"`
}

// Search runs the full pipeline for one user query, bounded by the
// configured overall deadline (spec.md §4.6-§4.8). limit overrides the
// configured FinalLimit when positive. If the deadline is exceeded partway
// through, Search returns whatever Stage C produced so far with
// Partial set instead of a hard error (spec.md §5).
func (e *Engine) Search(ctx context.Context, rawQuery string, lang string, limit int) (Response, error) {
	start := time.Now()

	deadline := time.Duration(e.search.DeadlineSec) * time.Second
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	parsed := ParseQuery(rawQuery, lang)
	resp := Response{Query: rawQuery, TranslatedQuery: parsed.NormalizedText}

	finalLimit := e.search.FinalLimit
	if limit > 0 {
		finalLimit = limit
	}

	candidates, err := Retrieve(ctx, e.images, e.embedder, parsed, e.search.TopK)
	if err != nil {
		if ctx.Err() != nil {
			e.logger.Warn("stage A retrieve did not finish before the search deadline", zap.Error(err))
			resp.Partial = true
			resp.ProcessingMs = time.Since(start).Milliseconds()
			return resp, nil
		}
		return Response{}, fmt.Errorf("stage A retrieve: %w", err)
	}
	if len(candidates) == 0 {
		resp.ProcessingMs = time.Since(start).Milliseconds()
		return resp, nil
	}

	e.resolveSignedURLs(ctx, candidates)

	verdicts, partial := Verify(ctx, e.vlm, e.cache, parsed.NormalizedText, candidates,
		e.vlmCfg.BatchSize, e.vlmCfg.Concurrency, float64(e.vlmCfg.RequestsPerSec), e.logger)

	resp.Results = Rerank(candidates, verdicts, e.search.Cutoff, e.search.Alpha, finalLimit)
	resp.TotalResults = len(resp.Results)
	resp.Partial = partial || ctx.Err() != nil
	resp.ProcessingMs = time.Since(start).Milliseconds()
	return resp, nil
}

// resolveSignedURLs attaches a fetchable URL to every candidate so Stage B
// can hand them to the VLM. A failure here is non-fatal: that candidate is
// verified without image content and will fail its VLM check on its own
// merits (spec.md §4.7 sends "URLs or inline" and tolerates neither being
// available for a given image).
func (e *Engine) resolveSignedURLs(ctx context.Context, candidates []models.RetrievalCandidate) {
	for i := range candidates {
		url, err := e.store.SignedURL(ctx, candidates[i].ExternalID)
		if err != nil {
			e.logger.Warn("signed URL lookup failed",
				zap.String("external_id", candidates[i].ExternalID), zap.Error(err))
			continue
		}
		candidates[i].SignedURL = url
	}
}
