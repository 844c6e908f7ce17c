package search

import (
	"context"
	"fmt"

	"github.com/piclocate/piclocate-engine/pkg/models"
	"github.com/piclocate/piclocate-engine/pkg/providers"
	"github.com/piclocate/piclocate-engine/pkg/repositories"
)

// Retrieve runs Stage A (spec.md §4.6): embeds the parsed query's
// normalized text, runs the hybrid predicate, and relaxes to a
// room-only re-query if the first pass starves recall.
func Retrieve(ctx context.Context, images repositories.ImageRepository, embedder providers.Embedder, parsed models.ParsedQuery, topK int) ([]models.RetrievalCandidate, error) {
	embedding, err := embedder.Embed(ctx, parsed.NormalizedText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	params := repositories.SearchParams{
		Room:           parsed.Room,
		Objects:        parsed.Objects,
		FreeColors:     parsed.FreeColors,
		FreeMaterials:  parsed.FreeMaterials,
		QueryEmbedding: embedding,
		Limit:          topK,
	}

	candidates, err := images.Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve candidates: %w", err)
	}

	hasObjectPredicates := len(parsed.Objects) > 0 || len(parsed.FreeColors) > 0 || len(parsed.FreeMaterials) > 0
	if hasObjectPredicates && len(candidates) < topK/2 {
		relaxed := params
		relaxed.RelaxObjects = true
		candidates, err = images.Search(ctx, relaxed)
		if err != nil {
			return nil, fmt.Errorf("retrieve candidates (relaxed): %w", err)
		}
	}

	return candidates, nil
}
