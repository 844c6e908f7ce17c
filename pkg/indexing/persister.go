package indexing

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/piclocate/piclocate-engine/pkg/models"
	"github.com/piclocate/piclocate-engine/pkg/providers"
	"github.com/piclocate/piclocate-engine/pkg/repositories"
	"github.com/piclocate/piclocate-engine/pkg/vision"
)

// Persister assembles one Image aggregate from a fetched+analyzed image
// and upserts it inside one logical transaction (spec.md §4.9,
// ImageRepository.Upsert).
type Persister struct {
	images   repositories.ImageRepository
	embedder providers.Embedder
	logger   *zap.Logger
}

// NewPersister constructs a Persister.
func NewPersister(images repositories.ImageRepository, embedder providers.Embedder, logger *zap.Logger) *Persister {
	return &Persister{images: images, embedder: embedder, logger: logger.Named("persister")}
}

// Persist builds caption_en and its embedding from visionResult, then
// upserts the full Image aggregate.
func (p *Persister) Persist(ctx context.Context, fetched *Fetched, visionResult vision.Result, styleTags []string) error {
	img := &models.Image{
		ExternalID:     fetched.Item.ExternalID,
		FileName:       fetched.Item.Name,
		FolderPath:     fetched.Item.Path,
		Width:          fetched.Width,
		Height:         fetched.Height,
		PHash:          fetched.PHash,
		Room:           visionResult.Room,
		RoomConfidence: visionResult.RoomConfidence,
		StyleTags:      styleTags,
		Objects:        visionResult.Objects,
		RoomScores:     visionResult.RoomScores,
	}

	captionText := vision.RenderCaption(img.Room, img.Objects, img.StyleTags)
	facts := buildFacts(img, visionResult.AnalysisPartial)

	embedding, err := vision.BuildEmbedding(ctx, p.embedder, captionText, p.logger)
	if err != nil {
		return fmt.Errorf("build embedding for %s: %w", img.ExternalID, err)
	}

	img.Caption = &models.Caption{
		Text:    captionText,
		Facts:   facts,
		EmbedEn: embedding,
	}
	img.Tags = img.DeriveTags()

	if err := p.images.Upsert(ctx, img); err != nil {
		return fmt.Errorf("upsert image %s: %w", img.ExternalID, err)
	}
	return nil
}

// buildFacts rolls up per-object detections into the structured facts
// dict stored alongside the caption (spec.md §4.4, ImageFacts).
func buildFacts(img *models.Image, partial bool) models.ImageFacts {
	counts := make(map[string]*models.FactsObject)
	order := make([]string, 0, len(img.Objects))
	colorSet := make(map[string]struct{})
	materialSet := make(map[string]struct{})

	for _, o := range img.Objects {
		if _, ok := counts[o.Label]; !ok {
			counts[o.Label] = &models.FactsObject{Label: o.Label, Color: o.ColorName, Material: o.Material}
			order = append(order, o.Label)
		}
		counts[o.Label].Count++
		if o.ColorName != "" {
			colorSet[o.ColorName] = struct{}{}
		}
		if o.Material != "" && o.Material != "unknown" {
			materialSet[o.Material] = struct{}{}
		}
	}

	objects := make([]models.FactsObject, 0, len(order))
	for _, label := range order {
		objects = append(objects, *counts[label])
	}

	return models.ImageFacts{
		Room:            string(img.Room),
		Objects:         objects,
		Materials:       setToSlice(materialSet),
		Colors:          setToSlice(colorSet),
		Style:           img.StyleTags,
		AnalysisPartial: partial,
	}
}

func setToSlice(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
