package vision

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/piclocate/piclocate-engine/pkg/models"
	"github.com/piclocate/piclocate-engine/pkg/providers"
)

// embedRetryDelays are the two retry waits spec.md §4.4 prescribes before
// giving up on an embedding and persisting the image without embed_en.
var embedRetryDelays = []time.Duration{1 * time.Second, 4 * time.Second}

// RenderCaption builds caption_en from an Image's room, top objects, and
// style tags, following the template in spec.md §4.4:
// "{Room} with {top-3 objects with adjective color + material}; {style tags}."
func RenderCaption(room models.Room, objects []models.Object, styleTags []string) string {
	top := topObjects(objects, 3)

	var roomText string
	if room == "" || room == models.RoomUnknown {
		roomText = "Room"
	} else {
		roomText = strings.Title(strings.ReplaceAll(string(room), "_", " "))
	}

	var phrases []string
	for _, o := range top {
		phrases = append(phrases, describeObject(o))
	}

	var b strings.Builder
	b.WriteString(roomText)
	if len(phrases) > 0 {
		b.WriteString(" with ")
		b.WriteString(strings.Join(phrases, "; "))
	}
	if len(styleTags) > 0 {
		b.WriteString("; ")
		b.WriteString(strings.Join(styleTags, ", "))
		b.WriteString(" style")
	}
	b.WriteString(".")
	return b.String()
}

// describeObject renders one object as "<color> <material> <label>",
// dropping "unknown" material and pluralizing on count isn't tracked per
// object so this always renders a single descriptive phrase.
func describeObject(o models.Object) string {
	parts := make([]string, 0, 3)
	if o.ColorName != "" {
		parts = append(parts, o.ColorName)
	}
	if o.Material != "" && o.Material != "unknown" {
		parts = append(parts, o.Material)
	}
	parts = append(parts, strings.ReplaceAll(o.Label, "_", " "))
	return strings.Join(parts, " ")
}

// topObjects returns the n highest-confidence objects, largest area first
// as a tiebreak.
func topObjects(objects []models.Object, n int) []models.Object {
	sorted := make([]models.Object, len(objects))
	copy(sorted, objects)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].LabelConfidence != sorted[j].LabelConfidence {
			return sorted[i].LabelConfidence > sorted[j].LabelConfidence
		}
		return sorted[i].AreaPixels > sorted[j].AreaPixels
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// BuildEmbedding requests an embedding for text, retrying on the delay
// schedule in embedRetryDelays. Returns (nil, nil) rather than an error
// when all attempts fail, signalling the caller to persist the image
// without embed_en per spec.md §4.4.
func BuildEmbedding(ctx context.Context, embedder providers.Embedder, text string, logger *zap.Logger) ([]float32, error) {
	vec, err := embedder.Embed(ctx, text)
	if err == nil {
		return vec, nil
	}
	lastErr := err

	for _, delay := range embedRetryDelays {
		select {
		case <-ctx.Done():
			return nil, nil
		case <-time.After(delay):
		}
		vec, err = embedder.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
	}

	logger.Warn("embedding failed after retries, persisting without embed_en", zap.Error(lastErr))
	return nil, nil
}
