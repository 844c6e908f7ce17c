// Package vision runs the four detection/analysis passes over one decoded
// image (spec.md §4.3): object detection, per-object color, per-object
// material, and room classification by weighted object voting.
package vision

import (
	"context"
	"strings"

	"github.com/piclocate/piclocate-engine/pkg/models"
	"github.com/piclocate/piclocate-engine/pkg/providers"
)

// minDetectionScore drops low-confidence raw detections before
// canonicalization (spec.md §4.3 pass A).
const minDetectionScore = 0.25

// maxIoUOverlap is the overlap threshold above which two same-label boxes
// are deduplicated, keeping the higher-scoring one.
const maxIoUOverlap = 0.6

// Detection is one canonicalized, deduplicated object box surviving pass A,
// ready for pass B (color) and pass C (material).
type Detection struct {
	Label      string
	Confidence float64
	BBox       models.BBox
}

// DetectObjects runs pass A: detect, filter by score, canonicalize labels
// via the synonym table, and drop overlapping duplicates.
func DetectObjects(ctx context.Context, detector providers.Detector, imageBytes []byte) ([]Detection, error) {
	raw, err := detector.Detect(ctx, imageBytes)
	if err != nil {
		return nil, err
	}

	canonical := make([]Detection, 0, len(raw))
	for _, d := range raw {
		if d.Score < minDetectionScore {
			continue
		}
		label := canonicalLabel(d.LabelRaw)
		if label == "" {
			continue
		}
		canonical = append(canonical, Detection{
			Label:      label,
			Confidence: d.Score,
			BBox:       models.BBox{X: d.BBox.X, Y: d.BBox.Y, W: d.BBox.W, H: d.BBox.H},
		})
	}

	return dedupeByIoU(canonical), nil
}

// canonicalLabel folds a raw detector class name to the closed
// models.ObjectLabels vocabulary via models.LabelSynonyms, or passes through
// unchanged if it's already canonical. Anything neither canonical nor a
// known synonym is dropped.
func canonicalLabel(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := models.LabelSynonyms[key]; ok {
		return canonical
	}
	for _, l := range models.ObjectLabels {
		if l == key {
			return l
		}
	}
	return ""
}

// dedupeByIoU drops the lower-scoring box of any same-label pair whose IoU
// exceeds maxIoUOverlap.
func dedupeByIoU(in []Detection) []Detection {
	keep := make([]bool, len(in))
	for i := range keep {
		keep[i] = true
	}
	for i := 0; i < len(in); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(in); j++ {
			if !keep[j] || in[i].Label != in[j].Label {
				continue
			}
			if iou(in[i].BBox, in[j].BBox) > maxIoUOverlap {
				if in[i].Confidence >= in[j].Confidence {
					keep[j] = false
				} else {
					keep[i] = false
					break
				}
			}
		}
	}

	out := make([]Detection, 0, len(in))
	for i, k := range keep {
		if k {
			out = append(out, in[i])
		}
	}
	return out
}

func iou(a, b models.BBox) float64 {
	ax2, ay2 := a.X+a.W, a.Y+a.H
	bx2, by2 := b.X+b.W, b.Y+b.H

	ix1, iy1 := max(a.X, b.X), max(a.Y, b.Y)
	ix2, iy2 := min(ax2, bx2), min(ay2, by2)

	iw, ih := ix2-ix1, iy2-iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	intersection := float64(iw * ih)
	union := float64(a.W*a.H+b.W*b.H) - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}
