package vision

import (
	"image"
	"math"

	"github.com/piclocate/piclocate-engine/pkg/models"
)

// minMaterialConfidence is the floor below which pass C falls back to
// "unknown" (spec.md §4.3 pass C).
const minMaterialConfidence = 0.4

// MaterialResult is the outcome of pass C for one detected object.
type MaterialResult struct {
	Material   string
	Confidence float64
}

// ClassifyMaterial applies the label-prior heuristic rules of spec.md §4.3
// pass C against the luminance texture and chroma of the object's crop.
func ClassifyMaterial(img image.Image, box models.BBox, label string, colorLAB models.LAB) MaterialResult {
	variance, _ := luminanceStats(img, box)
	chroma := math.Hypot(colorLAB.A, colorLAB.B)
	highGloss := variance < 120 // low local variance reads as a smooth, reflective surface
	highVariance := variance > 600

	switch label {
	case "dining_table", "coffee_table", "table":
		if highGloss {
			if chroma < 10 {
				return MaterialResult{Material: "marble", Confidence: 0.6}
			}
			return MaterialResult{Material: "wood", Confidence: 0.55}
		}
	case "kitchen_island":
		if highVariance {
			return MaterialResult{Material: "granite", Confidence: 0.5}
		}
	case "chair":
		if isWarmHue(colorLAB) && highVariance {
			return MaterialResult{Material: "leather", Confidence: 0.45}
		}
	}

	return MaterialResult{Material: "unknown", Confidence: minMaterialConfidence - 0.01}
}

// isWarmHue reports whether the LAB point falls in the red/orange/brown
// hue range (positive a, positive-to-mild b).
func isWarmHue(c models.LAB) bool {
	return c.A > 5 && c.B > -5
}

// luminanceStats returns the variance and mean of the L channel over box,
// used as a crude proxy for surface texture/gloss (spec.md §4.3 pass C:
// "luminance texture").
func luminanceStats(img image.Image, box models.BBox) (variance, mean float64) {
	labs := samplePixelsLAB(img, box)
	if len(labs) == 0 {
		return 0, 0
	}

	var sum float64
	for _, l := range labs {
		sum += l.L
	}
	mean = sum / float64(len(labs))

	var sqSum float64
	for _, l := range labs {
		d := l.L - mean
		sqSum += d * d
	}
	variance = sqSum / float64(len(labs))
	return variance, mean
}
