package vision

import (
	"context"
	"image"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/piclocate/piclocate-engine/pkg/models"
	"github.com/piclocate/piclocate-engine/pkg/providers"
)

// Analyzer runs the four vision passes (spec.md §4.3) over one decoded
// image and assembles the resulting Objects and RoomScores. Any single
// pass may fail without aborting the image; the caller always gets back
// whatever facts were recoverable, plus an AnalysisPartial flag.
type Analyzer struct {
	detector providers.Detector
	logger   *zap.Logger
}

// NewAnalyzer constructs an Analyzer over detector.
func NewAnalyzer(detector providers.Detector, logger *zap.Logger) *Analyzer {
	return &Analyzer{detector: detector, logger: logger.Named("vision")}
}

// Result is the full per-image output of all four passes.
type Result struct {
	Objects         []models.Object
	Room            models.Room
	RoomConfidence  float64
	RoomScores      []models.RoomScore
	AnalysisPartial bool
}

// Analyze runs passes A-D over decoded for an image whose persisted id is
// imageID (objects are stamped with it so the repository can insert them
// directly).
func (a *Analyzer) Analyze(ctx context.Context, imageID uuid.UUID, decoded image.Image, rawBytes []byte) Result {
	var result Result

	detections, err := DetectObjects(ctx, a.detector, rawBytes)
	if err != nil {
		a.logger.Warn("pass A detection failed, persisting with no objects",
			zap.String("image_id", imageID.String()), zap.Error(err))
		result.AnalysisPartial = true
		result.Room = models.RoomUnknown
		return result
	}

	objects := make([]models.Object, 0, len(detections))
	for _, d := range detections {
		color := ClassifyColor(decoded, d.BBox)
		material := ClassifyMaterial(decoded, d.BBox, d.Label, color.LAB)

		objects = append(objects, models.Object{
			ID:                 uuid.New(),
			ImageID:            imageID,
			Label:              d.Label,
			LabelConfidence:    d.Confidence,
			BBox:               d.BBox,
			ColorName:          color.Name,
			ColorLAB:           color.LAB,
			SecondaryColors:    color.SecondaryColors,
			Material:           material.Material,
			MaterialConfidence: material.Confidence,
			AreaPixels:         d.BBox.W * d.BBox.H,
		})
	}
	result.Objects = objects

	room, confidence, scores := ClassifyRoom(detections)
	result.Room = room
	result.RoomConfidence = confidence
	result.RoomScores = scores
	for i := range result.RoomScores {
		result.RoomScores[i].ImageID = imageID
	}

	return result
}
