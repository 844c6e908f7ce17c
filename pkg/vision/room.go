package vision

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/piclocate/piclocate-engine/pkg/models"
)

// minRoomScore is the floor below which pass D falls back to room=unknown
// (spec.md §4.3 pass D).
const minRoomScore = 0.4

// roomWeights is the label→room voting matrix W[label][room] (spec.md §4.3
// pass D examples: refrigerator→kitchen +3, toilet→bathroom +5, bed→bedroom
// +5). Labels/rooms absent from a row contribute zero.
var roomWeights = map[string]map[models.Room]float64{
	"refrigerator":   {models.RoomKitchen: 3},
	"oven":           {models.RoomKitchen: 3},
	"stove":          {models.RoomKitchen: 3},
	"range_hood":     {models.RoomKitchen: 2},
	"microwave":      {models.RoomKitchen: 2},
	"kitchen_island": {models.RoomKitchen: 4},
	"sink":           {models.RoomKitchen: 1, models.RoomBathroom: 2},
	"dining_table":   {models.RoomDiningRoom: 3, models.RoomKitchen: 1},
	"sofa":           {models.RoomLivingRoom: 3},
	"tv":             {models.RoomLivingRoom: 2, models.RoomBedroom: 1},
	"coffee_table":   {models.RoomLivingRoom: 2},
	"bed":            {models.RoomBedroom: 5},
	"wardrobe":       {models.RoomBedroom: 2},
	"toilet":         {models.RoomBathroom: 5},
	"shower":         {models.RoomBathroom: 4},
	"bathtub":        {models.RoomBathroom: 4},
	"desk":           {models.RoomOffice: 3},
	"washer":         {models.RoomLaundry: 4},
	"dryer":          {models.RoomLaundry: 4},
	"chair":          {models.RoomDiningRoom: 1, models.RoomOffice: 1},
	"table":          {models.RoomLivingRoom: 1, models.RoomBedroom: 1},
	"lamp":           {models.RoomLivingRoom: 1, models.RoomBedroom: 1},
	"cabinet":        {models.RoomKitchen: 1, models.RoomBedroom: 1},
	"mirror":         {models.RoomBathroom: 1, models.RoomBedroom: 1},
	"rug":            {models.RoomLivingRoom: 1},
	"curtain":        {models.RoomLivingRoom: 1, models.RoomBedroom: 1},
}

// ClassifyRoom runs pass D: weighted voting by detected labels, softmax
// over the rooms that received at least one vote (rooms with no vote are
// left out), and an argmax-with-floor decision rule.
// It returns the winning room (or RoomUnknown) and every non-zero room
// score, all persisted as RoomScore rows.
func ClassifyRoom(detections []Detection) (models.Room, float64, []models.RoomScore) {
	raw := make(map[models.Room]float64, len(models.Rooms))
	for _, d := range detections {
		weights, ok := roomWeights[d.Label]
		if !ok {
			continue
		}
		for room, w := range weights {
			raw[room] += w * d.Confidence
		}
	}

	if len(raw) == 0 {
		return models.RoomUnknown, 0, nil
	}

	rooms := make([]models.Room, 0, len(raw))
	scores := make([]float64, 0, len(raw))
	for room, score := range raw {
		rooms = append(rooms, room)
		scores = append(scores, score)
	}

	probs := softmax(scores)

	bestIdx := 0
	for i := 1; i < len(probs); i++ {
		if probs[i] > probs[bestIdx] {
			bestIdx = i
		}
	}

	result := make([]models.RoomScore, len(rooms))
	for i, room := range rooms {
		result[i] = models.RoomScore{Room: room, Score: probs[i]}
	}

	if probs[bestIdx] < minRoomScore {
		return models.RoomUnknown, probs[bestIdx], result
	}
	return rooms[bestIdx], probs[bestIdx], result
}

func softmax(scores []float64) []float64 {
	out := make([]float64, len(scores))
	copy(out, scores)

	max := floats.Max(out)
	var sum float64
	for i, s := range out {
		e := math.Exp(s - max)
		out[i] = e
		sum += e
	}
	if sum == 0 {
		return out
	}
	floats.Scale(1/sum, out)
	return out
}
