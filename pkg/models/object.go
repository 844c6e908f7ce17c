package models

import "github.com/google/uuid"

// BBox is an axis-aligned bounding box in source-image pixel coordinates.
type BBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// LAB is a CIELAB color coordinate. L∈[0,100], a,b∈[-128,127] (spec.md §3).
type LAB struct {
	L float64 `json:"l"`
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// Object is a detected object within an Image, with per-object color and
// material facts attached by vision passes B and C (spec.md §4.3).
type Object struct {
	ID                uuid.UUID `json:"id"`
	ImageID           uuid.UUID `json:"image_id"`
	Label             string    `json:"label"`
	LabelConfidence   float64   `json:"label_confidence"`
	BBox              BBox      `json:"bbox"`
	ColorName         string    `json:"color_name"`
	ColorLAB          LAB       `json:"color_lab"`
	SecondaryColors   []string  `json:"secondary_colors,omitempty"`
	Material          string    `json:"material"`
	MaterialConfidence float64  `json:"material_confidence"`
	AreaPixels        int       `json:"area_pixels"`
}

// RoomScore is a calibrated, independent per-room score for an Image
// (spec.md §3: sum is not constrained to 1).
type RoomScore struct {
	ImageID uuid.UUID `json:"image_id"`
	Room    Room      `json:"room"`
	Score   float64   `json:"score"`
}

// Tag is a denormalized facet of form room:<x>, obj:<x>, col:<x>, mat:<x>,
// or style:<x>, used for fast EXISTS-style filtering (spec.md §3).
type Tag struct {
	ImageID uuid.UUID `json:"image_id"`
	Tag     string    `json:"tag"`
}
