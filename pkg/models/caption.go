package models

import "github.com/google/uuid"

// Caption holds the English caption rendered from an Image's detected facts,
// its embedding vector, and the structured facts used to build it
// (spec.md §3, §4.4). embed_he is omitted: Hebrew queries are translated to
// English before retrieval (Open Question ii), so no Hebrew embedding column
// is needed.
type Caption struct {
	ImageID  uuid.UUID  `json:"image_id"`
	Text     string     `json:"text"`
	Facts    ImageFacts `json:"facts"`
	EmbedEn  []float32  `json:"-"`
}
