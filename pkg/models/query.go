package models

// ObjectFilter is one structured object constraint extracted from a query,
// e.g. "black table" → {Label: "table", Color: "black"}.
type ObjectFilter struct {
	Label    string `json:"label"`
	Color    string `json:"color,omitempty"`
	Material string `json:"material,omitempty"`
}

// ParsedQuery is the output of query parsing (spec.md §4.6): a room guess,
// structured object filters, any colors/materials not attached to an
// object, and the post-translation text used for embedding.
type ParsedQuery struct {
	Room           *Room          `json:"room,omitempty"`
	Objects        []ObjectFilter `json:"objects"`
	FreeColors     []string       `json:"free_colors,omitempty"`
	FreeMaterials  []string       `json:"free_materials,omitempty"`
	NormalizedText string         `json:"normalized_text"`
}

// RetrievalCandidate is one row surfaced by Stage A fast retrieval
// (spec.md §4.7).
type RetrievalCandidate struct {
	ImageID       string     `json:"image_id"`
	ExternalID    string     `json:"external_id"`
	FileName      string     `json:"file_name"`
	FolderPath    string     `json:"folder_path"`
	RetrievalScore float64   `json:"retrieval_score"`
	Room          Room       `json:"room"`
	Facts         ImageFacts `json:"facts"`
	PHash         uint64     `json:"-"`
	SignedURL     string     `json:"signed_url,omitempty"`
}

// VLMEvidence is the structured evidence a verification verdict attaches to
// a candidate: the objects, colors, and materials the model says it saw,
// plus free-text room features (spec.md §4.8).
type VLMEvidence struct {
	Objects           []string          `json:"objects,omitempty"`
	ColorsOnObjects   map[string]string `json:"colors_on_objects,omitempty"`
	MaterialsOnObjects map[string]string `json:"materials_on_objects,omitempty"`
	RoomFeatures      []string          `json:"room_features,omitempty"`
}

// VLMVerdict is one element of the batched verification response
// (spec.md §4.8).
type VLMVerdict struct {
	ImageID    string      `json:"image_id"`
	Matches    bool        `json:"matches"`
	Confidence float64     `json:"confidence"`
	Room       Room        `json:"room"`
	Evidence   VLMEvidence `json:"evidence"`
	Notes      string      `json:"notes"`
}

// ConfidenceBadge is a coarse UI bucket of vlm_confidence (spec.md §4.8,
// §9).
type ConfidenceBadge string

const (
	BadgeGreen  ConfidenceBadge = "green"
	BadgeYellow ConfidenceBadge = "yellow"
	BadgeRed    ConfidenceBadge = "red"
)

// Badge buckets a confidence value into its UI badge per spec.md §4.8
// thresholds: green ≥0.9, yellow ≥0.7, red <0.7.
func Badge(confidence float64) ConfidenceBadge {
	switch {
	case confidence >= 0.9:
		return BadgeGreen
	case confidence >= 0.7:
		return BadgeYellow
	default:
		return BadgeRed
	}
}

// SearchResult is one final, ranked search result (spec.md §6): the blend
// of a RetrievalCandidate and the VLMVerdict that confirmed it.
type SearchResult struct {
	ImageID        string          `json:"image_id"`
	ExternalID     string          `json:"external_id"`
	FileName       string          `json:"file_name"`
	FolderPath     string          `json:"folder_path"`
	Room           Room            `json:"room"`
	VLMConfidence  float64         `json:"vlm_confidence"`
	FinalScore     float64         `json:"final_score"`
	RetrievalScore float64         `json:"retrieval_score"`
	Evidence       VLMEvidence     `json:"evidence"`
	MatchReasons   []string        `json:"match_reasons"`
	AINotes        string          `json:"ai_notes"`
	ConfidenceBadge ConfidenceBadge `json:"confidence_badge"`
	SignedURL      string          `json:"signed_url,omitempty"`
}
