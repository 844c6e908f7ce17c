// Package providers wraps the three black-box services spec.md §6 defines
// as external collaborators: an object detector, a text embedder, and a
// vision-language model verifier. Each is a thin client over an
// OpenAI-compatible or Anthropic-compatible HTTP endpoint, grounded on the
// teacher's pkg/llm.Client wrapper.
package providers

import "context"

// DetectedObject is one raw detection the Detector returns, before
// canonicalization (pkg/vision pass A does the label-synonym mapping and
// IoU dedup; spec.md §4.3).
type DetectedObject struct {
	LabelRaw string
	Score    float64
	BBox     struct{ X, Y, W, H int }
}

// Detector is the object-detection provider contract (spec.md §6).
type Detector interface {
	Detect(ctx context.Context, imageBytes []byte) ([]DetectedObject, error)
}

// Embedder is the text-embedding provider contract (spec.md §6): a single
// dense vector of fixed dimension D per call.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// VLM is the vision-language-model verification contract (spec.md §6,
// §4.7): given the user's query and a batch of image references, return
// one verdict per image as the strict JSON schema §4.7 specifies.
type VLM interface {
	Verify(ctx context.Context, query string, images []ImageRef) (VerifyResponse, error)
	ModelID() string
}

// ImageRef is one image handed to the VLM: either a fetchable URL or
// inline bytes with its content type, plus the stable image id the
// verdict must echo back.
type ImageRef struct {
	ImageID     string
	URL         string
	Bytes       []byte
	ContentType string
}

// VerifyResponse is the parsed batch response. Raw carries the original
// JSON text for reformat-retry diagnostics on parse failure.
type VerifyResponse struct {
	Verdicts []RawVerdict
	Raw      string
}

// RawVerdict mirrors the wire schema of spec.md §4.7 before it is lifted
// into models.VLMVerdict (Room here is a string since the VLM may return
// an out-of-vocabulary value that the caller must validate).
type RawVerdict struct {
	ImageID    string            `json:"image_id"`
	Matches    bool              `json:"matches"`
	Confidence float64           `json:"confidence"`
	Room       *string           `json:"room"`
	Evidence   RawEvidence       `json:"evidence"`
	Notes      string            `json:"notes"`
}

// RawEvidence mirrors the wire shape of the VLM's per-image evidence
// object (spec.md §4.7).
type RawEvidence struct {
	Objects   []string          `json:"objects"`
	Colors    map[string]string `json:"colors"`
	Materials map[string]string `json:"materials"`
}
