package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultDetectorTimeout bounds a single detection call.
const DefaultDetectorTimeout = 30 * time.Second

// HTTPDetector calls an object-detection endpoint that accepts raw image
// bytes and returns a flat list of detections. No pack dependency wraps a
// detection API (unlike embeddings/VLM, which ride go-openai/go-anthropic),
// so this is a direct net/http client, grounded on the teacher's
// pkg/central.Client shape: http.Client + zap logger + a single do-and-decode
// helper.
type HTTPDetector struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	logger     *zap.Logger
}

// DetectorConfig configures an HTTPDetector.
type DetectorConfig struct {
	Endpoint string
	APIKey   string
}

// NewHTTPDetector constructs a Detector over cfg.
func NewHTTPDetector(cfg DetectorConfig, logger *zap.Logger) (*HTTPDetector, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("detector endpoint is required")
	}
	return &HTTPDetector{
		httpClient: &http.Client{Timeout: DefaultDetectorTimeout},
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		logger:     logger.Named("detector"),
	}, nil
}

var _ Detector = (*HTTPDetector)(nil)

type detectionResponseItem struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
	Box   struct {
		X int `json:"x"`
		Y int `json:"y"`
		W int `json:"w"`
		H int `json:"h"`
	} `json:"box"`
}

func (d *HTTPDetector) Detect(ctx context.Context, imageBytes []byte) ([]DetectedObject, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("build detection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call detector: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read detector response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		d.logger.Error("detector returned error",
			zap.Int("status", resp.StatusCode), zap.ByteString("body", body))
		return nil, fmt.Errorf("detector returned status %d", resp.StatusCode)
	}

	var payload struct {
		Detections []detectionResponseItem `json:"detections"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse detector response: %w", err)
	}

	out := make([]DetectedObject, 0, len(payload.Detections))
	for _, item := range payload.Detections {
		obj := DetectedObject{LabelRaw: item.Label, Score: item.Score}
		obj.BBox.X = item.Box.X
		obj.BBox.Y = item.Box.Y
		obj.BBox.W = item.Box.W
		obj.BBox.H = item.Box.H
		out = append(out, obj)
	}
	return out, nil
}
