package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/piclocate/piclocate-engine/pkg/jsonutil"
)

// verifySystemPrompt is the strict JSON contract every VLM call must obey
// (spec.md §4.7).
const verifySystemPrompt = `You are an image verification assistant. For each image, decide whether it matches the user's query.
Respond with ONLY a single JSON object of this exact shape, no prose, no markdown fences:
{"verdicts": [{"image_id": string, "matches": boolean, "confidence": number between 0 and 1, "room": string or null, "evidence": {"objects": string[], "colors": {"<object>": "<color>"}, "materials": {"<object>": "<material>"}}, "notes": string}]}
Include exactly one verdict per image, in the order the images were given, each using its provided image_id.`

// OpenAIVLM verifies candidate images against a query via an
// OpenAI-compatible multimodal chat endpoint, grounded on the teacher's
// pkg/llm.Client.GenerateResponse request shape.
type OpenAIVLM struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// VLMConfig configures a VLM client.
type VLMConfig struct {
	Endpoint string
	APIKey   string
	Model    string
}

// NewOpenAIVLM constructs a VLM over an OpenAI-compatible endpoint.
func NewOpenAIVLM(cfg VLMConfig, logger *zap.Logger) (*OpenAIVLM, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("VLM endpoint is required")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	return &OpenAIVLM{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		logger: logger.Named("vlm.openai"),
	}, nil
}

var _ VLM = (*OpenAIVLM)(nil)

func (v *OpenAIVLM) ModelID() string { return v.model }

func (v *OpenAIVLM) Verify(ctx context.Context, query string, images []ImageRef) (VerifyResponse, error) {
	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: "Query: " + query},
	}
	for _, img := range images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: "image_id: " + img.ImageID,
		})
		url := img.URL
		if url == "" && len(img.Bytes) > 0 {
			url = dataURL(img.ContentType, img.Bytes)
		}
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: url},
		})
	}

	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: v.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: verifySystemPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		Temperature: 0,
	})
	if err != nil {
		return VerifyResponse{}, fmt.Errorf("vlm chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return VerifyResponse{}, fmt.Errorf("vlm response had no choices")
	}

	raw := resp.Choices[0].Message.Content
	return parseVerifyResponse(raw)
}

// wireVerdict mirrors RawVerdict but leaves Notes as raw JSON: some models
// return a number or boolean there instead of a string despite the schema,
// and jsonutil.FlexibleStringValue coerces whatever came back.
type wireVerdict struct {
	ImageID    string          `json:"image_id"`
	Matches    bool            `json:"matches"`
	Confidence float64         `json:"confidence"`
	Room       *string         `json:"room"`
	Evidence   RawEvidence     `json:"evidence"`
	Notes      json.RawMessage `json:"notes"`
}

func parseVerifyResponse(raw string) (VerifyResponse, error) {
	var payload struct {
		Verdicts []wireVerdict `json:"verdicts"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(stripCodeFence(raw))), &payload); err != nil {
		return VerifyResponse{Raw: raw}, fmt.Errorf("parse vlm json: %w", err)
	}

	verdicts := make([]RawVerdict, len(payload.Verdicts))
	for i, w := range payload.Verdicts {
		verdicts[i] = RawVerdict{
			ImageID:    w.ImageID,
			Matches:    w.Matches,
			Confidence: w.Confidence,
			Room:       w.Room,
			Evidence:   w.Evidence,
			Notes:      jsonutil.FlexibleStringValue(w.Notes),
		}
	}
	return VerifyResponse{Verdicts: verdicts, Raw: raw}, nil
}

// stripCodeFence removes a leading/trailing ```json fence some models add
// despite being told not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return s
}

func dataURL(contentType string, data []byte) string {
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))
}
