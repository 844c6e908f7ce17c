package providers

import (
	"context"
	"encoding/base64"
	"fmt"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// AnthropicVLM verifies candidate images against a query via the Anthropic
// Messages API, grounded on the teacher's scripts/assess-ontology client
// construction (anthropic.NewClient + CreateMessages with MessageContent
// blocks).
type AnthropicVLM struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

// NewAnthropicVLM constructs a VLM over the Anthropic API.
func NewAnthropicVLM(cfg VLMConfig, logger *zap.Logger) (*AnthropicVLM, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5-20250929"
	}
	return &AnthropicVLM{
		client: anthropic.NewClient(cfg.APIKey),
		model:  model,
		logger: logger.Named("vlm.anthropic"),
	}, nil
}

var _ VLM = (*AnthropicVLM)(nil)

func (v *AnthropicVLM) ModelID() string { return v.model }

func (v *AnthropicVLM) Verify(ctx context.Context, query string, images []ImageRef) (VerifyResponse, error) {
	content := []anthropic.MessageContent{
		{Type: "text", Text: strPtr("Query: " + query)},
	}
	for _, img := range images {
		content = append(content, anthropic.MessageContent{
			Type: "text",
			Text: strPtr("image_id: " + img.ImageID),
		})
		if len(img.Bytes) == 0 {
			continue
		}
		mediaType := img.ContentType
		if mediaType == "" {
			mediaType = "image/jpeg"
		}
		data := base64.StdEncoding.EncodeToString(img.Bytes)
		content = append(content, anthropic.MessageContent{
			Type: "image",
			Source: &anthropic.MessageContentSource{
				Type:      "base64",
				MediaType: mediaType,
				Data:      data,
			},
		})
	}

	resp, err := v.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(v.model),
		MaxTokens: 4096,
		System:    verifySystemPrompt,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: content},
		},
	})
	if err != nil {
		return VerifyResponse{}, fmt.Errorf("vlm messages: %w", err)
	}
	if len(resp.Content) == 0 || resp.Content[0].Text == nil {
		return VerifyResponse{}, fmt.Errorf("vlm response had no text content")
	}

	return parseVerifyResponse(*resp.Content[0].Text)
}

func strPtr(s string) *string { return &s }
