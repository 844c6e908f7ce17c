package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/piclocate/piclocate-engine/pkg/search"
)

// RegisterSearchTool adds the search_images tool to the MCP server, running
// the three-stage retrieval+verification pipeline for one query (spec.md
// §4.5-§4.8).
func RegisterSearchTool(s *server.MCPServer, engine *search.Engine) {
	tool := mcp.NewTool(
		"search_images",
		mcp.WithDescription(
			"Search indexed property photos by natural-language description. "+
				"Runs candidate retrieval followed by vision-model verification and "+
				"returns ranked results with confidence scores. "+
				"Example: search_images(query='red brick fireplace in the living room').",
		),
		mcp.WithString(
			"query",
			mcp.Required(),
			mcp.Description("Natural-language description of what to find"),
		),
		mcp.WithString(
			"lang",
			mcp.Description("Query language: 'en', 'he', or 'auto'; auto-detects when omitted"),
		),
		mcp.WithNumber(
			"limit",
			mcp.Description("Maximum number of results to return; defaults to the server's configured limit"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return nil, err
		}
		query = strings.TrimSpace(query)
		if query == "" {
			return NewErrorResult("invalid_parameters", "query parameter cannot be empty"), nil
		}

		lang := ""
		limit := 0
		if args, ok := req.Params.Arguments.(map[string]any); ok {
			if v, ok := args["lang"].(string); ok {
				lang = v
			}
			if v, ok := args["limit"].(float64); ok {
				limit = int(v)
			}
		}

		result, err := engine.Search(ctx, query, lang, limit)
		if err != nil {
			return nil, fmt.Errorf("search failed: %w", err)
		}

		jsonResult, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal search results: %w", err)
		}

		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}
