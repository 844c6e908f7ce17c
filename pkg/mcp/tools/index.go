package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/piclocate/piclocate-engine/pkg/indexing"
)

// RegisterIndexStatusTool adds the index_status tool, reporting the
// current indexing run's Snapshot (spec.md §4.9).
func RegisterIndexStatusTool(s *server.MCPServer, progress *indexing.ProgressTracker) {
	tool := mcp.NewTool(
		"index_status",
		mcp.WithDescription("Returns the status of the current or most recent indexing run: whether it's running, progress counts, and any errors encountered."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jsonResult, err := json.Marshal(progress.Snapshot())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal index status: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}
