package tools

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/piclocate/piclocate-engine/pkg/indexing"
	"github.com/piclocate/piclocate-engine/pkg/search"
)

// Deps bundles everything the MCP tools need to wrap the search and
// indexing pipelines.
type Deps struct {
	Engine   *search.Engine
	Progress *indexing.ProgressTracker
	Version  string
}

// RegisterAll registers every tool on s. There's no tool-group/access-tier
// concept here: a single authenticated principal sees the whole surface.
func RegisterAll(s *server.MCPServer, deps Deps) {
	RegisterSearchTool(s, deps.Engine)
	RegisterIndexStatusTool(s, deps.Progress)
	RegisterHealthTool(s, deps.Version)
}
