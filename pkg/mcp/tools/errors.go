// Package tools provides MCP tool implementations wrapping the search and
// indexing pipelines for piclocate-engine.
package tools

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrorResponse represents a structured error in tool results. Returning
// this as a successful tool result (rather than a Go error) keeps the
// error details visible to the calling model instead of being swallowed
// by the MCP client.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for recoverable/actionable errors the caller can fix (invalid
// parameters, empty query) — not for system failures, which should still
// return a Go error.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	resp := ErrorResponse{Error: true, Code: code, Message: message}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}
