package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/piclocate/piclocate-engine/pkg/indexing"
	"github.com/piclocate/piclocate-engine/pkg/testhelpers"
)

func TestRegisterIndexStatusTool_ReportsSnapshot(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	progress := indexing.NewProgressTracker(db.Pool, zap.NewNop())
	require.NoError(t, progress.Restore(context.Background()))

	mcpServer := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterIndexStatusTool(mcpServer, progress)

	request := `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"index_status"},"id":1}`
	result := mcpServer.HandleMessage(context.Background(), []byte(request))

	resultBytes, err := json.Marshal(result)
	require.NoError(t, err)

	var response struct {
		Result struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(resultBytes, &response))
	require.Len(t, response.Result.Content, 1)

	var snap indexing.Snapshot
	require.NoError(t, json.Unmarshal([]byte(response.Result.Content[0].Text), &snap))
	require.False(t, snap.IsRunning)
}
