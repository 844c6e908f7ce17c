package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/piclocate/piclocate-engine/pkg/adapters/imagestore"
	"github.com/piclocate/piclocate-engine/pkg/cache"
	"github.com/piclocate/piclocate-engine/pkg/config"
	"github.com/piclocate/piclocate-engine/pkg/models"
	"github.com/piclocate/piclocate-engine/pkg/providers"
)

type fakeStore struct{}

func (fakeStore) ListFolder(ctx context.Context, folderID string) ([]imagestore.Entry, error) {
	return nil, nil
}
func (fakeStore) FetchBytes(ctx context.Context, fileID string) ([]byte, time.Time, error) {
	return nil, time.Time{}, nil
}
func (fakeStore) SignedURL(ctx context.Context, fileID string) (string, error) {
	return "https://store.example/" + fileID, nil
}

var _ imagestore.Store = fakeStore{}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func newTestVerdictCache(t *testing.T) *cache.VerdictCache {
	t.Helper()
	c, err := cache.NewVerdictCache(100, 7)
	require.NoError(t, err)
	return c
}

func TestEngine_Search_NoCandidatesReturnsNilWithoutVerifying(t *testing.T) {
	repo := &fakeImageRepository{results: [][]models.RetrievalCandidate{{}}}
	embedder := &fakeEmbedder{vec: []float32{0.1, 0.2}}
	vlm := &fakeVLM{modelID: "model-x", verify: func(call int, images []providers.ImageRef) (providers.VerifyResponse, error) {
		t.Fatal("verify should not run when retrieval finds nothing")
		return providers.VerifyResponse{}, nil
	}}

	engine := NewEngine(repo, embedder, vlm, fakeStore{}, newTestVerdictCache(t),
		config.SearchConfig{TopK: 120, DeadlineSec: 5}, config.VLMConfig{}, zap.NewNop())

	resp, err := engine.Search(context.Background(), "kitchen chair", "", 0)
	require.NoError(t, err)
	require.Nil(t, resp.Results)
	require.False(t, resp.Partial)
}

func TestEngine_Search_RetrieveErrorPropagates(t *testing.T) {
	repo := &fakeImageRepository{}
	failingEmbedder := &fakeEmbedder{err: fakeErr("embedding provider unavailable")}
	vlm := &fakeVLM{modelID: "model-x"}

	engine := NewEngine(repo, failingEmbedder, vlm, fakeStore{}, newTestVerdictCache(t),
		config.SearchConfig{TopK: 120, DeadlineSec: 5}, config.VLMConfig{}, zap.NewNop())

	_, err := engine.Search(context.Background(), "kitchen chair", "", 0)
	require.Error(t, err)
}

type deadlineEmbedder struct{}

func (deadlineEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (deadlineEmbedder) Dimension() int { return 2 }

func TestEngine_Search_DeadlineExceededReturnsPartialInsteadOfError(t *testing.T) {
	repo := &fakeImageRepository{}
	vlm := &fakeVLM{modelID: "model-x"}

	engine := NewEngine(repo, deadlineEmbedder{}, vlm, fakeStore{}, newTestVerdictCache(t),
		config.SearchConfig{TopK: 120, DeadlineSec: 0}, config.VLMConfig{}, zap.NewNop())

	// DeadlineSec of 0 falls back to 30s inside Search; impose a shorter
	// deadline on the caller's context so the test doesn't take 30s.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	resp, err := engine.Search(ctx, "kitchen chair", "", 0)
	require.NoError(t, err)
	require.True(t, resp.Partial)
	require.Empty(t, resp.Results)
}
