package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/piclocate/piclocate-engine/pkg/cache"
	"github.com/piclocate/piclocate-engine/pkg/models"
	"github.com/piclocate/piclocate-engine/pkg/providers"
)

type fakeVLM struct {
	modelID string
	calls   int
	verify  func(call int, images []providers.ImageRef) (providers.VerifyResponse, error)
}

func (f *fakeVLM) ModelID() string { return f.modelID }
func (f *fakeVLM) Verify(ctx context.Context, query string, images []providers.ImageRef) (providers.VerifyResponse, error) {
	f.calls++
	return f.verify(f.calls, images)
}

func newTestCache(t *testing.T) *cache.VerdictCache {
	t.Helper()
	c, err := cache.NewVerdictCache(100, 7)
	require.NoError(t, err)
	return c
}

func TestVerify_CacheHitSkipsCall(t *testing.T) {
	verdictCache := newTestCache(t)
	candidate := models.RetrievalCandidate{ImageID: "img-1", PHash: 0xABCD}
	key := cache.Key("kitchen", "model-x", candidate.ImageID, "000000000000abcd")
	cached := models.VLMVerdict{ImageID: "img-1", Matches: true, Confidence: 0.95}
	verdictCache.Put(key, cached)

	vlm := &fakeVLM{modelID: "model-x", verify: func(call int, images []providers.ImageRef) (providers.VerifyResponse, error) {
		t.Fatal("VLM should not be called on a cache hit")
		return providers.VerifyResponse{}, nil
	}}

	results, partial := Verify(context.Background(), vlm, verdictCache, "kitchen", []models.RetrievalCandidate{candidate}, 12, 4, 5, zap.NewNop())

	require.Contains(t, results, "img-1")
	assert.Equal(t, cached, results["img-1"])
	assert.False(t, partial)
}

func TestVerify_ParseErrorFallsBackAfterReformatRetry(t *testing.T) {
	verdictCache := newTestCache(t)
	candidate := models.RetrievalCandidate{ImageID: "img-2"}

	vlm := &fakeVLM{modelID: "model-x", verify: func(call int, images []providers.ImageRef) (providers.VerifyResponse, error) {
		return providers.VerifyResponse{Raw: "not json"}, assertParseErr
	}}

	results, _ := Verify(context.Background(), vlm, verdictCache, "kitchen", []models.RetrievalCandidate{candidate}, 12, 4, 5, zap.NewNop())

	require.Contains(t, results, "img-2")
	got := results["img-2"]
	assert.False(t, got.Matches)
	assert.Equal(t, 0.0, got.Confidence)
	assert.Equal(t, "parse_error", got.Notes)
	assert.Equal(t, 2, vlm.calls, "one original call plus one reformat retry")
}

func TestVerify_SuccessfulVerdictIsLiftedAndCached(t *testing.T) {
	verdictCache := newTestCache(t)
	candidate := models.RetrievalCandidate{ImageID: "img-3", PHash: 1}

	room := "kitchen"
	vlm := &fakeVLM{modelID: "model-x", verify: func(call int, images []providers.ImageRef) (providers.VerifyResponse, error) {
		return providers.VerifyResponse{Verdicts: []providers.RawVerdict{
			{ImageID: "img-3", Matches: true, Confidence: 0.8, Room: &room, Notes: "looks right"},
		}}, nil
	}}

	results, _ := Verify(context.Background(), vlm, verdictCache, "kitchen", []models.RetrievalCandidate{candidate}, 12, 4, 5, zap.NewNop())

	require.Contains(t, results, "img-3")
	got := results["img-3"]
	assert.True(t, got.Matches)
	assert.Equal(t, 0.8, got.Confidence)
	assert.Equal(t, models.RoomKitchen, got.Room)
	assert.Equal(t, 1, vlm.calls)

	key := cache.Key("kitchen", "model-x", "img-3", "0000000000000001")
	cachedVerdict, ok := verdictCache.Get(key)
	require.True(t, ok)
	assert.Equal(t, got, cachedVerdict)
}

var assertParseErr = assertError("vlm returned malformed json")

type assertError string

func (e assertError) Error() string { return string(e) }
