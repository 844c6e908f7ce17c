package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/piclocate/piclocate-engine/pkg/adapters/imagestore"
	"github.com/piclocate/piclocate-engine/pkg/cache"
	"github.com/piclocate/piclocate-engine/pkg/config"
	"github.com/piclocate/piclocate-engine/pkg/models"
	"github.com/piclocate/piclocate-engine/pkg/providers"
	"github.com/piclocate/piclocate-engine/pkg/repositories"
	"github.com/piclocate/piclocate-engine/pkg/search"
)

type stubImageRepository struct {
	results []models.RetrievalCandidate
}

func (s *stubImageRepository) Upsert(ctx context.Context, img *models.Image) error { return nil }
func (s *stubImageRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Image, error) {
	return nil, repositories.ErrNotFound
}
func (s *stubImageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Image, error) {
	return nil, repositories.ErrNotFound
}
func (s *stubImageRepository) IndexedAt(ctx context.Context, externalID string) (time.Time, bool, error) {
	return time.Time{}, false, nil
}
func (s *stubImageRepository) PhashNeighbors(ctx context.Context, folderPath string, phash uint64, excludeExternalID string) ([]string, error) {
	return nil, nil
}
func (s *stubImageRepository) Stats(ctx context.Context) (repositories.Stats, error) {
	return repositories.Stats{ImageCount: int64(len(s.results))}, nil
}
func (s *stubImageRepository) Search(ctx context.Context, params repositories.SearchParams) ([]models.RetrievalCandidate, error) {
	return s.results, nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}
func (stubEmbedder) Dimension() int { return 2 }

type stubVLM struct {
	verdicts []providers.RawVerdict
}

func (s stubVLM) ModelID() string { return "stub-vlm" }
func (s stubVLM) Verify(ctx context.Context, query string, images []providers.ImageRef) (providers.VerifyResponse, error) {
	return providers.VerifyResponse{Verdicts: s.verdicts}, nil
}

type stubStore struct{}

func (stubStore) ListFolder(ctx context.Context, folderID string) ([]imagestore.Entry, error) {
	return nil, nil
}
func (stubStore) FetchBytes(ctx context.Context, fileID string) ([]byte, time.Time, error) {
	return nil, time.Time{}, nil
}
func (stubStore) SignedURL(ctx context.Context, fileID string) (string, error) {
	return "https://store.example/" + fileID, nil
}

func newTestEngine(t *testing.T, results []models.RetrievalCandidate, verdicts []providers.RawVerdict) *search.Engine {
	t.Helper()
	verdictCache, err := cache.NewVerdictCache(100, 7)
	require.NoError(t, err)
	return search.NewEngine(
		&stubImageRepository{results: results},
		stubEmbedder{},
		stubVLM{verdicts: verdicts},
		stubStore{},
		verdictCache,
		config.SearchConfig{TopK: 120, Cutoff: 0.5, FinalLimit: 24, Alpha: 0.75, DeadlineSec: 5},
		config.VLMConfig{BatchSize: 12, Concurrency: 4, RequestsPerSec: 5},
		zap.NewNop(),
	)
}

func TestSearchHandler_RejectsNonPost(t *testing.T) {
	handler := NewSearchHandler(newTestEngine(t, nil, nil), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	rec := httptest.NewRecorder()
	handler.Search(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestSearchHandler_RejectsInvalidJSON(t *testing.T) {
	handler := NewSearchHandler(newTestEngine(t, nil, nil), zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()
	handler.Search(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestSearchHandler_RejectsEmptyQuery(t *testing.T) {
	handler := NewSearchHandler(newTestEngine(t, nil, nil), zap.NewNop())

	body, _ := json.Marshal(SearchRequest{Query: ""})
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Search(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestSearchHandler_ReturnsRankedResults(t *testing.T) {
	candidate := models.RetrievalCandidate{ImageID: "img-1", ExternalID: "ext-1", RetrievalScore: 0.9}
	handler := NewSearchHandler(newTestEngine(t, []models.RetrievalCandidate{candidate}, []providers.RawVerdict{
		{ImageID: "img-1", Matches: true, Confidence: 0.9},
	}), zap.NewNop())

	body, _ := json.Marshal(SearchRequest{Query: "black chair in the kitchen"})
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Search(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp SearchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Results, 1)
	if resp.Results[0].ImageID != "img-1" {
		t.Errorf("expected image_id 'img-1', got %q", resp.Results[0].ImageID)
	}
	require.Equal(t, "black chair in the kitchen", resp.Query)
	require.Equal(t, 1, resp.TotalResults)
	require.False(t, resp.Partial)
}
