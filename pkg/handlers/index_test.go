package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/piclocate/piclocate-engine/pkg/indexing"
	"github.com/piclocate/piclocate-engine/pkg/providers"
	"github.com/piclocate/piclocate-engine/pkg/testhelpers"
)

type stubDetector struct{}

func (stubDetector) Detect(ctx context.Context, imageBytes []byte) ([]providers.DetectedObject, error) {
	return nil, nil
}

func newTestPipeline(t *testing.T) (*indexing.Pipeline, *indexing.ProgressTracker) {
	t.Helper()
	db := testhelpers.GetTestDB(t)
	logger := zap.NewNop()

	images := &stubImageRepository{}
	crawler := indexing.NewCrawler(stubStore{}, images, true, logger)
	fetcher := indexing.NewFetcher(stubStore{}, images, 1024, logger)
	persister := indexing.NewPersister(images, stubEmbedder{}, logger)
	progress := indexing.NewProgressTracker(db.Pool, logger)

	pipeline := indexing.NewPipeline(crawler, fetcher, stubDetector{}, stubEmbedder{}, persister, progress,
		indexing.PoolSizes{FetcherPool: 1, VisionPool: 1, EmbedPool: 1, PersistPool: 1}, logger)
	return pipeline, progress
}

func TestIndexHandler_Start_RejectsNonPost(t *testing.T) {
	pipeline, progress := newTestPipeline(t)
	handler := NewIndexHandler(pipeline, progress, "root-folder", zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/index/start", nil)
	rec := httptest.NewRecorder()
	handler.Start(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestIndexHandler_Start_ConflictWhileRunning(t *testing.T) {
	pipeline, progress := newTestPipeline(t)
	require.NoError(t, progress.Restore(context.Background()))
	progress.Start(context.Background(), 10)
	defer progress.Finish(context.Background())

	handler := NewIndexHandler(pipeline, progress, "root-folder", zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/index/start", nil)
	rec := httptest.NewRecorder()
	handler.Start(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}

	var body StartResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "already_running", body.Status)
}

func TestIndexHandler_Start_AcceptsAndLaunchesRun(t *testing.T) {
	pipeline, progress := newTestPipeline(t)
	require.NoError(t, progress.Restore(context.Background()))

	handler := NewIndexHandler(pipeline, progress, "root-folder", zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/index/start", nil)
	rec := httptest.NewRecorder()
	handler.Start(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}

	var body StartResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "started", body.Status)

	require.Eventually(t, func() bool {
		return !progress.Snapshot().IsRunning
	}, 5*time.Second, 50*time.Millisecond, "empty folder crawl should finish quickly")
}

func TestIndexHandler_Status_ReportsSnapshot(t *testing.T) {
	pipeline, progress := newTestPipeline(t)
	require.NoError(t, progress.Restore(context.Background()))

	handler := NewIndexHandler(pipeline, progress, "root-folder", zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/index/status", nil)
	rec := httptest.NewRecorder()
	handler.Status(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var snap indexing.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	if snap.IsRunning {
		t.Error("expected IsRunning false for a freshly restored tracker")
	}
}
