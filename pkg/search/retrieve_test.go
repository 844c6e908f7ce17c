package search

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piclocate/piclocate-engine/pkg/models"
	"github.com/piclocate/piclocate-engine/pkg/repositories"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}
func (f *fakeEmbedder) Dimension() int { return len(f.vec) }

// fakeImageRepository implements repositories.ImageRepository, recording
// the SearchParams of every call it receives and replaying a scripted
// sequence of results.
type fakeImageRepository struct {
	calls   []repositories.SearchParams
	results [][]models.RetrievalCandidate
}

func (f *fakeImageRepository) Upsert(ctx context.Context, img *models.Image) error { return nil }
func (f *fakeImageRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Image, error) {
	return nil, repositories.ErrNotFound
}
func (f *fakeImageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Image, error) {
	return nil, repositories.ErrNotFound
}
func (f *fakeImageRepository) IndexedAt(ctx context.Context, externalID string) (time.Time, bool, error) {
	return time.Time{}, false, nil
}
func (f *fakeImageRepository) PhashNeighbors(ctx context.Context, folderPath string, phash uint64, excludeExternalID string) ([]string, error) {
	return nil, nil
}
func (f *fakeImageRepository) Stats(ctx context.Context) (repositories.Stats, error) {
	return repositories.Stats{}, nil
}
func (f *fakeImageRepository) Search(ctx context.Context, params repositories.SearchParams) ([]models.RetrievalCandidate, error) {
	idx := len(f.calls)
	f.calls = append(f.calls, params)
	if idx < len(f.results) {
		return f.results[idx], nil
	}
	return nil, nil
}

func TestRetrieve_NoRelaxationWhenEnoughResults(t *testing.T) {
	room := models.RoomKitchen
	parsed := models.ParsedQuery{
		Room:           &room,
		Objects:        []models.ObjectFilter{{Label: "chair"}},
		NormalizedText: "black chair in the kitchen",
	}
	full := make([]models.RetrievalCandidate, 80)
	for i := range full {
		full[i] = models.RetrievalCandidate{ImageID: uuid.NewString()}
	}
	repo := &fakeImageRepository{results: [][]models.RetrievalCandidate{full}}
	embedder := &fakeEmbedder{vec: []float32{0.1, 0.2}}

	got, err := Retrieve(context.Background(), repo, embedder, parsed, 120)

	require.NoError(t, err)
	assert.Len(t, got, 80)
	assert.Len(t, repo.calls, 1, "should not relax when first pass already clears K/2")
}

func TestRetrieve_RelaxesWhenBelowHalfK(t *testing.T) {
	room := models.RoomKitchen
	parsed := models.ParsedQuery{
		Room:           &room,
		Objects:        []models.ObjectFilter{{Label: "chair", Color: "black"}},
		NormalizedText: "black chair in the kitchen",
	}
	sparse := []models.RetrievalCandidate{{ImageID: uuid.NewString()}}
	relaxed := make([]models.RetrievalCandidate, 30)
	for i := range relaxed {
		relaxed[i] = models.RetrievalCandidate{ImageID: uuid.NewString()}
	}
	repo := &fakeImageRepository{results: [][]models.RetrievalCandidate{sparse, relaxed}}
	embedder := &fakeEmbedder{vec: []float32{0.1, 0.2}}

	got, err := Retrieve(context.Background(), repo, embedder, parsed, 120)

	require.NoError(t, err)
	assert.Len(t, got, 30)
	require.Len(t, repo.calls, 2)
	assert.False(t, repo.calls[0].RelaxObjects)
	assert.True(t, repo.calls[1].RelaxObjects)
	assert.Equal(t, &room, repo.calls[1].Room, "relaxed pass keeps the room filter")
}
