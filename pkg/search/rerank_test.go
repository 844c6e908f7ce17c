package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piclocate/piclocate-engine/pkg/models"
)

func TestRerank_FiltersByMatchAndCutoff(t *testing.T) {
	candidates := []models.RetrievalCandidate{
		{ImageID: "a", ExternalID: "ext-a", RetrievalScore: 0.9, Room: models.RoomKitchen},
		{ImageID: "b", ExternalID: "ext-b", RetrievalScore: 0.9, Room: models.RoomKitchen},
		{ImageID: "c", ExternalID: "ext-c", RetrievalScore: 0.9, Room: models.RoomKitchen},
	}
	verdicts := map[string]models.VLMVerdict{
		"a": {ImageID: "a", Matches: true, Confidence: 0.95},
		"b": {ImageID: "b", Matches: true, Confidence: 0.5}, // below cutoff
		"c": {ImageID: "c", Matches: false, Confidence: 0.99}, // didn't match at all
	}

	results := Rerank(candidates, verdicts, 0.7, 0.75, 24)

	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ImageID)
}

func TestRerank_BlendsScoreAndSortsDescending(t *testing.T) {
	candidates := []models.RetrievalCandidate{
		{ImageID: "a", ExternalID: "ext-a", RetrievalScore: 0.5},
		{ImageID: "b", ExternalID: "ext-b", RetrievalScore: 1.0},
	}
	verdicts := map[string]models.VLMVerdict{
		"a": {ImageID: "a", Matches: true, Confidence: 0.9},
		"b": {ImageID: "b", Matches: true, Confidence: 0.75},
	}

	results := Rerank(candidates, verdicts, 0.7, 0.75, 24)

	require.Len(t, results, 2)
	// a: 0.75*0.9 + 0.25*0.5 = 0.8; b: 0.75*0.75 + 0.25*1.0 = 0.8125
	assert.Equal(t, "b", results[0].ImageID)
	assert.Equal(t, "a", results[1].ImageID)
}

func TestRerank_TruncatesToFinalLimit(t *testing.T) {
	var candidates []models.RetrievalCandidate
	verdicts := map[string]models.VLMVerdict{}
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		candidates = append(candidates, models.RetrievalCandidate{ImageID: id, ExternalID: id, RetrievalScore: 0.8})
		verdicts[id] = models.VLMVerdict{ImageID: id, Matches: true, Confidence: 0.8}
	}

	results := Rerank(candidates, verdicts, 0.7, 0.75, 2)

	assert.Len(t, results, 2)
}

func TestRerank_BuildsMatchReasonsAndBadge(t *testing.T) {
	candidates := []models.RetrievalCandidate{
		{ImageID: "a", ExternalID: "ext-a", RetrievalScore: 0.6, Room: models.RoomKitchen},
	}
	verdicts := map[string]models.VLMVerdict{
		"a": {
			ImageID: "a", Matches: true, Confidence: 0.95, Room: models.RoomKitchen,
			Evidence: models.VLMEvidence{
				Objects:         []string{"dining table", "chair"},
				ColorsOnObjects: map[string]string{"dining table": "black"},
			},
		},
	}

	results := Rerank(candidates, verdicts, 0.7, 0.75, 24)

	require.Len(t, results, 1)
	assert.Equal(t, models.BadgeGreen, results[0].ConfidenceBadge)
	assert.Contains(t, results[0].MatchReasons, "Room: kitchen")
	assert.Contains(t, results[0].MatchReasons, "Objects: dining table, chair")
	assert.Contains(t, results[0].MatchReasons, "Colors: dining table=black")
}
