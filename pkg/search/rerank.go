package search

import (
	"fmt"
	"sort"
	"strings"

	"github.com/piclocate/piclocate-engine/pkg/models"
)

// Rerank implements Stage C (spec.md §4.8): filters matched-and-confident
// candidates, blends the retrieval and VLM scores, sorts, and truncates.
func Rerank(candidates []models.RetrievalCandidate, verdicts map[string]models.VLMVerdict, cutoff, alpha float64, finalLimit int) []models.SearchResult {
	if finalLimit <= 0 {
		finalLimit = 24
	}

	results := make([]models.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		verdict, ok := verdicts[c.ImageID]
		if !ok || !verdict.Matches || verdict.Confidence < cutoff {
			continue
		}

		finalScore := alpha*verdict.Confidence + (1-alpha)*c.RetrievalScore
		room := c.Room
		if verdict.Room != "" && verdict.Room != models.RoomUnknown {
			room = verdict.Room
		}

		results = append(results, models.SearchResult{
			ImageID:         c.ImageID,
			ExternalID:      c.ExternalID,
			FileName:        c.FileName,
			FolderPath:      c.FolderPath,
			Room:            room,
			VLMConfidence:   verdict.Confidence,
			FinalScore:      finalScore,
			RetrievalScore:  c.RetrievalScore,
			Evidence:        verdict.Evidence,
			MatchReasons:    buildMatchReasons(room, verdict.Evidence),
			AINotes:         verdict.Notes,
			ConfidenceBadge: models.Badge(verdict.Confidence),
			SignedURL:       c.SignedURL,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].FinalScore != results[j].FinalScore {
			return results[i].FinalScore > results[j].FinalScore
		}
		return results[i].ExternalID < results[j].ExternalID
	})

	if len(results) > finalLimit {
		results = results[:finalLimit]
	}
	return results
}

// buildMatchReasons synthesizes the human-readable reasons spec.md §4.8
// gives as examples: "Room: kitchen", "Objects: dining table, chair",
// "Colors: dining table=black".
func buildMatchReasons(room models.Room, evidence models.VLMEvidence) []string {
	var reasons []string

	if room != "" && room != models.RoomUnknown {
		reasons = append(reasons, "Room: "+strings.ReplaceAll(string(room), "_", " "))
	}
	if len(evidence.Objects) > 0 {
		reasons = append(reasons, "Objects: "+strings.Join(evidence.Objects, ", "))
	}
	if len(evidence.ColorsOnObjects) > 0 {
		pairs := make([]string, 0, len(evidence.ColorsOnObjects))
		for obj, color := range evidence.ColorsOnObjects {
			pairs = append(pairs, fmt.Sprintf("%s=%s", obj, color))
		}
		sort.Strings(pairs)
		reasons = append(reasons, "Colors: "+strings.Join(pairs, ", "))
	}
	if len(evidence.MaterialsOnObjects) > 0 {
		pairs := make([]string, 0, len(evidence.MaterialsOnObjects))
		for obj, mat := range evidence.MaterialsOnObjects {
			pairs = append(pairs, fmt.Sprintf("%s=%s", obj, mat))
		}
		sort.Strings(pairs)
		reasons = append(reasons, "Materials: "+strings.Join(pairs, ", "))
	}
	return reasons
}
