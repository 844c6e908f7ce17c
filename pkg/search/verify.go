package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/piclocate/piclocate-engine/pkg/cache"
	"github.com/piclocate/piclocate-engine/pkg/models"
	"github.com/piclocate/piclocate-engine/pkg/providers"
	"github.com/piclocate/piclocate-engine/pkg/retry"
	"github.com/piclocate/piclocate-engine/pkg/workqueue"
)

// transportRetryConfig drives the fixed exponential backoff schedule for
// HTTP 429/5xx-class VLM failures (spec.md §4.7: "1s, 2s, 4s, 8s; max 4
// retries per batch"): one initial attempt plus four retries at those
// delays, no jitter. The single permitted reformat retry for malformed
// JSON rides the same loop via reformatRetry below, since a batch only
// ever hits one of the two failure modes in practice.
var transportRetryConfig = &retry.Config{
	MaxRetries:   4,
	InitialDelay: 1 * time.Second,
	MaxDelay:     8 * time.Second,
	Multiplier:   2.0,
}

// reformatRetry signals a malformed VLM response worth one retry with a
// stricter prompt. It implements retry.RetryableError so retry.IsRetryable
// keeps going exactly once before errMalformedVerifyJSON (not retryable)
// ends the loop.
type reformatRetry struct{}

func (reformatRetry) Error() string     { return "vlm response malformed json, retrying with stricter prompt" }
func (reformatRetry) IsRetryable() bool { return true }

var errMalformedVerifyJSON = errors.New("vlm returned malformed json after reformat retry")

// Verify runs Stage B (spec.md §4.7): batches candidates, checks the
// verdict cache first, and calls vlm for whatever misses. Results are
// keyed by image_id. The returned bool reports whether the overall
// deadline cut the batch queue off before every batch finished (spec.md
// §5: results collected so far are still returned, with partial=true).
func Verify(
	ctx context.Context,
	vlm providers.VLM,
	verdictCache *cache.VerdictCache,
	normalizedQuery string,
	candidates []models.RetrievalCandidate,
	batchSize, concurrency int,
	requestsPerSec float64,
	logger *zap.Logger,
) (map[string]models.VLMVerdict, bool) {
	if batchSize <= 0 {
		batchSize = 12
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if requestsPerSec <= 0 {
		requestsPerSec = 5
	}

	limiter := rate.NewLimiter(rate.Limit(requestsPerSec), int(requestsPerSec)+1)
	logger = logger.Named("verify")

	var mu sync.Mutex
	results := make(map[string]models.VLMVerdict, len(candidates))

	queue := workqueue.New("verify-batch", concurrency, logger)
	for start := 0; start < len(candidates); start += batchSize {
		end := start + batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]
		queue.Enqueue(&verifyTask{
			BaseTask: workqueue.NewBaseTask(fmt.Sprintf("verify-batch:%d", start)),
			batch:    batch,
			query:    normalizedQuery,
			vlm:      vlm,
			limiter:  limiter,
			cache:    verdictCache,
			results:  results,
			mu:       &mu,
			logger:   logger,
		})
	}
	partial := false
	if err := queue.Wait(ctx); err != nil {
		logger.Warn("verification queue did not finish cleanly", zap.Error(err))
		partial = true
	}

	return results, partial
}

type verifyTask struct {
	workqueue.BaseTask
	batch   []models.RetrievalCandidate
	query   string
	vlm     providers.VLM
	limiter *rate.Limiter
	cache   *cache.VerdictCache
	results map[string]models.VLMVerdict
	mu      *sync.Mutex
	logger  *zap.Logger
}

func (t *verifyTask) Execute(ctx context.Context) error {
	modelID := t.vlm.ModelID()

	var toCall []models.RetrievalCandidate
	for _, c := range t.batch {
		key := cache.Key(t.query, modelID, c.ImageID, fmt.Sprintf("%016x", c.PHash))
		if verdict, ok := t.cache.Get(key); ok {
			t.store(c.ImageID, verdict)
			continue
		}
		toCall = append(toCall, c)
	}
	if len(toCall) == 0 {
		return nil
	}

	refs := make([]providers.ImageRef, 0, len(toCall))
	imageIDs := make([]string, 0, len(toCall))
	for _, c := range toCall {
		refs = append(refs, providers.ImageRef{ImageID: c.ImageID, URL: c.SignedURL})
		imageIDs = append(imageIDs, c.ImageID)
	}
	batchLogger := t.logger.With(zap.String("batch_key", cache.BatchKey(t.query, imageIDs)))

	raw, fallback := callBatchWithRetry(ctx, t.vlm, t.limiter, t.query, refs, batchLogger)

	byImageID := make(map[string]providers.RawVerdict, len(raw))
	for _, v := range raw {
		byImageID[v.ImageID] = v
	}

	for _, c := range toCall {
		verdict := liftVerdict(c.ImageID, byImageID[c.ImageID], fallback)
		key := cache.Key(t.query, modelID, c.ImageID, fmt.Sprintf("%016x", c.PHash))
		t.cache.Put(key, verdict)
		t.store(c.ImageID, verdict)
	}
	return nil
}

func (t *verifyTask) store(imageID string, verdict models.VLMVerdict) {
	t.mu.Lock()
	t.results[imageID] = verdict
	t.mu.Unlock()
}

// liftVerdict converts one provider RawVerdict into models.VLMVerdict. If
// fallback is non-empty (a batch-wide parse_error/provider_error), or the
// image_id is missing from the response entirely, it returns the degraded
// verdict spec.md §4.7 requires instead.
func liftVerdict(imageID string, raw providers.RawVerdict, fallback string) models.VLMVerdict {
	if fallback != "" {
		return models.VLMVerdict{ImageID: imageID, Matches: false, Confidence: 0, Notes: fallback}
	}
	if raw.ImageID == "" {
		return models.VLMVerdict{ImageID: imageID, Matches: false, Confidence: 0, Notes: "missing_from_response"}
	}

	room := models.RoomUnknown
	if raw.Room != nil {
		room = models.Room(*raw.Room)
	}
	return models.VLMVerdict{
		ImageID:    imageID,
		Matches:    raw.Matches,
		Confidence: raw.Confidence,
		Room:       room,
		Evidence: models.VLMEvidence{
			Objects:            raw.Evidence.Objects,
			ColorsOnObjects:    raw.Evidence.Colors,
			MaterialsOnObjects: raw.Evidence.Materials,
		},
		Notes: raw.Notes,
	}
}

// callBatchWithRetry implements spec.md §4.7's two retry policies: one
// reformat retry on malformed JSON, and exponential backoff up to 4
// retries on transport failure (HTTP 429/5xx and friends), both driven by
// retry.DoIfRetryable over transportRetryConfig. The provider layer
// signals which failure kind occurred by whether VerifyResponse.Raw is
// populated: a non-empty Raw means a response body was received but
// failed to parse; an empty Raw means the call itself failed.
func callBatchWithRetry(ctx context.Context, vlm providers.VLM, limiter *rate.Limiter, query string, refs []providers.ImageRef, logger *zap.Logger) ([]providers.RawVerdict, string) {
	currentQuery := query
	reformatted := false
	var verdicts []providers.RawVerdict

	err := retry.DoIfRetryable(ctx, transportRetryConfig, func() error {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		resp, err := vlm.Verify(ctx, currentQuery, refs)
		if err == nil {
			verdicts = resp.Verdicts
			return nil
		}

		if resp.Raw != "" {
			if reformatted {
				logger.Warn("vlm response still malformed after reformat retry")
				return errMalformedVerifyJSON
			}
			reformatted = true
			logger.Info("retrying batch with stricter JSON prompt")
			currentQuery = query + " Return strict JSON only, matching the schema exactly, no prose or markdown."
			return reformatRetry{}
		}

		logger.Warn("vlm transport call failed, retrying if eligible", zap.Error(err))
		return err
	})

	switch {
	case err == nil:
		return verdicts, ""
	case errors.Is(err, errMalformedVerifyJSON):
		return nil, "parse_error"
	case err != nil:
		return nil, "provider_error"
	default:
		return nil, ""
	}
}
