package indexing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// maxTrackedErrors caps the in-memory/persisted error list (spec.md §4.9:
// "Errors list is capped at the last 100").
const maxTrackedErrors = 100

// persistInterval bounds how often Progress is written to
// indexing_progress; writing on every single image would add one UPDATE
// per image for no operational benefit.
const persistInterval = 5 * time.Second

// ErrorEntry is one indexing failure surfaced on the status endpoint.
type ErrorEntry struct {
	ExternalID string    `json:"external_id"`
	Message    string    `json:"message"`
	At         time.Time `json:"at"`
}

// Snapshot is the process-wide indexing state (spec.md §4.9).
type Snapshot struct {
	IsRunning      bool         `json:"is_running"`
	StartedAt      *time.Time   `json:"started_at,omitempty"`
	ProcessedCount int64        `json:"processed_count"`
	TotalCount     int          `json:"total_count"`
	ProgressPct    float64      `json:"progress_pct"`
	CurrentFile    string       `json:"current_file"`
	Errors         []ErrorEntry `json:"errors"`
}

// ProgressTracker holds mutable indexing state behind a mutex and persists
// it periodically so a restart can recover without starting blind
// (spec.md §4.9).
type ProgressTracker struct {
	mu   sync.Mutex
	snap Snapshot

	pool        *pgxpool.Pool
	logger      *zap.Logger
	lastPersist time.Time
}

// NewProgressTracker constructs a ProgressTracker. Restore is called once
// at startup to recompute ProcessedCount from the Image table, since that
// count is never trusted from the persisted row alone.
func NewProgressTracker(pool *pgxpool.Pool, logger *zap.Logger) *ProgressTracker {
	return &ProgressTracker{pool: pool, logger: logger.Named("progress")}
}

// Restore loads the persisted row (if any) and recomputes ProcessedCount
// from images, per spec.md §4.9.
func (t *ProgressTracker) Restore(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var (
		isRunning   bool
		startedAt   *time.Time
		totalCount  int
		currentFile *string
		errorsJSON  []byte
	)
	err := t.pool.QueryRow(ctx, `
		SELECT is_running, started_at, total_count, current_file, errors
		FROM indexing_progress WHERE id = true`,
	).Scan(&isRunning, &startedAt, &totalCount, &currentFile, &errorsJSON)
	if err != nil && err != pgx.ErrNoRows {
		return fmt.Errorf("load indexing_progress: %w", err)
	}
	if err == nil {
		t.snap.IsRunning = isRunning
		t.snap.StartedAt = startedAt
		t.snap.TotalCount = totalCount
		if currentFile != nil {
			t.snap.CurrentFile = *currentFile
		}
		if len(errorsJSON) > 0 {
			_ = json.Unmarshal(errorsJSON, &t.snap.Errors)
		}
	}

	var processed int64
	if err := t.pool.QueryRow(ctx, `SELECT COUNT(*) FROM images`).Scan(&processed); err != nil {
		return fmt.Errorf("recompute processed_count: %w", err)
	}
	t.snap.ProcessedCount = processed

	// A restart always interrupts any in-flight run.
	t.snap.IsRunning = false
	return nil
}

// Start marks a new run beginning, sets StartedAt and TotalCount, and
// clears errors; ProcessedCount is not reset and keeps counting up.
func (t *ProgressTracker) Start(ctx context.Context, totalCount int) {
	t.mu.Lock()
	now := time.Now()
	t.snap.IsRunning = true
	t.snap.StartedAt = &now
	t.snap.TotalCount = totalCount
	t.snap.Errors = nil
	t.mu.Unlock()

	t.persist(ctx)
}

// Advance records one image finishing (successfully or not) and stores
// that image's file name as CurrentFile.
func (t *ProgressTracker) Advance(ctx context.Context, currentFile string, failure error, externalID string) {
	t.mu.Lock()
	t.snap.ProcessedCount++
	t.snap.CurrentFile = currentFile
	if failure != nil {
		entry := ErrorEntry{ExternalID: externalID, Message: failure.Error(), At: time.Now()}
		t.snap.Errors = append(t.snap.Errors, entry)
		if len(t.snap.Errors) > maxTrackedErrors {
			t.snap.Errors = t.snap.Errors[len(t.snap.Errors)-maxTrackedErrors:]
		}
	}
	due := time.Since(t.lastPersist) >= persistInterval
	t.mu.Unlock()

	if due {
		t.persist(ctx)
	}
}

// Finish marks the run complete and forces a final persist.
func (t *ProgressTracker) Finish(ctx context.Context) {
	t.mu.Lock()
	t.snap.IsRunning = false
	t.snap.CurrentFile = ""
	t.mu.Unlock()

	t.persist(ctx)
}

// Snapshot returns a copy of the current state.
func (t *ProgressTracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.snap
	out.Errors = append([]ErrorEntry(nil), t.snap.Errors...)
	if out.TotalCount > 0 {
		out.ProgressPct = 100 * float64(out.ProcessedCount) / float64(out.TotalCount)
		if out.ProgressPct > 100 {
			out.ProgressPct = 100
		}
	}
	return out
}

func (t *ProgressTracker) persist(ctx context.Context) {
	t.mu.Lock()
	snap := t.snap
	t.lastPersist = time.Now()
	t.mu.Unlock()

	errorsJSON, err := json.Marshal(snap.Errors)
	if err != nil {
		t.logger.Warn("marshal progress errors failed", zap.Error(err))
		errorsJSON = []byte("[]")
	}

	_, err = t.pool.Exec(ctx, `
		INSERT INTO indexing_progress (id, is_running, started_at, total_count, current_file, errors, updated_at)
		VALUES (true, $1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			is_running = EXCLUDED.is_running,
			started_at = EXCLUDED.started_at,
			total_count = EXCLUDED.total_count,
			current_file = EXCLUDED.current_file,
			errors = EXCLUDED.errors,
			updated_at = now()`,
		snap.IsRunning, snap.StartedAt, snap.TotalCount, snap.CurrentFile, errorsJSON,
	)
	if err != nil {
		t.logger.Warn("persist indexing progress failed", zap.Error(err))
	}
}
