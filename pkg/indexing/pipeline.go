package indexing

import (
	"context"
	"runtime"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/piclocate/piclocate-engine/pkg/providers"
	"github.com/piclocate/piclocate-engine/pkg/vision"
	"github.com/piclocate/piclocate-engine/pkg/workqueue"
)

// PoolSizes configures each stage's worker pool (spec.md §5). VisionPool
// of 0 resolves to min(runtime.NumCPU(), 4) at Pipeline construction.
type PoolSizes struct {
	FetcherPool int
	VisionPool  int
	EmbedPool   int
	PersistPool int
}

// resolveVisionPool applies spec.md §5's "vision=min(CPU,4)" default.
func resolveVisionPool(configured int) int {
	if configured > 0 {
		return configured
	}
	cpu := runtime.NumCPU()
	if cpu > 4 {
		return 4
	}
	return cpu
}

// Pipeline wires the crawler, fetcher, vision analyzer, and persister into
// one indexing run, each stage bounded by its own workqueue.Queue
// (spec.md §5).
type Pipeline struct {
	crawler   *Crawler
	fetcher   *Fetcher
	analyzer  *vision.Analyzer
	persister *Persister
	progress  *ProgressTracker

	fetchQueue   *workqueue.Queue
	visionQueue  *workqueue.Queue
	persistQueue *workqueue.Queue

	logger *zap.Logger
}

// NewPipeline constructs a Pipeline. detector and embedder are the two
// provider-backed services the vision/caption stages call out to.
func NewPipeline(
	crawler *Crawler,
	fetcher *Fetcher,
	detector providers.Detector,
	embedder providers.Embedder,
	persister *Persister,
	progress *ProgressTracker,
	pools PoolSizes,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		crawler:      crawler,
		fetcher:      fetcher,
		analyzer:     vision.NewAnalyzer(detector, logger),
		persister:    persister,
		progress:     progress,
		fetchQueue:   workqueue.New("fetch", pools.FetcherPool, logger),
		visionQueue:  workqueue.New("vision", resolveVisionPool(pools.VisionPool), logger),
		persistQueue: workqueue.New("persist", pools.PersistPool, logger),
		logger:       logger.Named("pipeline"),
	}
}

// Run walks rootFolderID and drives every discovered WorkItem through
// fetch → vision → persist, blocking until the crawl and all in-flight
// work finishes or ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, rootFolderID string) error {
	items, crawlErrs := p.crawler.Walk(ctx, rootFolderID)

	p.progress.Start(ctx, 0)

	for item := range items {
		item := item
		p.fetchQueue.Enqueue(&fetchTask{
			BaseTask: workqueue.NewBaseTask("fetch:" + item.ExternalID),
			item:     item,
			pipeline: p,
		})
	}

	if err := p.fetchQueue.Wait(ctx); err != nil {
		return err
	}
	if err := p.visionQueue.Wait(ctx); err != nil {
		return err
	}
	if err := p.persistQueue.Wait(ctx); err != nil {
		return err
	}

	p.progress.Finish(ctx)

	select {
	case err := <-crawlErrs:
		return err
	default:
		return nil
	}
}

type fetchTask struct {
	workqueue.BaseTask
	item     WorkItem
	pipeline *Pipeline
}

func (t *fetchTask) Execute(ctx context.Context) error {
	fetched, err := t.pipeline.fetcher.Fetch(ctx, t.item)
	if err != nil {
		t.pipeline.progress.Advance(ctx, t.item.Name, err, t.item.ExternalID)
		return err
	}
	if fetched == nil {
		// Decode failure: already logged by Fetcher, not a retryable error.
		t.pipeline.progress.Advance(ctx, t.item.Name, nil, t.item.ExternalID)
		return nil
	}

	t.pipeline.visionQueue.Enqueue(&visionTask{
		BaseTask: workqueue.NewBaseTask("vision:" + fetched.Item.ExternalID),
		fetched:  fetched,
		pipeline: t.pipeline,
	})
	return nil
}

type visionTask struct {
	workqueue.BaseTask
	fetched  *Fetched
	pipeline *Pipeline
}

func (t *visionTask) Execute(ctx context.Context) error {
	// The repository assigns (or recovers, on re-index) the real image id
	// during Upsert; this placeholder only needs to be a stable grouping
	// key for the Objects/RoomScores produced within this one pass.
	result := t.pipeline.analyzer.Analyze(ctx, uuid.New(), t.fetched.Decoded, t.fetched.RawBytes)

	t.pipeline.persistQueue.Enqueue(&persistTask{
		BaseTask: workqueue.NewBaseTask("persist:" + t.fetched.Item.ExternalID),
		fetched:  t.fetched,
		result:   result,
		pipeline: t.pipeline,
	})
	return nil
}

type persistTask struct {
	workqueue.BaseTask
	fetched  *Fetched
	result   vision.Result
	pipeline *Pipeline
}

func (t *persistTask) Execute(ctx context.Context) error {
	err := t.pipeline.persister.Persist(ctx, t.fetched, t.result, nil)
	t.pipeline.progress.Advance(ctx, t.fetched.Item.Name, err, t.fetched.Item.ExternalID)
	return err
}
