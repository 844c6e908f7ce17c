// Package indexing implements the offline pipeline that walks the source
// image store, fetches and deduplicates files, runs the vision analyzer,
// builds captions and embeddings, and persists the result (spec.md §2
// "Indexing pipeline", §4.1-§4.9).
package indexing

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/piclocate/piclocate-engine/pkg/adapters/imagestore"
	"github.com/piclocate/piclocate-engine/pkg/apperrors"
	"github.com/piclocate/piclocate-engine/pkg/repositories"
)

// crawlerBacklogCap bounds the crawler's output channel so a fast
// traversal can't outrun the fetcher pool (spec.md §4.1: "Emits on a
// bounded channel so downstream backpressure throttles traversal").
const crawlerBacklogCap = 256

// acceptedMimeTypes is the set of image MIME types the crawler yields
// (spec.md §4.1).
var acceptedMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/heic": true,
}

// crawlerRetry mirrors spec.md §4.1: "transient listing errors retry with
// exponential backoff (base 500 ms, cap 30 s, max 5 attempts per folder)".
var crawlerRetry = struct {
	maxAttempts int
	base        time.Duration
	cap         time.Duration
}{maxAttempts: 5, base: 500 * time.Millisecond, cap: 30 * time.Second}

// WorkItem is one image file the crawler hands to the fetcher.
type WorkItem struct {
	ExternalID string
	Path       string
	Name       string
	Mime       string
}

// Crawler walks the source store depth-first, emitting WorkItems for
// images that need (re)indexing.
type Crawler struct {
	store       imagestore.Store
	images      repositories.ImageRepository
	incremental bool
	logger      *zap.Logger
}

// NewCrawler constructs a Crawler.
func NewCrawler(store imagestore.Store, images repositories.ImageRepository, incremental bool, logger *zap.Logger) *Crawler {
	return &Crawler{store: store, images: images, incremental: incremental, logger: logger.Named("crawler")}
}

// Walk traverses rootFolderID depth-first and emits accepted, not-yet-
// up-to-date WorkItems on the returned channel. The channel is closed when
// the traversal finishes or ctx is cancelled. Traversal stops entirely on
// an auth error (spec.md §4.1: "Fails the whole crawl only on auth
// errors"); other per-folder errors are logged and that subtree is
// skipped.
func (c *Crawler) Walk(ctx context.Context, rootFolderID string) (<-chan WorkItem, <-chan error) {
	out := make(chan WorkItem, crawlerBacklogCap)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		if err := c.walkFolder(ctx, rootFolderID, out); err != nil {
			errs <- err
		}
	}()

	return out, errs
}

func (c *Crawler) walkFolder(ctx context.Context, folderID string, out chan<- WorkItem) error {
	entries, err := c.listFolderWithRetry(ctx, folderID)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if e.Mime == "" || e.Mime == "application/vnd.google-apps.folder" || isFolderMime(e.Mime) {
			if err := c.walkFolder(ctx, e.FileID, out); err != nil {
				if isAuthError(err) {
					return err
				}
				c.logger.Warn("subfolder listing failed, skipping subtree",
					zap.String("folder_id", e.FileID), zap.Error(err))
			}
			continue
		}

		if !acceptedMimeTypes[e.Mime] {
			continue
		}

		if c.incremental && c.alreadyUpToDate(ctx, e) {
			continue
		}

		select {
		case out <- WorkItem{ExternalID: e.FileID, Path: e.Path, Name: e.Name, Mime: e.Mime}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// alreadyUpToDate reports whether e already has an Image row with a
// non-zero indexed_at. Only that presence is checked: the source mtime is
// not compared with indexed_at, here or in the fetcher, so a file changed
// after it was indexed is skipped in incremental mode. A failed lookup
// counts as "not up to date" and the file is re-fetched.
func (c *Crawler) alreadyUpToDate(ctx context.Context, e imagestore.Entry) bool {
	indexedAt, ok, err := c.images.IndexedAt(ctx, e.FileID)
	if err != nil {
		c.logger.Warn("indexed_at lookup failed, will re-fetch", zap.String("external_id", e.FileID), zap.Error(err))
		return false
	}
	return ok && !indexedAt.IsZero()
}

func (c *Crawler) listFolderWithRetry(ctx context.Context, folderID string) ([]imagestore.Entry, error) {
	var lastErr error
	backoff := crawlerRetry.base

	for attempt := 1; attempt <= crawlerRetry.maxAttempts; attempt++ {
		entries, err := c.store.ListFolder(ctx, folderID)
		if err == nil {
			return entries, nil
		}
		lastErr = err
		if isAuthError(err) {
			return nil, err
		}

		if attempt == crawlerRetry.maxAttempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
		if backoff > crawlerRetry.cap {
			backoff = crawlerRetry.cap
		}
	}

	return nil, fmt.Errorf("list folder %s after %d attempts: %w", folderID, crawlerRetry.maxAttempts, lastErr)
}

func isFolderMime(mime string) bool {
	return mime == "inode/directory"
}

// isAuthError reports whether err is the imagestore adapter's
// KindAuth classification (401/403 from the source store), which halts
// the whole crawl rather than just skipping a subtree (spec.md §4.1).
func isAuthError(err error) bool {
	return apperrors.KindOf(err) == apperrors.KindAuth
}
