package indexing

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"math"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/piclocate/piclocate-engine/pkg/adapters/imagestore"
	"github.com/piclocate/piclocate-engine/pkg/repositories"
)

// phashSize is the side length of the luminance grid the DCT phash is
// computed over (spec.md §4.2: "8×8 perceptual hash").
const phashSize = 8

// phashSampleSize is the side length the image is downsampled to before
// the DCT is taken; must be ≥ phashSize.
const phashSampleSize = 32

// Fetched is one successfully downloaded, decoded, and deduplicated image
// ready for vision analysis.
type Fetched struct {
	Item            WorkItem
	Decoded         image.Image
	RawBytes        []byte // detector input: original bytes, or the rescaled image re-encoded as JPEG when a rescale happened
	Width, Height   int    // original dimensions, before rescale
	PHash           uint64
	NearDuplicateOf []string
}

// Fetcher downloads, decodes, deduplicates, and rescales one WorkItem.
type Fetcher struct {
	store      imagestore.Store
	images     repositories.ImageRepository
	maxImagePx int
	logger     *zap.Logger
}

// NewFetcher constructs a Fetcher. maxImagePx bounds the longest side after
// rescale (spec.md §4.2, config Vision.MaxImagePx, default 1024).
func NewFetcher(store imagestore.Store, images repositories.ImageRepository, maxImagePx int, logger *zap.Logger) *Fetcher {
	return &Fetcher{store: store, images: images, maxImagePx: maxImagePx, logger: logger.Named("fetcher")}
}

// Fetch downloads item's bytes, decodes, computes its perceptual hash,
// checks for in-folder near-duplicates, and rescales for downstream
// analysis. A decode failure returns (nil, nil): the caller logs and drops
// the item rather than aborting the pipeline (spec.md §4.2).
func (f *Fetcher) Fetch(ctx context.Context, item WorkItem) (*Fetched, error) {
	raw, _, err := f.store.FetchBytes(ctx, item.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("fetch bytes for %s: %w", item.ExternalID, err)
	}

	decoded, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		f.logger.Warn("decode failed, dropping item",
			zap.String("external_id", item.ExternalID), zap.Error(err))
		return nil, nil
	}

	bounds := decoded.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	hash := computePHash(decoded)

	neighbors, err := f.images.PhashNeighbors(ctx, item.Path, hash, item.ExternalID)
	if err != nil {
		f.logger.Warn("phash neighbor lookup failed, continuing without dedup hint",
			zap.String("external_id", item.ExternalID), zap.Error(err))
	}
	if len(neighbors) > 0 {
		f.logger.Info("near-duplicate detected, still indexing",
			zap.String("external_id", item.ExternalID), zap.Strings("neighbors", neighbors))
	}

	rescaled := rescaleLongestSide(decoded, f.maxImagePx)
	analysisBytes := raw
	if rescaled != decoded {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, rescaled, nil); err != nil {
			return nil, fmt.Errorf("re-encode rescaled %s: %w", item.ExternalID, err)
		}
		analysisBytes = buf.Bytes()
	}

	return &Fetched{
		Item:            item,
		Decoded:         rescaled,
		RawBytes:        analysisBytes,
		Width:           width,
		Height:          height,
		PHash:           hash,
		NearDuplicateOf: neighbors,
	}, nil
}

// rescaleLongestSide resizes img so its longest side is at most maxPx,
// preserving aspect ratio. Images already within bounds pass through
// unchanged (spec.md §4.2: "original dimensions are preserved in
// Image.width/height"; this only affects the copy handed to analysis).
func rescaleLongestSide(img image.Image, maxPx int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if maxPx <= 0 || longest <= maxPx {
		return img
	}

	scale := float64(maxPx) / float64(longest)
	newW := int(math.Round(float64(w) * scale))
	newH := int(math.Round(float64(h) * scale))

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// computePHash runs an 8×8 DCT-based, luminance-only, median-threshold
// perceptual hash (spec.md §4.2).
func computePHash(img image.Image) uint64 {
	gray := downsampleLuminance(img, phashSampleSize)
	coeffs := dct2D(gray, phashSampleSize)

	// Low-frequency phashSize×phashSize block, excluding the DC term.
	vals := make([]float64, 0, phashSize*phashSize-1)
	for y := 0; y < phashSize; y++ {
		for x := 0; x < phashSize; x++ {
			if x == 0 && y == 0 {
				continue
			}
			vals = append(vals, coeffs[y*phashSampleSize+x])
		}
	}

	median := medianOf(vals)

	var hash uint64
	bit := uint(0)
	for y := 0; y < phashSize; y++ {
		for x := 0; x < phashSize; x++ {
			if x == 0 && y == 0 {
				continue
			}
			if coeffs[y*phashSampleSize+x] > median {
				hash |= 1 << bit
			}
			bit++
		}
	}
	return hash
}

func downsampleLuminance(img image.Image, size int) []float64 {
	bounds := image.Rect(0, 0, size, size)
	dst := image.NewGray(bounds)
	draw.BiLinear.Scale(dst, bounds, img, img.Bounds(), draw.Over, nil)

	out := make([]float64, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			out[y*size+x] = float64(dst.GrayAt(x, y).Y)
		}
	}
	return out
}

// dct2D computes a naive separable 2-D DCT-II over an n×n grid. n is small
// (32) so the O(n^3) approach is fine for per-image use.
func dct2D(grid []float64, n int) []float64 {
	tmp := make([]float64, n*n)
	out := make([]float64, n*n)

	for y := 0; y < n; y++ {
		row := grid[y*n : y*n+n]
		for u := 0; u < n; u++ {
			tmp[y*n+u] = dct1D(row, u, n)
		}
	}
	for x := 0; x < n; x++ {
		col := make([]float64, n)
		for y := 0; y < n; y++ {
			col[y] = tmp[y*n+x]
		}
		for v := 0; v < n; v++ {
			out[v*n+x] = dct1D(col, v, n)
		}
	}
	return out
}

func dct1D(values []float64, k, n int) float64 {
	var sum float64
	for i, v := range values {
		sum += v * math.Cos(math.Pi/float64(n)*(float64(i)+0.5)*float64(k))
	}
	alpha := math.Sqrt(2.0 / float64(n))
	if k == 0 {
		alpha = math.Sqrt(1.0 / float64(n))
	}
	return alpha * sum
}

func medianOf(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
