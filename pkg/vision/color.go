package vision

import (
	"image"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/piclocate/piclocate-engine/pkg/models"
)

// maxColorSamplePixels bounds how many pixels are subsampled from a
// cropped region before k-means runs (spec.md §4.3 pass B: "≤ 4k points").
const maxColorSamplePixels = 4000

// colorClusters is k in the pass B k-means run.
const colorClusters = 3

// secondaryColorShare is the minimum cluster share to surface as a
// secondary color.
const secondaryColorShare = 0.10

// ColorResult is the outcome of pass B for one detected object.
type ColorResult struct {
	Name            string
	LAB             models.LAB
	SecondaryColors []string
}

// ClassifyColor crops img to box, clusters its pixels in CIELAB with
// k-means (k=3), and resolves the dominant and secondary clusters against
// the 18-color palette.
func ClassifyColor(img image.Image, box models.BBox) ColorResult {
	labs := samplePixelsLAB(img, box)
	if len(labs) == 0 {
		return ColorResult{Name: "unknown"}
	}

	centroids, shares := kMeansLAB(labs, colorClusters)

	type cluster struct {
		lab   models.LAB
		share float64
	}
	clusters := make([]cluster, len(centroids))
	for i, c := range centroids {
		clusters[i] = cluster{lab: c, share: shares[i]}
	}

	dominantIdx := 0
	for i, c := range clusters {
		if c.share > clusters[dominantIdx].share {
			dominantIdx = i
		}
	}

	dominant := clusters[dominantIdx]
	result := ColorResult{
		Name: nearestColorName(dominant.lab),
		LAB:  dominant.lab,
	}

	for i, c := range clusters {
		if i == dominantIdx || c.share < secondaryColorShare {
			continue
		}
		result.SecondaryColors = append(result.SecondaryColors, nearestColorName(c.lab))
	}

	return result
}

// nearestColorName snaps a LAB point to the closest models.ColorPalette
// entry, with an explicit black/white lightness override (spec.md §4.3:
// "Very dark (L<15) or very light (L>90) clusters snap to black/white
// regardless of chroma").
func nearestColorName(c models.LAB) string {
	if c.L < 15 {
		return "black"
	}
	if c.L > 90 {
		return "white"
	}

	best := ""
	bestDist := math.MaxFloat64
	for _, anchor := range models.ColorPalette {
		d := labDistance(c, models.LAB{L: anchor.L, A: anchor.A, B: anchor.B})
		if d < bestDist {
			bestDist = d
			best = anchor.Name
		}
	}
	return best
}

func labDistance(a, b models.LAB) float64 {
	dl, da, db := a.L-b.L, a.A-b.A, a.B-b.B
	return math.Sqrt(dl*dl + da*da + db*db)
}

// samplePixelsLAB crops box out of img and converts each sampled pixel to
// CIELAB, subsampling uniformly to maxColorSamplePixels when the region is
// larger.
func samplePixelsLAB(img image.Image, box models.BBox) []models.LAB {
	bounds := img.Bounds()
	x0, y0 := bounds.Min.X+box.X, bounds.Min.Y+box.Y
	x1, y1 := x0+box.W, y0+box.H
	if x0 < bounds.Min.X {
		x0 = bounds.Min.X
	}
	if y0 < bounds.Min.Y {
		y0 = bounds.Min.Y
	}
	if x1 > bounds.Max.X {
		x1 = bounds.Max.X
	}
	if y1 > bounds.Max.Y {
		y1 = bounds.Max.Y
	}
	if x1 <= x0 || y1 <= y0 {
		return nil
	}

	total := (x1 - x0) * (y1 - y0)
	stride := 1
	if total > maxColorSamplePixels {
		stride = (total + maxColorSamplePixels - 1) / maxColorSamplePixels
	}

	var out []models.LAB
	n := 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			if n%stride == 0 {
				r, g, b, _ := img.At(x, y).RGBA()
				out = append(out, rgbToLAB(uint8(r>>8), uint8(g>>8), uint8(b>>8)))
			}
			n++
		}
	}
	return out
}

// kMeansLAB runs Lloyd's algorithm in 3-D LAB space and returns each
// cluster's centroid and share of the input points. Seeding is
// deterministic: it takes evenly spaced positions in a permutation drawn
// from a generator seeded with the point count, with no random restarts,
// since this only needs a stable, good-enough split of one object's crop,
// not a globally optimal clustering.
func kMeansLAB(points []models.LAB, k int) ([]models.LAB, []float64) {
	n := len(points)
	if n < k {
		k = n
	}
	data := mat.NewDense(n, 3, nil)
	for i, p := range points {
		data.Set(i, 0, p.L)
		data.Set(i, 1, p.A)
		data.Set(i, 2, p.B)
	}

	centroids := mat.NewDense(k, 3, nil)
	rnd := rand.New(rand.NewSource(int64(n)))
	seedOrder := rnd.Perm(n)
	for i := 0; i < k; i++ {
		row := data.RawRowView(seedOrder[i*n/k])
		centroids.SetRow(i, row)
	}

	assign := make([]int, n)
	const maxIterations = 15
	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i := 0; i < n; i++ {
			row := data.RawRowView(i)
			best, bestDist := 0, math.MaxFloat64
			for c := 0; c < k; c++ {
				crow := centroids.RawRowView(c)
				d := sqDist3(row, crow)
				if d < bestDist {
					bestDist, best = d, c
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}

		sums := mat.NewDense(k, 3, nil)
		counts := make([]int, k)
		for i := 0; i < n; i++ {
			c := assign[i]
			counts[c]++
			row := data.RawRowView(i)
			for d := 0; d < 3; d++ {
				sums.Set(c, d, sums.At(c, d)+row[d])
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			for d := 0; d < 3; d++ {
				centroids.Set(c, d, sums.At(c, d)/float64(counts[c]))
			}
		}

		if !changed {
			break
		}
	}

	counts := make([]int, k)
	for _, a := range assign {
		counts[a]++
	}

	result := make([]models.LAB, k)
	shares := make([]float64, k)
	for c := 0; c < k; c++ {
		row := centroids.RawRowView(c)
		result[c] = models.LAB{L: row[0], A: row[1], B: row[2]}
		shares[c] = float64(counts[c]) / float64(n)
	}
	return result, shares
}

func sqDist3(a, b []float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return dx*dx + dy*dy + dz*dz
}

// rgbToLAB converts an 8-bit sRGB pixel to CIELAB under the D65 illuminant.
func rgbToLAB(r, g, b uint8) models.LAB {
	lr := srgbToLinear(float64(r) / 255)
	lg := srgbToLinear(float64(g) / 255)
	lb := srgbToLinear(float64(b) / 255)

	x := lr*0.4124564 + lg*0.3575761 + lb*0.1804375
	y := lr*0.2126729 + lg*0.7151522 + lb*0.0721750
	z := lr*0.0193339 + lg*0.1191920 + lb*0.9503041

	const xn, yn, zn = 0.95047, 1.00000, 1.08883
	fx := labF(x / xn)
	fy := labF(y / yn)
	fz := labF(z / zn)

	return models.LAB{
		L: 116*fy - 16,
		A: 500 * (fx - fy),
		B: 200 * (fy - fz),
	}
}

func srgbToLinear(c float64) float64 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return math.Pow((c+0.055)/1.055, 2.4)
}

func labF(t float64) float64 {
	const delta = 6.0 / 29.0
	if t > delta*delta*delta {
		return math.Cbrt(t)
	}
	return t/(3*delta*delta) + 4.0/29.0
}
