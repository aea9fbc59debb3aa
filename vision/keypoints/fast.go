package keypoints

import (
	"image"
	"sort"

	"go.viam.com/keyframes/utils"
)

// CrossIdx is the 4-neighborhood at distance 3 used for the FAST high-speed test.
var CrossIdx = []image.Point{{0, -3}, {3, 0}, {0, 3}, {-3, 0}}

// CircleIdx is the 16-pixel Bresenham circle of radius 3 used by FAST, clockwise from the top.
var CircleIdx = []image.Point{
	{0, -3}, {1, -3}, {2, -2}, {3, -1},
	{3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1},
	{-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

// FASTConfig holds the parameters of the FAST detector.
type FASTConfig struct {
	// Threshold is the minimum intensity difference between the center and an arc pixel.
	Threshold int `json:"threshold"`
	// NMatchesCircle is the number of contiguous circle pixels that must pass the test.
	NMatchesCircle int `json:"n_matches"`
	// Border is the margin, in pixels, inside which no keypoint is reported.
	Border int `json:"border"`
}

// scoredPoint is a keypoint candidate with its detector response.
type scoredPoint struct {
	image.Point
	score float64
}

// sortByScore orders candidates by decreasing score, then by row, then by column.
func sortByScore(pts []scoredPoint) {
	sort.SliceStable(pts, func(i, j int) bool {
		if pts[i].score != pts[j].score {
			return pts[i].score > pts[j].score
		}
		if pts[i].Y != pts[j].Y {
			return pts[i].Y < pts[j].Y
		}
		return pts[i].X < pts[j].X
	})
}

// GetPointValuesInNeighborhood returns the gray values of img at p + offset for every offset.
// Pixels outside the image read as their nearest border pixel.
func GetPointValuesInNeighborhood(img *image.Gray, p image.Point, neighborhood []image.Point) []float64 {
	vals := make([]float64, len(neighborhood))
	for i, off := range neighborhood {
		vals[i] = float64(grayAtClamped(img, p.X+off.X, p.Y+off.Y))
	}
	return vals
}

// grayAtClamped reads img at (x, y) relative to its origin, clamping to the image.
func grayAtClamped(img *image.Gray, x, y int) uint8 {
	b := img.Bounds()
	x = utils.ClampInt(x, 0, b.Dx()-1)
	y = utils.ClampInt(y, 0, b.Dy()-1)
	return img.Pix[y*img.Stride+x]
}

// hasContiguousArc reports whether `flags` holds at least n consecutive true values, wrapping
// around the end of the slice.
func hasContiguousArc(flags []bool, n int) bool {
	if n <= 0 {
		return true
	}
	if n > len(flags) {
		return false
	}
	run := 0
	for i := 0; i < len(flags)+n-1; i++ {
		if flags[i%len(flags)] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

// fastScore returns the FAST response at (x, y), or 0 when the pixel is not a corner. The
// response is the summed absolute excess over the threshold of the brighter or darker arc,
// whichever passes and is larger.
func fastScore(img *image.Gray, x, y int, cfg *FASTConfig) float64 {
	center := int(img.Pix[y*img.Stride+x])
	t := cfg.Threshold
	brighter := make([]bool, len(CircleIdx))
	darker := make([]bool, len(CircleIdx))
	brightSum, darkSum := 0, 0
	nBright, nDark := 0, 0
	for i, off := range CircleIdx {
		v := int(grayAtClamped(img, x+off.X, y+off.Y))
		switch {
		case v > center+t:
			brighter[i] = true
			brightSum += v - center - t
			nBright++
		case v < center-t:
			darker[i] = true
			darkSum += center - t - v
			nDark++
		}
	}
	score := 0
	if nBright >= cfg.NMatchesCircle && hasContiguousArc(brighter, cfg.NMatchesCircle) {
		score = brightSum
	}
	if nDark >= cfg.NMatchesCircle && hasContiguousArc(darker, cfg.NMatchesCircle) && darkSum > score {
		score = darkSum
	}
	return float64(score)
}

// detectFAST returns the FAST corners of img farther than cfg.Border from every edge, after 3x3
// non-maximum suppression, ordered by decreasing score.
func detectFAST(img *image.Gray, cfg *FASTConfig) []scoredPoint {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	border := utils.MaxInt(cfg.Border, 3)
	if w <= 2*border || h <= 2*border {
		return nil
	}
	scores := make([]float64, w*h)
	utils.ParallelForEachRow(border, h-border, func(y int) {
		for x := border; x < w-border; x++ {
			scores[y*w+x] = fastScore(img, x, y, cfg)
		}
	})

	corners := suppressNonMaxima(scores, w, h, border)
	sortByScore(corners)
	return corners
}

// suppressNonMaxima keeps the positive scores of the w x h grid, at least border from every edge,
// that are the maximum of their 3x3 neighborhood. Of equal neighbors, the first in row-major
// order is kept.
func suppressNonMaxima(scores []float64, w, h, border int) []scoredPoint {
	var corners []scoredPoint
	for y := border; y < h-border; y++ {
		for x := border; x < w-border; x++ {
			s := scores[y*w+x]
			if s <= 0 {
				continue
			}
			isMax := true
			for dy := -1; dy <= 1 && isMax; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					n := scores[(y+dy)*w+x+dx]
					earlier := dy < 0 || (dy == 0 && dx < 0)
					if n > s || (earlier && n == s) {
						isMax = false
						break
					}
				}
			}
			if isMax {
				corners = append(corners, scoredPoint{image.Point{x, y}, s})
			}
		}
	}
	return corners
}
