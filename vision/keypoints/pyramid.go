package keypoints

import (
	"image"
	"math"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"

	"go.viam.com/keyframes/rimage"
)

// ImagePyramid contains the successively downscaled images and, for each, the factor that maps
// its coordinates back to the full resolution image.
type ImagePyramid struct {
	Images []*image.Gray
	Scales []float64
}

// GetImagePyramid builds up to nLevels levels, level i being img downscaled by scaleFactor^i with
// bilinear interpolation. Building stops at the first level smaller than minSize in either
// dimension.
func GetImagePyramid(img *image.Gray, scaleFactor float64, nLevels, minSize int) (*ImagePyramid, error) {
	if scaleFactor <= 1 {
		return nil, errors.Errorf("scale factor should be > 1, got %v", scaleFactor)
	}
	if nLevels < 1 {
		return nil, errors.Errorf("number of levels should be >= 1, got %d", nLevels)
	}
	base := rimage.MakeGray(img)
	w, h := base.Bounds().Dx(), base.Bounds().Dy()

	pyramid := &ImagePyramid{}
	for level := 0; level < nLevels; level++ {
		scale := math.Pow(scaleFactor, float64(level))
		lw := int(math.Round(float64(w) / scale))
		lh := int(math.Round(float64(h) / scale))
		if lw < minSize || lh < minSize {
			break
		}
		current := base
		if level > 0 {
			current = rimage.MakeGray(resize.Resize(uint(lw), uint(lh), base, resize.Bilinear))
		}
		pyramid.Images = append(pyramid.Images, current)
		pyramid.Scales = append(pyramid.Scales, scale)
	}
	return pyramid, nil
}

// featuresPerLevel distributes nFeatures over nLevels as a geometric series of ratio
// 1/scaleFactor; the last level receives the remainder.
func featuresPerLevel(nFeatures int, scaleFactor float64, nLevels int) []int {
	factor := 1. / scaleFactor
	perLevel := float64(nFeatures) * (1 - factor) / (1 - math.Pow(factor, float64(nLevels)))
	budgets := make([]int, nLevels)
	sum := 0
	for level := 0; level < nLevels-1; level++ {
		budgets[level] = int(math.Round(perLevel))
		sum += budgets[level]
		perLevel *= factor
	}
	if rest := nFeatures - sum; rest > 0 {
		budgets[nLevels-1] = rest
	}
	return budgets
}

// RescaleKeypoints maps keypoints from a pyramid level back to full resolution coordinates.
func RescaleKeypoints(kps KeyPoints, scale float64) KeyPoints {
	rescaled := make(KeyPoints, len(kps))
	for i, kp := range kps {
		rescaled[i] = image.Point{
			X: int(math.Round(float64(kp.X) * scale)),
			Y: int(math.Round(float64(kp.Y) * scale)),
		}
	}
	return rescaled
}
