// Package keypoints contains the implementation of keypoints in an image and their binary
// descriptors. For now:
// - FAST keypoints, optionally re-ranked with the Harris measure
// - steered BRIEF descriptors
// - ORB (pyramid + FAST + orientation + BRIEF)
// - brute force Hamming matching with cross check
package keypoints

import (
	"image"
	"math"

	"go.viam.com/keyframes/utils"
)

type (
	// KeyPoint is an image.Point that contains coordinates of a kp.
	KeyPoint image.Point // keypoint type
	// KeyPoints is a slice of image.Point that contains several kps.
	KeyPoints []image.Point // set of keypoints type
)

// OrientedKeypoints contains keypoints and their corresponding orientations.
type OrientedKeypoints struct {
	Points       KeyPoints
	Orientations []float64
}

// circularPatchExtents returns, for each row offset v in [0, radius], the largest column offset
// inside a discrete circle of the given radius. The table is symmetric about the diagonal.
func circularPatchExtents(radius int) []int {
	if radius < 1 {
		return []int{0}
	}
	umax := make([]int, radius+2)
	r := float64(radius)
	vmax := int(math.Floor(r*math.Sqrt2/2 + 1))
	vmin := int(math.Ceil(r * math.Sqrt2 / 2))
	for v := 0; v <= vmax && v <= radius; v++ {
		umax[v] = int(math.Round(math.Sqrt(r*r - float64(v*v))))
	}
	for v, v0 := radius, 0; v >= vmin; v-- {
		for umax[v0] == umax[v0+1] {
			v0++
		}
		umax[v] = v0
		v0++
	}
	return umax[:radius+1]
}

// computeKeypointsOrientations returns the intensity centroid angle of a circular patch of the
// given radius around every keypoint.
func computeKeypointsOrientations(img *image.Gray, kps KeyPoints, radius int) []float64 {
	umax := circularPatchExtents(radius)
	orientations := make([]float64, len(kps))
	for i, kp := range kps {
		m01, m10 := 0, 0
		for v := -radius; v <= radius; v++ {
			span := umax[utils.AbsInt(v)]
			rowSum := 0
			for u := -span; u <= span; u++ {
				pixVal := int(grayAtClamped(img, kp.X+u, kp.Y+v))
				m10 += u * pixVal
				rowSum += pixVal
			}
			m01 += v * rowSum
		}
		orientations[i] = math.Atan2(float64(m01), float64(m10))
	}
	return orientations
}

// GetOrientedKeyPointsFromKeyPoints computes the orientation of keypoints in the corresponding image
// and return kps and corresponding orientations in a OrientedKeypoints struct.
func GetOrientedKeyPointsFromKeyPoints(img *image.Gray, kps KeyPoints, patchSize int) *OrientedKeypoints {
	return &OrientedKeypoints{
		kps,
		computeKeypointsOrientations(img, kps, patchSize/2),
	}
}
