package keypoints

import (
	"image"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"go.viam.com/keyframes/rimage"
	"go.viam.com/keyframes/vision/keypoints/descriptors"
)

// briefSeed fixes the sampling pattern so that descriptors are comparable across runs and frames.
const briefSeed = 0x0b1ef

// SamplePairs are N pairs of points used to create the BRIEF Descriptors of a patch.
type SamplePairs struct {
	P0 []image.Point
	P1 []image.Point
	N  int
}

// GenerateSamplePairs draws n point pairs from an isotropic Gaussian of standard deviation
// patchSize/5 centered on the keypoint, clipped to the patch. The pattern only depends on n and
// patchSize.
func GenerateSamplePairs(n, patchSize int) *SamplePairs {
	rng := rand.New(rand.NewPCG(briefSeed, uint64(patchSize)))
	dist := distuv.Normal{Mu: 0, Sigma: float64(patchSize) / 5}
	half := float64(patchSize / 2)
	sample := func() int {
		u := rng.Float64()
		for u == 0 {
			u = rng.Float64()
		}
		v := math.Max(-half, math.Min(half, dist.Quantile(u)))
		return int(math.Round(v))
	}
	p0 := make([]image.Point, 0, n)
	p1 := make([]image.Point, 0, n)
	for i := 0; i < n; i++ {
		p0 = append(p0, image.Point{X: sample(), Y: sample()})
		p1 = append(p1, image.Point{X: sample(), Y: sample()})
	}

	return &SamplePairs{P0: p0, P1: p1, N: n}
}

// BRIEFConfig stores the parameters.
type BRIEFConfig struct {
	N              int  `json:"n"` // number of samples taken
	UseOrientation bool `json:"use_orientation"`
	PatchSize      int  `json:"patch_size"`
}

// SmoothForBRIEF blurs img with the 5x5 Gaussian used before sampling intensity pairs.
func SmoothForBRIEF(img *image.Gray) (*image.Gray, error) {
	kernel := rimage.GetGaussian5()
	return rimage.ConvolveGray(img, &kernel, kernel.Center(), rimage.BorderReflect)
}

// ComputeBRIEFDescriptors computes BRIEF descriptors on the already smoothed image at keypoints
// kps. Sample pairs are rotated by the keypoint orientation when cfg.UseOrientation is set.
func ComputeBRIEFDescriptors(blurred *image.Gray, sp *SamplePairs, kps *OrientedKeypoints, cfg *BRIEFConfig) descriptors.Descriptors {
	descs := make(descriptors.Descriptors, len(kps.Points))
	for k, kp := range kps.Points {
		descriptor := descriptors.NewDescriptor(sp.N)
		cosTheta := 1.0
		sinTheta := 0.0
		// if use orientation and keypoints are oriented, compute rotation matrix
		if cfg.UseOrientation && kps.Orientations != nil {
			angle := kps.Orientations[k]
			cosTheta = math.Cos(angle)
			sinTheta = math.Sin(angle)
		}
		for i := 0; i < sp.N; i++ {
			x0, y0 := float64(sp.P0[i].X), float64(sp.P0[i].Y)
			x1, y1 := float64(sp.P1[i].X), float64(sp.P1[i].Y)
			// compute rotated sampled coordinates (Identity matrix if no orientation)
			outx0 := int(math.Round(cosTheta*x0 - sinTheta*y0))
			outy0 := int(math.Round(sinTheta*x0 + cosTheta*y0))
			outx1 := int(math.Round(cosTheta*x1 - sinTheta*y1))
			outy1 := int(math.Round(sinTheta*x1 + cosTheta*y1))
			p0Val := grayAtClamped(blurred, kp.X+outx0, kp.Y+outy0)
			p1Val := grayAtClamped(blurred, kp.X+outx1, kp.Y+outy1)
			if p0Val < p1Val {
				descriptor.SetBit(i)
			}
		}
		descs[k] = descriptor
	}
	return descs
}
