//go:build gocv

package keypoints

import (
	"image"
	"math"
	"sort"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"go.viam.com/keyframes/vision/keypoints/descriptors"
)

// orbDescriptorBytes is the row width of an OpenCV ORB descriptor matrix.
const orbDescriptorBytes = descriptorBits / 8

// GoCVExtractor is a FeatureExtractor backed by the OpenCV ORB implementation.
type GoCVExtractor struct {
	cfg *ORBConfig
}

// NewGoCVExtractor validates cfg and returns an OpenCV backed extractor. A nil cfg selects
// DefaultORBConfig.
func NewGoCVExtractor(cfg *ORBConfig) (*GoCVExtractor, error) {
	if cfg == nil {
		cfg = DefaultORBConfig()
	}
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	return &GoCVExtractor{cfg: cfg}, nil
}

func (e *GoCVExtractor) scoreType() gocv.ORBScoreType {
	if e.cfg.ScoreType == ScoreHarris {
		return gocv.ORBScoreTypeHarris
	}
	return gocv.ORBScoreTypeFAST
}

// Extract implements FeatureExtractor.
func (e *GoCVExtractor) Extract(img *image.Gray) (KeyPoints, descriptors.Descriptors, error) {
	mat, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		return nil, nil, errors.Wrap(err, "cannot convert image for OpenCV")
	}
	defer mat.Close()

	orb := gocv.NewORBWithParams(
		e.cfg.NFeatures, float32(e.cfg.ScaleFactor), e.cfg.NLevels, e.cfg.EdgeThreshold,
		e.cfg.FirstLevel, e.cfg.WTAK, e.scoreType(), e.cfg.PatchSize, e.cfg.FastThreshold,
	)
	defer orb.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	cvKps, cvDescs := orb.DetectAndCompute(mat, mask)
	defer cvDescs.Close()

	kps := make(KeyPoints, len(cvKps))
	descs := make(descriptors.Descriptors, len(cvKps))
	for i, kp := range cvKps {
		kps[i] = image.Point{int(math.Round(kp.X)), int(math.Round(kp.Y))}
		desc := descriptors.NewDescriptor(descriptorBits)
		for b := 0; b < orbDescriptorBytes; b++ {
			desc[b/8] |= uint64(cvDescs.GetUCharAt(i, b)) << (8 * (b % 8))
		}
		descs[i] = desc
	}
	return kps, descs, nil
}

// GoCVMatcher is a Matcher backed by the OpenCV brute force Hamming matcher with cross check.
type GoCVMatcher struct{}

func toMat(descs descriptors.Descriptors) gocv.Mat {
	mat := gocv.NewMatWithSize(len(descs), orbDescriptorBytes, gocv.MatTypeCV8U)
	for i, desc := range descs {
		for b := 0; b < orbDescriptorBytes; b++ {
			mat.SetUCharAt(i, b, uint8(desc[b/8]>>(8*(b%8))))
		}
	}
	return mat
}

// Match implements Matcher.
func (GoCVMatcher) Match(desc1, desc2 descriptors.Descriptors) []DescriptorMatch {
	if len(desc1) == 0 || len(desc2) == 0 {
		return []DescriptorMatch{}
	}
	query := toMat(desc1)
	defer query.Close()
	train := toMat(desc2)
	defer train.Close()

	bf := gocv.NewBFMatcherWithParams(gocv.NormHamming, true)
	defer bf.Close()

	cvMatches := bf.Match(query, train)
	matches := make([]DescriptorMatch, len(cvMatches))
	for i, m := range cvMatches {
		matches[i] = DescriptorMatch{Idx1: m.QueryIdx, Idx2: m.TrainIdx, Distance: int(m.Distance)}
	}
	sort.SliceStable(matches, func(a, b int) bool {
		if matches[a].Distance != matches[b].Distance {
			return matches[a].Distance < matches[b].Distance
		}
		return matches[a].Idx1 < matches[b].Idx1
	})
	return matches
}
