package keypoints

import (
	"image"

	"go.viam.com/keyframes/vision/keypoints/descriptors"
)

// FeatureExtractor detects keypoints in a grayscale image and describes each with a binary
// descriptor. The i-th descriptor describes the i-th keypoint. A region without texture yields
// no keypoints and no error.
type FeatureExtractor interface {
	Extract(img *image.Gray) (KeyPoints, descriptors.Descriptors, error)
}

// ORBExtractor is the pure Go ORB FeatureExtractor.
type ORBExtractor struct {
	cfg *ORBConfig
}

// NewORBExtractor validates cfg and returns an extractor using it. A nil cfg selects
// DefaultORBConfig.
func NewORBExtractor(cfg *ORBConfig) (*ORBExtractor, error) {
	if cfg == nil {
		cfg = DefaultORBConfig()
	}
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	return &ORBExtractor{cfg: cfg}, nil
}

// Config returns the detector configuration.
func (e *ORBExtractor) Config() ORBConfig {
	return *e.cfg
}

// Extract implements FeatureExtractor.
func (e *ORBExtractor) Extract(img *image.Gray) (KeyPoints, descriptors.Descriptors, error) {
	descs, kps, err := ComputeORBKeypoints(img, e.cfg)
	if err != nil {
		return nil, nil, err
	}
	return kps, descs, nil
}
