package keyframes

import "github.com/pkg/errors"

var (
	// ErrEmptyStore is returned when selection runs over a store without frames.
	ErrEmptyStore = errors.New("frame store is empty")
	// ErrFrameSize is returned when an anchor and a candidate frame differ in size.
	ErrFrameSize = errors.New("frames have different sizes")
	// ErrInvalidKeyframes is returned when a keyframe list breaks the ordering invariants.
	ErrInvalidKeyframes = errors.New("invalid keyframe set")
	// ErrPruneConsistency is returned when a frame to prune has only one of its color and depth
	// assets. Nothing is removed when it is returned.
	ErrPruneConsistency = errors.New("color and depth assets are inconsistent")
	// ErrPruneIO is returned when removing a frame asset fails.
	ErrPruneIO = errors.New("cannot remove frame asset")
)
