package keyframes

import (
	"context"
	"encoding/json"
	"path"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"gopkg.in/src-d/go-billy.v4"
	"gopkg.in/src-d/go-billy.v4/util"

	"go.viam.com/keyframes/logging"
)

// PrunePlan lists the frames to keep and the frames to remove. Keep and Remove partition 0..N-1.
type PrunePlan struct {
	RunID  string `json:"run_id,omitempty"`
	N      int    `json:"n"`
	Keep   []int  `json:"keep"`
	Remove []int  `json:"remove"`
}

// PlanPrune validates a complete keyframe set over n frames and returns the plan removing every
// other frame. It touches nothing.
func PlanPrune(keyframes []int, n int) (*PrunePlan, error) {
	if n <= 0 {
		return nil, ErrEmptyStore
	}
	if err := validateKeyframes(keyframes, n, true); err != nil {
		return nil, err
	}
	remove, _ := lo.Difference(lo.Range(n), keyframes)
	return &PrunePlan{
		N:      n,
		Keep:   append([]int(nil), keyframes...),
		Remove: remove,
	}, nil
}

// WritePlan writes the plan as JSON to name on fs.
func WritePlan(fs billy.Filesystem, name string, plan *PrunePlan) error {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	if dir := path.Dir(name); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "cannot create plan directory %q", dir)
		}
	}
	if err := util.WriteFile(fs, name, data, 0o644); err != nil {
		return errors.Wrapf(err, "cannot write prune plan %q", name)
	}
	return nil
}

// FrameRemover is the part of a frame store the pruner needs.
type FrameRemover interface {
	HasColor(i int) (bool, error)
	HasDepth(i int) (bool, error)
	RemoveColor(i int) error
	RemoveDepth(i int) error
}

// PruneResult reports what ApplyPrune did.
type PruneResult struct {
	// Removed are the frames whose color and depth assets were removed by this call.
	Removed []int
	// AlreadyAbsent are the planned frames that had neither asset left.
	AlreadyAbsent []int
	Kept          []int
}

// ApplyPrune removes the color and depth assets of every frame of plan.Remove. All planned frames
// are checked first: a frame with only one of its two assets fails with ErrPruneConsistency
// before anything is removed. Frames with no asset left count as already removed, so applying a
// plan again is harmless. Removal failures are reported as ErrPruneIO.
func ApplyPrune(ctx context.Context, frames FrameRemover, plan *PrunePlan, logger logging.Logger) (*PruneResult, error) {
	if plan == nil {
		return nil, errors.New("no prune plan")
	}
	if len(lo.Intersect(plan.Keep, plan.Remove)) != 0 {
		return nil, errors.Wrap(ErrInvalidKeyframes, "plan keeps and removes the same frame")
	}

	result := &PruneResult{Kept: append([]int(nil), plan.Keep...)}
	pending := make([]int, 0, len(plan.Remove))
	var inconsistent []string
	for _, i := range plan.Remove {
		hasColor, err := frames.HasColor(i)
		if err != nil {
			return nil, errors.Wrapf(ErrPruneIO, "frame %d: %v", i, err)
		}
		hasDepth, err := frames.HasDepth(i)
		if err != nil {
			return nil, errors.Wrapf(ErrPruneIO, "frame %d: %v", i, err)
		}
		switch {
		case hasColor && hasDepth:
			pending = append(pending, i)
		case !hasColor && !hasDepth:
			result.AlreadyAbsent = append(result.AlreadyAbsent, i)
		case hasColor:
			inconsistent = append(inconsistent, strconv.Itoa(i)+" (no depth)")
		default:
			inconsistent = append(inconsistent, strconv.Itoa(i)+" (no color)")
		}
	}
	if len(inconsistent) > 0 {
		return nil, errors.Wrapf(ErrPruneConsistency, "frames %s", strings.Join(inconsistent, ", "))
	}
	if len(result.AlreadyAbsent) > 0 {
		logger.Infow("frames already pruned", "count", len(result.AlreadyAbsent))
	}

	for _, i := range pending {
		if err := ctx.Err(); err != nil {
			return result, errors.Wrapf(err, "pruning interrupted after %d of %d frames", len(result.Removed), len(pending))
		}
		if err := multierr.Combine(frames.RemoveColor(i), frames.RemoveDepth(i)); err != nil {
			return result, errors.Wrapf(ErrPruneIO, "frame %d: %v", i, err)
		}
		result.Removed = append(result.Removed, i)
		logger.Debugw("pruned frame", "index", i)
	}
	return result, nil
}
