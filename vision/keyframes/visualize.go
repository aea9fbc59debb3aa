package keyframes

import (
	"context"
	"fmt"
	"image"
	"path"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/src-d/go-billy.v4"

	"go.viam.com/keyframes/framestore"
	"go.viam.com/keyframes/logging"
	"go.viam.com/keyframes/rimage"
)

// descriptorBits normalizes match distances for line colors.
const descriptorBits = 256

// Visualizer draws the correspondences between consecutive keyframes.
type Visualizer struct {
	store  *framestore.Store
	scorer *OverlapScorer
	out    billy.Filesystem
	dir    string
	logger logging.Logger
}

// NewVisualizer returns a visualizer writing png images under dir on out.
func NewVisualizer(store *framestore.Store, scorer *OverlapScorer, out billy.Filesystem, dir string, logger logging.Logger) *Visualizer {
	return &Visualizer{store: store, scorer: scorer, out: out, dir: dir, logger: logger}
}

// PairName is the file name of the correspondence image of keyframes a and b.
func PairName(a, b int) string {
	return fmt.Sprintf("%06d_%06d.png", a, b)
}

// Draw renders the correspondences of keyframes a and b side by side.
func (v *Visualizer) Draw(ctx context.Context, a, b int) (image.Image, error) {
	left, err := v.store.ReadColor(a)
	if err != nil {
		return nil, err
	}
	right, err := v.store.ReadColor(b)
	if err != nil {
		return nil, err
	}
	ev, err := v.scorer.Evaluate(ctx, rimage.MakeGray(left), rimage.MakeGray(right))
	if err != nil {
		return nil, errors.Wrapf(err, "keyframes %d and %d", a, b)
	}

	lines := make([]rimage.MatchLine, len(ev.Correspondences))
	for i, c := range ev.Correspondences {
		lines[i] = rimage.MatchLine{
			Left:     c.Anchor,
			Right:    c.Candidate,
			Distance: float64(c.Distance) / descriptorBits,
		}
	}
	var regions []image.Rectangle
	if v.scorer.Mode() == ModeQuadrant {
		bounds := left.Bounds()
		quads := Quadrants(bounds.Dx(), bounds.Dy())
		regions = quads[:]
	}
	caption := fmt.Sprintf("%d -> %d  score %.4f  matches %d", a, b, ev.Score, len(ev.Correspondences))
	return rimage.DrawMatches(left, right, lines, regions, caption), nil
}

// WriteAll draws every consecutive keyframe pair and returns the written file names.
func (v *Visualizer) WriteAll(ctx context.Context, keyframes []int) ([]string, error) {
	if err := v.out.MkdirAll(v.dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "cannot create %q", v.dir)
	}
	written := make([]string, 0, len(keyframes))
	for i := 1; i < len(keyframes); i++ {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		a, b := keyframes[i-1], keyframes[i]
		img, err := v.Draw(ctx, a, b)
		if err != nil {
			return written, err
		}
		name := path.Join(v.dir, PairName(a, b))
		if err := v.write(name, img); err != nil {
			return written, err
		}
		v.logger.Debugw("wrote correspondences", "file", name)
		written = append(written, name)
	}
	return written, nil
}

func (v *Visualizer) write(name string, img image.Image) (err error) {
	f, err := v.out.Create(name)
	if err != nil {
		return errors.Wrapf(err, "cannot create %q", name)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return rimage.EncodeImage(f, img, name)
}
