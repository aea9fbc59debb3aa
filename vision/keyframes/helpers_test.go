package keyframes

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"math/rand/v2"
	"path"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"gopkg.in/src-d/go-billy.v4"
	"gopkg.in/src-d/go-billy.v4/memfs"

	"go.viam.com/keyframes/framestore"
	"go.viam.com/keyframes/logging"
	"go.viam.com/keyframes/rimage"
	"go.viam.com/keyframes/vision/keypoints"
	"go.viam.com/keyframes/vision/keypoints/descriptors"
)

// tableScorer is a PairScorer answering from a fixed table of scores.
type tableScorer struct {
	scores map[[2]int]float64
	calls  [][2]int
	// cancel, when set, is called after the given number of calls.
	cancel      context.CancelFunc
	cancelAfter int
}

func (ts *tableScorer) Score(ctx context.Context, anchor, candidate int) (float64, error) {
	ts.calls = append(ts.calls, [2]int{anchor, candidate})
	if ts.cancel != nil && len(ts.calls) == ts.cancelAfter {
		ts.cancel()
	}
	s, ok := ts.scores[[2]int{anchor, candidate}]
	if !ok {
		return 0, errors.Errorf("unexpected comparison %d -> %d", anchor, candidate)
	}
	return s, nil
}

// constantScorer scores every pair the same.
type constantScorer float64

func (cs constantScorer) Score(ctx context.Context, anchor, candidate int) (float64, error) {
	return float64(cs), nil
}

// countingExtractor returns as many keypoints as the value of the top-left pixel, each with a
// distinct descriptor.
type countingExtractor struct{}

func (countingExtractor) Extract(img *image.Gray) (keypoints.KeyPoints, descriptors.Descriptors, error) {
	if img.Bounds().Empty() {
		return nil, nil, nil
	}
	n := int(img.GrayAt(img.Bounds().Min.X, img.Bounds().Min.Y).Y)
	kps := make(keypoints.KeyPoints, n)
	descs := make(descriptors.Descriptors, n)
	for i := 0; i < n; i++ {
		kps[i] = image.Point{i % img.Bounds().Dx(), 0}
		descs[i] = descriptors.Descriptor{uint64(i)}
	}
	return kps, descs, nil
}

// pairwiseMatcher matches the i-th descriptors of both sets.
type pairwiseMatcher struct{}

func (pairwiseMatcher) Match(desc1, desc2 descriptors.Descriptors) []keypoints.DescriptorMatch {
	n := min(len(desc1), len(desc2))
	matches := make([]keypoints.DescriptorMatch, n)
	for i := range matches {
		matches[i] = keypoints.DescriptorMatch{Idx1: i, Idx2: i}
	}
	return matches
}

type failingExtractor struct{}

func (failingExtractor) Extract(img *image.Gray) (keypoints.KeyPoints, descriptors.Descriptors, error) {
	return nil, nil, errors.New("extractor failure")
}

// quadrantImage paints the quadrants of a w x h image with the given values, in Quadrants order.
func quadrantImage(w, h int, values [4]uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i, q := range Quadrants(w, h) {
		draw.Draw(img, q, &image.Uniform{color.Gray{values[i]}}, image.Point{}, draw.Src)
	}
	return img
}

func uniformImage(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.Gray{v}}, image.Point{}, draw.Src)
	return img
}

// texturedImage paints random overlapping rectangles of random gray levels.
func texturedImage(w, h int, seed uint64) *image.Gray {
	rng := rand.New(rand.NewPCG(seed, 7))
	img := uniformImage(w, h, 128)
	for i := 0; i < 150; i++ {
		x0, y0 := rng.IntN(w), rng.IntN(h)
		rw, rh := 6+rng.IntN(30), 6+rng.IntN(30)
		level := color.Gray{uint8(rng.IntN(256))}
		draw.Draw(img, image.Rect(x0, y0, x0+rw, y0+rh), &image.Uniform{level}, image.Point{}, draw.Src)
	}
	return img
}

// shifted returns img moved dx pixels to the left, padding the right side with gray.
func shifted(img *image.Gray, dx int) *image.Gray {
	out := uniformImage(img.Bounds().Dx(), img.Bounds().Dy(), 128)
	draw.Draw(out, out.Bounds(), img, image.Point{dx, 0}, draw.Src)
	return out
}

func writeImage(t *testing.T, fs billy.Filesystem, name string, img image.Image) {
	t.Helper()
	f, err := fs.Create(name)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rimage.EncodeImage(f, img, name), test.ShouldBeNil)
	test.That(t, f.Close(), test.ShouldBeNil)
}

// newMemStore writes the frames as color and depth assets of an in-memory capture and opens it.
func newMemStore(t *testing.T, frames []image.Image) (*framestore.Store, billy.Filesystem) {
	t.Helper()
	fs := memfs.New()
	test.That(t, fs.MkdirAll(framestore.ColorDir, 0o755), test.ShouldBeNil)
	test.That(t, fs.MkdirAll(framestore.DepthDir, 0o755), test.ShouldBeNil)
	for i, img := range frames {
		s := framestoreNames(i)
		writeImage(t, fs, s[0], img)
		writeImage(t, fs, s[1], img)
	}
	store, err := framestore.Open(fs, "png", logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return store, fs
}

func framestoreNames(i int) [2]string {
	name := strconv.Itoa(i) + ".png"
	return [2]string{path.Join(framestore.ColorDir, name), path.Join(framestore.DepthDir, name)}
}
