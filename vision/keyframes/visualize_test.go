package keyframes

import (
	"context"
	"image"
	"path"
	"testing"

	"go.viam.com/test"
	"gopkg.in/src-d/go-billy.v4/memfs"

	"go.viam.com/keyframes/framestore"
	"go.viam.com/keyframes/logging"
	"go.viam.com/keyframes/rimage"
	"go.viam.com/keyframes/vision/keypoints"
)

func TestVisualizer(t *testing.T) {
	logger := logging.NewTestLogger(t)
	base := texturedImage(200, 150, 11)
	store, _ := newMemStore(t, []image.Image{base, shifted(base, 8), shifted(base, 30)})

	extractor, err := keypoints.NewORBExtractor(nil)
	test.That(t, err, test.ShouldBeNil)
	out := memfs.New()

	for _, mode := range []Mode{ModeWhole, ModeQuadrant} {
		scorer, err := NewOverlapScorer(mode, extractor, keypoints.NewBruteForceMatcher(nil), false, logger)
		test.That(t, err, test.ShouldBeNil)
		dir := path.Join("viz", string(mode))
		v := NewVisualizer(store, scorer, out, dir, logger)

		img, err := v.Draw(context.Background(), 0, 1)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, img.Bounds().Dx(), test.ShouldEqual, 400)
		test.That(t, img.Bounds().Dy(), test.ShouldEqual, 150)

		written, err := v.WriteAll(context.Background(), []int{0, 1, 2})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, written, test.ShouldResemble, []string{
			path.Join(dir, PairName(0, 1)),
			path.Join(dir, PairName(1, 2)),
		})
		for _, name := range written {
			f, err := out.Open(name)
			test.That(t, err, test.ShouldBeNil)
			decoded, err := rimage.DecodeImage(f)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, f.Close(), test.ShouldBeNil)
			test.That(t, decoded.Bounds().Dx(), test.ShouldEqual, 400)
		}
	}

	// nothing is written into the frame collections
	infos, err := store.Filesystem().ReadDir(framestore.ColorDir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(infos), test.ShouldEqual, 3)

	t.Run("single keyframe", func(t *testing.T) {
		scorer, err := NewOverlapScorer(ModeWhole, extractor, keypoints.NewBruteForceMatcher(nil), false, logger)
		test.That(t, err, test.ShouldBeNil)
		written, err := NewVisualizer(store, scorer, out, "viz/single", logger).WriteAll(context.Background(), []int{0})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, written, test.ShouldBeEmpty)
	})

	t.Run("missing frame", func(t *testing.T) {
		scorer, err := NewOverlapScorer(ModeWhole, extractor, keypoints.NewBruteForceMatcher(nil), false, logger)
		test.That(t, err, test.ShouldBeNil)
		_, err = NewVisualizer(store, scorer, out, "viz/missing", logger).Draw(context.Background(), 0, 7)
		test.That(t, err, test.ShouldNotBeNil)
	})
}
