package keyframes

import (
	"context"
	"errors"
	"image"
	"testing"

	"go.viam.com/test"

	"go.viam.com/keyframes/logging"
	"go.viam.com/keyframes/vision/keypoints"
)

func TestModeFromLevel(t *testing.T) {
	m, err := ModeFromLevel(1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m, test.ShouldEqual, ModeWhole)
	m, err = ModeFromLevel(2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m, test.ShouldEqual, ModeQuadrant)
	_, err = ModeFromLevel(3)
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, Mode("halves").Validate(), test.ShouldNotBeNil)
	test.That(t, ModeQuadrant.Validate(), test.ShouldBeNil)
}

func TestWholeScore(t *testing.T) {
	test.That(t, WholeScore(0, 0), test.ShouldEqual, 0)
	test.That(t, WholeScore(5, 0), test.ShouldEqual, 0)
	test.That(t, WholeScore(30, 40), test.ShouldEqual, 0.75)
	test.That(t, WholeScore(40, 40), test.ShouldEqual, 1)
}

func TestQuadrantScore(t *testing.T) {
	test.That(t, QuadrantScore([4]RegionCounts{}), test.ShouldEqual, 0)

	counts := [4]RegionCounts{{3, 10}, {7, 20}, {0, 5}, {11, 13}}
	// 4 * 21 / 48^2
	expected := 4 * float64(21) / float64(48*48)
	test.That(t, QuadrantScore(counts), test.ShouldEqual, expected)

	// the normalization is by the square of the keypoint total, so proportionally equal matches
	// score lower with more keypoints.
	small := QuadrantScore([4]RegionCounts{{1, 2}, {1, 2}, {1, 2}, {1, 2}})
	large := QuadrantScore([4]RegionCounts{{10, 20}, {10, 20}, {10, 20}, {10, 20}})
	// 4 * 4 / 8^2 and 4 * 40 / 80^2
	test.That(t, small, test.ShouldEqual, 0.25)
	test.That(t, large, test.ShouldEqual, 0.025)
	test.That(t, large, test.ShouldBeLessThan, small)
}

func TestQuadrants(t *testing.T) {
	q := Quadrants(7, 5)
	test.That(t, q[0], test.ShouldResemble, image.Rect(0, 0, 3, 2))
	test.That(t, q[1], test.ShouldResemble, image.Rect(3, 2, 7, 5))
	test.That(t, q[2], test.ShouldResemble, image.Rect(0, 2, 3, 5))
	test.That(t, q[3], test.ShouldResemble, image.Rect(3, 0, 7, 2))

	area := 0
	for i, a := range q {
		area += a.Dx() * a.Dy()
		for j := i + 1; j < len(q); j++ {
			test.That(t, a.Overlaps(q[j]), test.ShouldBeFalse)
		}
	}
	test.That(t, area, test.ShouldEqual, 35)

	q = Quadrants(1, 1)
	test.That(t, q[0].Empty(), test.ShouldBeTrue)
	test.That(t, q[1], test.ShouldResemble, image.Rect(0, 0, 1, 1))
}

func TestOverlapScorerWhole(t *testing.T) {
	logger := logging.NewTestLogger(t)
	scorer, err := NewOverlapScorer(ModeWhole, countingExtractor{}, pairwiseMatcher{}, false, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, scorer.Mode(), test.ShouldEqual, ModeWhole)

	score, err := scorer.Score(context.Background(), uniformImage(40, 30, 20), uniformImage(40, 30, 15))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, score, test.ShouldEqual, 0.75)

	t.Run("anchor without keypoints", func(t *testing.T) {
		score, err := scorer.Score(context.Background(), uniformImage(40, 30, 0), uniformImage(40, 30, 15))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, score, test.ShouldEqual, 0)
	})

	t.Run("size mismatch", func(t *testing.T) {
		_, err := scorer.Score(context.Background(), uniformImage(40, 30, 20), uniformImage(41, 30, 20))
		test.That(t, errors.Is(err, ErrFrameSize), test.ShouldBeTrue)
	})

	t.Run("extractor failure", func(t *testing.T) {
		failing, err := NewOverlapScorer(ModeWhole, failingExtractor{}, pairwiseMatcher{}, false, logger)
		test.That(t, err, test.ShouldBeNil)
		_, err = failing.Score(context.Background(), uniformImage(4, 4, 1), uniformImage(4, 4, 1))
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "extractor failure")
	})
}

func TestOverlapScorerQuadrant(t *testing.T) {
	logger := logging.NewTestLogger(t)
	anchor := quadrantImage(41, 31, [4]uint8{10, 20, 5, 13})
	candidate := quadrantImage(41, 31, [4]uint8{3, 7, 0, 11})
	expected := QuadrantScore([4]RegionCounts{{3, 10}, {7, 20}, {0, 5}, {11, 13}})

	for _, parallel := range []bool{false, true} {
		scorer, err := NewOverlapScorer(ModeQuadrant, countingExtractor{}, pairwiseMatcher{}, parallel, logger)
		test.That(t, err, test.ShouldBeNil)
		ev, err := scorer.Evaluate(context.Background(), anchor, candidate)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ev.Score, test.ShouldEqual, expected)
		test.That(t, ev.Regions, test.ShouldResemble, []RegionCounts{{3, 10}, {7, 20}, {0, 5}, {11, 13}})
		test.That(t, len(ev.Correspondences), test.ShouldEqual, 21)
	}

	t.Run("correspondences in frame coordinates", func(t *testing.T) {
		scorer, err := NewOverlapScorer(ModeQuadrant, countingExtractor{}, pairwiseMatcher{}, false, logger)
		test.That(t, err, test.ShouldBeNil)
		ev, err := scorer.Evaluate(context.Background(), anchor, candidate)
		test.That(t, err, test.ShouldBeNil)
		quads := Quadrants(41, 31)
		// the bottom-right quadrant matches come after the 3 top-left ones
		test.That(t, ev.Correspondences[3].Anchor, test.ShouldResemble, quads[1].Min)
	})

	t.Run("no keypoints anywhere", func(t *testing.T) {
		scorer, err := NewOverlapScorer(ModeQuadrant, countingExtractor{}, pairwiseMatcher{}, true, logger)
		test.That(t, err, test.ShouldBeNil)
		score, err := scorer.Score(context.Background(), uniformImage(10, 10, 0), uniformImage(10, 10, 0))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, score, test.ShouldEqual, 0)
	})

	t.Run("parallel failure", func(t *testing.T) {
		scorer, err := NewOverlapScorer(ModeQuadrant, failingExtractor{}, pairwiseMatcher{}, true, logger)
		test.That(t, err, test.ShouldBeNil)
		_, err = scorer.Score(context.Background(), uniformImage(10, 10, 1), uniformImage(10, 10, 1))
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("canceled", func(t *testing.T) {
		scorer, err := NewOverlapScorer(ModeQuadrant, countingExtractor{}, pairwiseMatcher{}, false, logger)
		test.That(t, err, test.ShouldBeNil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = scorer.Score(ctx, anchor, candidate)
		test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
	})
}

func TestNewOverlapScorerErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	_, err := NewOverlapScorer("thirds", countingExtractor{}, pairwiseMatcher{}, false, logger)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewOverlapScorer(ModeWhole, nil, pairwiseMatcher{}, false, logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestOverlapScorerORB(t *testing.T) {
	logger := logging.NewTestLogger(t)
	extractor, err := keypoints.NewORBExtractor(nil)
	test.That(t, err, test.ShouldBeNil)
	matcher := keypoints.NewBruteForceMatcher(nil)

	img := texturedImage(320, 240, 1)
	whole, err := NewOverlapScorer(ModeWhole, extractor, matcher, false, logger)
	test.That(t, err, test.ShouldBeNil)

	same, err := whole.Score(context.Background(), img, img)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, same, test.ShouldBeGreaterThan, 0.5)
	test.That(t, same, test.ShouldBeLessThanOrEqualTo, 1)

	moved, err := whole.Score(context.Background(), img, shifted(img, 40))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, moved, test.ShouldBeLessThan, same)

	blank, err := whole.Score(context.Background(), uniformImage(320, 240, 90), img)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, blank, test.ShouldEqual, 0)

	seq, err := NewOverlapScorer(ModeQuadrant, extractor, matcher, false, logger)
	test.That(t, err, test.ShouldBeNil)
	par, err := NewOverlapScorer(ModeQuadrant, extractor, matcher, true, logger)
	test.That(t, err, test.ShouldBeNil)
	s1, err := seq.Score(context.Background(), img, shifted(img, 10))
	test.That(t, err, test.ShouldBeNil)
	s2, err := par.Score(context.Background(), img, shifted(img, 10))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s1, test.ShouldEqual, s2)
	test.That(t, s1, test.ShouldBeGreaterThanOrEqualTo, 0)
}
