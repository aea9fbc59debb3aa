// Package keyframes selects, from a dense sequence of RGB-D frames, the ordered subset of
// keyframes that keeps enough shared visual content between consecutive keyframes, and prunes the
// other frames from the capture.
package keyframes

import (
	"context"
	"image"

	"github.com/pkg/errors"

	"go.viam.com/keyframes/logging"
	"go.viam.com/keyframes/rimage"
	"go.viam.com/keyframes/utils"
	"go.viam.com/keyframes/vision/keypoints"
)

// Mode selects how an anchor and a candidate frame are compared.
type Mode string

// Scoring modes.
const (
	ModeWhole    Mode = "whole"
	ModeQuadrant Mode = "quadrant"
)

// ModeFromLevel maps the numeric level of the capture tooling (1 whole, 2 quadrant) to a Mode.
func ModeFromLevel(level int) (Mode, error) {
	switch level {
	case 1:
		return ModeWhole, nil
	case 2:
		return ModeQuadrant, nil
	default:
		return "", errors.Errorf("unknown level %d, expected 1 (whole) or 2 (quadrant)", level)
	}
}

// Validate checks that the mode is known.
func (m Mode) Validate() error {
	switch m {
	case ModeWhole, ModeQuadrant:
		return nil
	default:
		return errors.Errorf("unknown mode %q, expected %q or %q", m, ModeWhole, ModeQuadrant)
	}
}

// RegionCounts holds the cross-checked match count and the anchor keypoint count of one region.
type RegionCounts struct {
	Matches   int `json:"matches"`
	Keypoints int `json:"keypoints"`
}

// WholeScore is the fraction of anchor keypoints that found a match. It is 0 when the anchor has
// no keypoints.
func WholeScore(matches, anchorKeypoints int) float64 {
	if anchorKeypoints == 0 {
		return 0
	}
	return float64(matches) / float64(anchorKeypoints)
}

// QuadrantScore aggregates the four quadrant counts as 4*Σm/(Σk)^2. It is 0 when no quadrant
// has an anchor keypoint.
func QuadrantScore(counts [4]RegionCounts) float64 {
	var sumM, sumK int
	for _, c := range counts {
		sumM += c.Matches
		sumK += c.Keypoints
	}
	if sumK == 0 {
		return 0
	}
	k := float64(sumK)
	return 4 * float64(sumM) / (k * k)
}

// Quadrants splits a width x height image at the floor of its half width and half height, in the
// order top-left, bottom-right, bottom-left, top-right. An odd remainder row or column belongs to
// the bottom or right quadrants.
func Quadrants(width, height int) [4]image.Rectangle {
	hw, hh := width/2, height/2
	return [4]image.Rectangle{
		image.Rect(0, 0, hw, hh),
		image.Rect(hw, hh, width, height),
		image.Rect(0, hh, hw, height),
		image.Rect(hw, 0, width, hh),
	}
}

// Correspondence is a cross-checked match expressed in full frame coordinates.
type Correspondence struct {
	Anchor    image.Point
	Candidate image.Point
	Distance  int
}

// Evaluation is the detailed outcome of comparing an anchor with a candidate frame.
type Evaluation struct {
	Score float64
	// Regions has one entry in whole mode and four, in Quadrants order, in quadrant mode.
	Regions         []RegionCounts
	Correspondences []Correspondence
}

// OverlapScorer turns an anchor/candidate frame pair into an overlap score.
type OverlapScorer struct {
	mode      Mode
	extractor keypoints.FeatureExtractor
	matcher   keypoints.Matcher
	parallel  bool
	logger    logging.Logger
}

// NewOverlapScorer returns a scorer. With parallel set, the quadrants of a pair are evaluated
// concurrently, which requires extractor and matcher to be safe for concurrent use.
func NewOverlapScorer(
	mode Mode,
	extractor keypoints.FeatureExtractor,
	matcher keypoints.Matcher,
	parallel bool,
	logger logging.Logger,
) (*OverlapScorer, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	if extractor == nil || matcher == nil {
		return nil, errors.New("scorer needs a feature extractor and a matcher")
	}
	return &OverlapScorer{mode: mode, extractor: extractor, matcher: matcher, parallel: parallel, logger: logger}, nil
}

// Mode returns the scoring mode.
func (s *OverlapScorer) Mode() Mode {
	return s.mode
}

// Score returns the overlap score of candidate relative to anchor.
func (s *OverlapScorer) Score(ctx context.Context, anchor, candidate *image.Gray) (float64, error) {
	ev, err := s.Evaluate(ctx, anchor, candidate)
	if err != nil {
		return 0, err
	}
	return ev.Score, nil
}

// Evaluate compares anchor and candidate and returns the score with the counts and the
// correspondences it was computed from.
func (s *OverlapScorer) Evaluate(ctx context.Context, anchor, candidate *image.Gray) (*Evaluation, error) {
	if !rimage.SameImgSize(anchor, candidate) {
		return nil, errors.Wrapf(ErrFrameSize, "anchor is %v, candidate is %v", anchor.Bounds().Size(), candidate.Bounds().Size())
	}
	anchor, candidate = rimage.MakeGray(anchor), rimage.MakeGray(candidate)

	if s.mode == ModeWhole {
		counts, corr, err := s.matchRegion(anchor, candidate, image.Point{})
		if err != nil {
			return nil, err
		}
		score := WholeScore(counts.Matches, counts.Keypoints)
		s.logger.Debugw("whole score", "matches", counts.Matches, "keypoints", counts.Keypoints, "score", score)
		return &Evaluation{Score: score, Regions: []RegionCounts{counts}, Correspondences: corr}, nil
	}

	b := anchor.Bounds()
	quads := Quadrants(b.Dx(), b.Dy())
	type regionResult struct {
		counts RegionCounts
		corr   []Correspondence
	}
	fs := make([]func(ctx context.Context) (regionResult, error), 0, len(quads))
	for _, q := range quads {
		fs = append(fs, func(ctx context.Context) (regionResult, error) {
			if err := ctx.Err(); err != nil {
				return regionResult{}, err
			}
			a, err := rimage.CropGray(anchor, q)
			if err != nil {
				return regionResult{}, err
			}
			c, err := rimage.CropGray(candidate, q)
			if err != nil {
				return regionResult{}, err
			}
			counts, corr, err := s.matchRegion(a, c, q.Min)
			return regionResult{counts, corr}, err
		})
	}

	var results []regionResult
	if s.parallel {
		var err error
		if _, results, err = utils.GetInParallel(ctx, fs); err != nil {
			return nil, err
		}
	} else {
		results = make([]regionResult, 0, len(fs))
		for _, f := range fs {
			r, err := f(ctx)
			if err != nil {
				return nil, err
			}
			results = append(results, r)
		}
	}

	var counts [4]RegionCounts
	ev := &Evaluation{Regions: make([]RegionCounts, 0, len(results))}
	for i, r := range results {
		counts[i] = r.counts
		ev.Regions = append(ev.Regions, r.counts)
		ev.Correspondences = append(ev.Correspondences, r.corr...)
	}
	ev.Score = QuadrantScore(counts)
	s.logger.Debugw("quadrant score", "regions", ev.Regions, "score", ev.Score)
	return ev, nil
}

// matchRegion extracts and matches the features of one region pair. Correspondences are shifted
// by offset back to frame coordinates.
func (s *OverlapScorer) matchRegion(anchor, candidate *image.Gray, offset image.Point) (RegionCounts, []Correspondence, error) {
	kpsA, descA, err := s.extractor.Extract(anchor)
	if err != nil {
		return RegionCounts{}, nil, errors.Wrap(err, "cannot extract anchor features")
	}
	kpsC, descC, err := s.extractor.Extract(candidate)
	if err != nil {
		return RegionCounts{}, nil, errors.Wrap(err, "cannot extract candidate features")
	}
	matches := s.matcher.Match(descA, descC)
	matchedA, matchedC, err := keypoints.GetMatchingKeyPoints(matches, kpsA, kpsC)
	if err != nil {
		return RegionCounts{}, nil, err
	}
	corr := make([]Correspondence, len(matches))
	for i, m := range matches {
		corr[i] = Correspondence{
			Anchor:    matchedA[i].Add(offset),
			Candidate: matchedC[i].Add(offset),
			Distance:  m.Distance,
		}
	}
	return RegionCounts{Matches: len(matches), Keypoints: len(kpsA)}, corr, nil
}
