package keyframes

import (
	"context"
	"image"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/keyframes/framestore"
	"go.viam.com/keyframes/logging"
)

// State is a step of the selection state machine.
type State int

// Selection states. Scanning advances the candidate against a fixed anchor, Selected appends the
// candidate and makes it the new anchor, Done is terminal.
const (
	Scanning State = iota
	Selected
	Done
)

func (s State) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case Selected:
		return "selected"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// PairScorer scores the overlap of the candidate frame relative to the anchor frame.
type PairScorer interface {
	Score(ctx context.Context, anchor, candidate int) (float64, error)
}

// FrameScorer is the PairScorer reading frames from a store. The gray image of the current anchor
// is kept between comparisons.
type FrameScorer struct {
	store  *framestore.Store
	scorer *OverlapScorer

	anchorIdx int
	anchorImg *image.Gray
}

// NewFrameScorer returns a PairScorer over the frames of store.
func NewFrameScorer(store *framestore.Store, scorer *OverlapScorer) *FrameScorer {
	return &FrameScorer{store: store, scorer: scorer, anchorIdx: -1}
}

// Score implements PairScorer.
func (fs *FrameScorer) Score(ctx context.Context, anchor, candidate int) (float64, error) {
	if fs.anchorImg == nil || fs.anchorIdx != anchor {
		img, err := fs.store.ReadGray(anchor)
		if err != nil {
			return 0, err
		}
		fs.anchorIdx, fs.anchorImg = anchor, img
	}
	img, err := fs.store.ReadGray(candidate)
	if err != nil {
		return 0, err
	}
	score, err := fs.scorer.Score(ctx, fs.anchorImg, img)
	if err != nil {
		return 0, errors.Wrapf(err, "scoring frame %d against anchor %d", candidate, anchor)
	}
	return score, nil
}

// Comparison is one evaluated anchor/candidate pair.
type Comparison struct {
	Anchor    int     `json:"anchor"`
	Candidate int     `json:"candidate"`
	Score     float64 `json:"score"`
}

// Selection is the outcome of a selection run.
type Selection struct {
	N         int
	Threshold float64
	// Keyframes is strictly increasing, starts at 0 and ends at N-1.
	Keyframes []int
	// Comparisons lists every evaluated pair in evaluation order, including those of a resumed
	// checkpoint.
	Comparisons []Comparison
	Resumed     bool
	Elapsed     time.Duration
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithClock sets the clock used to time the run.
func WithClock(c clock.Clock) SelectorOption {
	return func(s *Selector) {
		s.clock = c
	}
}

// WithCheckpoint persists progress after every selected keyframe and resumes from a matching
// checkpoint.
func WithCheckpoint(cp *Checkpointer) SelectorOption {
	return func(s *Selector) {
		s.checkpoint = cp
	}
}

// Selector walks frames 0..N-1 with a fixed anchor and a moving candidate. The candidate advances
// while its score against the anchor stays above the threshold; the first candidate at or below
// the threshold, or the last frame, becomes the next keyframe and anchor.
type Selector struct {
	n          int
	threshold  float64
	scorer     PairScorer
	logger     logging.Logger
	clock      clock.Clock
	checkpoint *Checkpointer

	state       State
	anchor      int
	candidate   int
	keyframes   []int
	comparisons []Comparison
}

// NewSelector returns a selector over n frames.
func NewSelector(n int, threshold float64, scorer PairScorer, logger logging.Logger, opts ...SelectorOption) (*Selector, error) {
	if n <= 0 {
		return nil, ErrEmptyStore
	}
	if scorer == nil {
		return nil, errors.New("selector needs a pair scorer")
	}
	s := &Selector{
		n:         n,
		threshold: threshold,
		scorer:    scorer,
		logger:    logger,
		clock:     clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State returns the current state of the selector.
func (s *Selector) State() State {
	return s.state
}

func (s *Selector) reset() {
	s.keyframes = []int{0}
	s.comparisons = nil
	s.anchor = 0
	s.candidate = 1
	s.state = Scanning
	if s.n == 1 {
		s.state = Done
	}
}

// resume restores progress from the checkpoint, if any. It reports whether a checkpoint was used.
func (s *Selector) resume() (bool, error) {
	if s.checkpoint == nil {
		return false, nil
	}
	cp, ok, err := s.checkpoint.Load()
	if err != nil || !ok {
		return false, err
	}
	if err := validateKeyframes(cp.Keyframes, s.n, false); err != nil {
		s.logger.Warnw("ignoring checkpoint with invalid keyframes", "error", err)
		return false, nil
	}
	last := cp.Keyframes[len(cp.Keyframes)-1]
	if cp.Anchor != last {
		s.logger.Warnw("ignoring checkpoint whose anchor is not the last keyframe", "anchor", cp.Anchor, "last", last)
		return false, nil
	}
	s.keyframes = append([]int(nil), cp.Keyframes...)
	s.comparisons = append([]Comparison(nil), cp.Comparisons...)
	s.anchor = last
	s.candidate = last + 1
	s.state = Scanning
	if last == s.n-1 {
		s.state = Done
	}
	s.logger.Infow("resuming selection from checkpoint", "keyframes", len(s.keyframes), "anchor", s.anchor)
	return true, nil
}

// Run executes the selection to completion. The context is checked between comparisons; on
// cancellation the error is returned and no frame is touched.
func (s *Selector) Run(ctx context.Context) (*Selection, error) {
	start := s.clock.Now()
	s.reset()
	resumed, err := s.resume()
	if err != nil {
		return nil, err
	}

	verbose := logging.IsDebugMode(ctx)
	for s.state != Done {
		switch s.state {
		case Scanning:
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrapf(err, "selection interrupted at anchor %d, candidate %d", s.anchor, s.candidate)
			}
			score, err := s.scorer.Score(ctx, s.anchor, s.candidate)
			if err != nil {
				return nil, err
			}
			s.comparisons = append(s.comparisons, Comparison{Anchor: s.anchor, Candidate: s.candidate, Score: score})
			if verbose {
				s.logger.Infow("compared", "anchor", s.anchor, "candidate", s.candidate, "score", score)
			} else {
				s.logger.Debugw("compared", "anchor", s.anchor, "candidate", s.candidate, "score", score)
			}
			if score > s.threshold && s.candidate < s.n-1 {
				s.candidate++
				continue
			}
			s.state = Selected
		case Selected:
			s.keyframes = append(s.keyframes, s.candidate)
			s.anchor = s.candidate
			s.logger.Debugw("selected keyframe", "index", s.anchor, "count", len(s.keyframes))
			if s.checkpoint != nil {
				if err := s.checkpoint.Save(s.keyframes, s.comparisons); err != nil {
					return nil, err
				}
			}
			if s.anchor >= s.n-1 {
				s.state = Done
				continue
			}
			s.candidate = s.anchor + 1
			s.state = Scanning
		case Done:
		}
	}

	return &Selection{
		N:           s.n,
		Threshold:   s.threshold,
		Keyframes:   append([]int(nil), s.keyframes...),
		Comparisons: append([]Comparison(nil), s.comparisons...),
		Resumed:     resumed,
		Elapsed:     s.clock.Since(start),
	}, nil
}

// validateKeyframes checks that keyframes starts at 0, is strictly increasing and stays below n.
// With complete set, the last keyframe must also be n-1.
func validateKeyframes(keyframes []int, n int, complete bool) error {
	if len(keyframes) == 0 {
		return errors.Wrap(ErrInvalidKeyframes, "no keyframes")
	}
	if keyframes[0] != 0 {
		return errors.Wrapf(ErrInvalidKeyframes, "first keyframe is %d, not 0", keyframes[0])
	}
	for i, k := range keyframes {
		if k >= n {
			return errors.Wrapf(ErrInvalidKeyframes, "keyframe %d is out of range [0, %d)", k, n)
		}
		if i > 0 && k <= keyframes[i-1] {
			return errors.Wrapf(ErrInvalidKeyframes, "keyframe %d does not follow %d", k, keyframes[i-1])
		}
	}
	if complete && keyframes[len(keyframes)-1] != n-1 {
		return errors.Wrapf(ErrInvalidKeyframes, "last keyframe is %d, not %d", keyframes[len(keyframes)-1], n-1)
	}
	return nil
}
