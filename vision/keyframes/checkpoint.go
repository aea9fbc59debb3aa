package keyframes

import (
	"encoding/json"
	"io"
	"os"
	"path"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gopkg.in/src-d/go-billy.v4"
	"gopkg.in/src-d/go-billy.v4/util"

	"go.viam.com/keyframes/logging"
)

// Checkpoint is the persisted progress of a selection run. Anchor is always the last keyframe.
type Checkpoint struct {
	RunID       string       `json:"run_id,omitempty"`
	N           int          `json:"n"`
	Mode        Mode         `json:"mode"`
	Threshold   float64      `json:"threshold"`
	Detector    string       `json:"detector"`
	Keyframes   []int        `json:"keyframes"`
	Anchor      int          `json:"anchor"`
	Comparisons []Comparison `json:"comparisons,omitempty"`
}

// Checkpointer reads and writes the checkpoint of one selection configuration. A stored
// checkpoint is only resumed when its frame count, mode, threshold and detector settings match.
type Checkpointer struct {
	fs        billy.Filesystem
	path      string
	runID     string
	n         int
	mode      Mode
	threshold float64
	detector  string
	logger    logging.Logger
}

// NewCheckpointer returns a checkpointer writing to name on fs for a run of n frames under cfg.
func NewCheckpointer(
	fs billy.Filesystem, name, runID string, n int, cfg *Config, logger logging.Logger,
) (*Checkpointer, error) {
	detector, err := cfg.DetectorFingerprint()
	if err != nil {
		return nil, err
	}
	return &Checkpointer{
		fs:        fs,
		path:      name,
		runID:     runID,
		n:         n,
		mode:      cfg.Mode,
		threshold: cfg.Threshold,
		detector:  detector,
		logger:    logger,
	}, nil
}

// Load returns the stored checkpoint and whether it can be resumed. A missing file is not an
// error.
func (c *Checkpointer) Load() (*Checkpoint, bool, error) {
	f, err := c.fs.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "cannot open checkpoint %q", c.path)
	}
	defer utils.UncheckedErrorFunc(f.Close)
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, false, errors.Wrapf(err, "cannot read checkpoint %q", c.path)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, false, errors.Wrapf(err, "cannot parse checkpoint %q", c.path)
	}
	if cp.N != c.n || cp.Mode != c.mode || cp.Threshold != c.threshold || cp.Detector != c.detector {
		c.logger.Warnw("checkpoint does not match this run, starting over",
			"path", c.path,
			"n", cp.N, "mode", cp.Mode, "threshold", cp.Threshold,
			"detector_changed", cp.Detector != c.detector)
		return &cp, false, nil
	}
	return &cp, true, nil
}

// Save replaces the checkpoint with the given progress. The file is written next to its final
// name and renamed over it.
func (c *Checkpointer) Save(keyframes []int, comparisons []Comparison) error {
	if len(keyframes) == 0 {
		return errors.Wrap(ErrInvalidKeyframes, "cannot checkpoint an empty keyframe list")
	}
	cp := Checkpoint{
		RunID:       c.runID,
		N:           c.n,
		Mode:        c.mode,
		Threshold:   c.threshold,
		Detector:    c.detector,
		Keyframes:   keyframes,
		Anchor:      keyframes[len(keyframes)-1],
		Comparisons: comparisons,
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}
	if dir := path.Dir(c.path); dir != "." {
		if err := c.fs.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "cannot create checkpoint directory %q", dir)
		}
	}
	tmp := c.path + ".tmp"
	if err := util.WriteFile(c.fs, tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "cannot write checkpoint %q", tmp)
	}
	if err := c.fs.Rename(tmp, c.path); err != nil {
		return errors.Wrapf(err, "cannot move checkpoint into %q", c.path)
	}
	return nil
}

// Remove deletes the checkpoint. A missing file is not an error.
func (c *Checkpointer) Remove() error {
	if err := c.fs.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "cannot remove checkpoint %q", c.path)
	}
	return nil
}
