package keyframes

import (
	"bytes"
	"encoding/json"
	"math"
	"path"
	"strings"

	"github.com/a8m/envsubst"
	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"
	"go.viam.com/utils"

	"go.viam.com/keyframes/framestore"
	"go.viam.com/keyframes/logging"
	"go.viam.com/keyframes/vision/keypoints"
)

// DefaultThreshold is the overlap score above which a candidate is considered redundant.
const DefaultThreshold = 0.75

// quadrantThresholdCeiling is where quadrant thresholds stop being reachable in practice: the
// score is normalized by the square of the keypoint total, so identical VGA frames score about 0.003.
const quadrantThresholdCeiling = 0.01

// Config contains the parameters of a keyframe selection run. Relative paths are resolved
// against the capture root.
type Config struct {
	Mode      Mode    `json:"mode" jsonschema:"enum=whole,enum=quadrant,default=whole"`
	Threshold float64 `json:"threshold" jsonschema:"default=0.75,description=Overlap score above which a frame is redundant. Quadrant scores are divided by the squared keypoint total and stay far below 0.01 on real frames so quadrant thresholds must be scaled down accordingly."`

	VisualizeCorrespondences bool   `json:"visualize_correspondences,omitempty"`
	VisualizeDir             string `json:"visualize_dir,omitempty"`
	ParallelQuadrants        bool   `json:"parallel_quadrants,omitempty"`
	FrameExt                 string `json:"frame_ext,omitempty" jsonschema:"default=png"`

	PlanPath       string `json:"plan_path,omitempty"`
	CheckpointPath string `json:"checkpoint_path,omitempty"`
	ReportPath     string `json:"report_path,omitempty"`
	ScorePlotPath  string `json:"score_plot_path,omitempty"`
	DryRun         bool   `json:"dry_run,omitempty"`

	ORB      *keypoints.ORBConfig      `json:"orb,omitempty"`
	Matching *keypoints.MatchingConfig `json:"matching,omitempty"`

	LogLevels []logging.LoggerPatternConfig `json:"log_levels,omitempty"`
}

// DefaultConfig returns the configuration of the capture tooling: whole image scoring with a 0.75
// threshold, png frames and the default ORB detector with cross-checked matching.
func DefaultConfig() *Config {
	return &Config{
		Mode:         ModeWhole,
		Threshold:    DefaultThreshold,
		VisualizeDir: "correspondences",
		FrameExt:     framestore.DefaultExt,
		PlanPath:     "keyframes.json",
		ORB:          keypoints.DefaultORBConfig(),
		Matching:     keypoints.DefaultMatchingConfig(),
	}
}

// LoadConfig reads a JSON or JSON5 configuration file, substituting environment variables. Fields
// absent from the file keep their default value.
func LoadConfig(filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config %q", filePath)
	}
	// JSON5 allows comments and trailing commas; the result is re-encoded so that unknown fields
	// are still rejected.
	var raw interface{}
	if err := json5.Unmarshal(buf, &raw); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config %q", filePath)
	}
	if buf, err = json.Marshal(raw); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config %q", filePath)
	}
	cfg := DefaultConfig()
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config %q", filePath)
	}
	if cfg.ORB == nil {
		cfg.ORB = keypoints.DefaultORBConfig()
	}
	if cfg.Matching == nil {
		cfg.Matching = keypoints.DefaultMatchingConfig()
	}
	if err := cfg.Validate(filePath, logger); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures all parts of the config are valid. Valid but suspicious settings are logged.
func (cfg *Config) Validate(path string, logger logging.Logger) error {
	if cfg.Mode == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "mode")
	}
	if err := cfg.Mode.Validate(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if math.IsNaN(cfg.Threshold) || math.IsInf(cfg.Threshold, 0) {
		return utils.NewConfigValidationError(path, errors.Errorf("threshold must be a finite number, got %v", cfg.Threshold))
	}
	if cfg.Mode == ModeQuadrant && cfg.Threshold >= quadrantThresholdCeiling {
		logger.Warnw("quadrant scores rarely reach this threshold, every frame will likely be kept",
			"path", path, "threshold", cfg.Threshold, "typical_ceiling", quadrantThresholdCeiling)
	}
	if cfg.VisualizeCorrespondences {
		if cfg.VisualizeDir == "" {
			return utils.NewConfigValidationFieldRequiredError(path, "visualize_dir")
		}
		if insideCollection(cfg.VisualizeDir) {
			return utils.NewConfigValidationError(path,
				errors.Errorf("visualize_dir %q must not be inside the color or depth collections", cfg.VisualizeDir))
		}
	}
	if cfg.ORB != nil {
		if err := cfg.ORB.Validate(path + ".orb"); err != nil {
			return err
		}
	}
	if cfg.Matching != nil && cfg.Matching.MaxDist < 0 {
		return utils.NewConfigValidationError(path, errors.New("matching.max_dist should be >= 0"))
	}
	for _, lpc := range cfg.LogLevels {
		if err := lpc.Validate(); err != nil {
			return utils.NewConfigValidationError(path, err)
		}
	}
	return nil
}

func insideCollection(dir string) bool {
	first := strings.SplitN(path.Clean(strings.TrimPrefix(dir, "./")), "/", 2)[0]
	return first == framestore.ColorDir || first == framestore.DepthDir
}

// DetectorFingerprint identifies the ORB and matching settings. Scores computed under different
// fingerprints are not comparable.
func (cfg *Config) DetectorFingerprint() (string, error) {
	data, err := json.Marshal(struct {
		ORB      *keypoints.ORBConfig      `json:"orb"`
		Matching *keypoints.MatchingConfig `json:"matching"`
	}{cfg.ORB, cfg.Matching})
	if err != nil {
		return "", errors.Wrap(err, "cannot fingerprint detector settings")
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, data).String(), nil
}

// Schema returns the JSON schema of Config.
func Schema() ([]byte, error) {
	return json.MarshalIndent(jsonschema.Reflect(&Config{}), "", "  ")
}
