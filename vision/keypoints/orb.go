package keypoints

import (
	"encoding/json"
	"image"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/keyframes/vision/keypoints/descriptors"
)

// ScoreType selects how FAST candidates are ranked before the per-level budget is applied.
type ScoreType string

const (
	// ScoreFAST ranks candidates by their FAST response.
	ScoreFAST ScoreType = "fast"
	// ScoreHarris ranks twice the budget of FAST candidates by their Harris response.
	ScoreHarris ScoreType = "harris"
)

// descriptorBits is the length of the steered BRIEF descriptor.
const descriptorBits = 256

// ORBConfig contains the parameters / configs needed to compute ORB features.
type ORBConfig struct {
	NFeatures     int       `json:"n_features"`
	ScaleFactor   float64   `json:"scale_factor"`
	NLevels       int       `json:"n_levels"`
	EdgeThreshold int       `json:"edge_threshold"`
	FirstLevel    int       `json:"first_level"`
	WTAK          int       `json:"wta_k"`
	ScoreType     ScoreType `json:"score_type"`
	PatchSize     int       `json:"patch_size"`
	FastThreshold int       `json:"fast_threshold"`
}

// DefaultORBConfig returns the detector configuration used for keyframe selection: 1000 features,
// 8 levels of scale 1.2, edge threshold and patch size 31, FAST threshold 20 and FAST ranking.
func DefaultORBConfig() *ORBConfig {
	return &ORBConfig{
		NFeatures:     1000,
		ScaleFactor:   1.2,
		NLevels:       8,
		EdgeThreshold: 31,
		FirstLevel:    0,
		WTAK:          2,
		ScoreType:     ScoreFAST,
		PatchSize:     31,
		FastThreshold: 20,
	}
}

// LoadORBConfiguration loads a ORBConfig from a json file. Fields absent from the file keep their
// default value.
func LoadORBConfiguration(file string) (*ORBConfig, error) {
	config := DefaultORBConfig()
	filePath := filepath.Clean(file)
	//nolint:gosec
	configFile, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(configFile.Close)
	jsonParser := json.NewDecoder(configFile)
	jsonParser.DisallowUnknownFields()
	if err := jsonParser.Decode(config); err != nil {
		return nil, errors.Wrapf(err, "cannot parse ORB config %q", file)
	}
	if err := config.Validate(file); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate ensures all parts of the ORBConfig are valid.
func (config *ORBConfig) Validate(path string) error {
	if config.NFeatures < 1 {
		return utils.NewConfigValidationError(path, errors.New("n_features should be >= 1"))
	}
	if config.ScaleFactor <= 1 {
		return utils.NewConfigValidationError(path, errors.New("scale_factor should be greater than 1"))
	}
	if config.NLevels < 1 {
		return utils.NewConfigValidationError(path, errors.New("n_levels should be >= 1"))
	}
	if config.FirstLevel != 0 {
		return utils.NewConfigValidationError(path, errors.New("only first_level 0 is supported"))
	}
	if config.WTAK != 2 {
		return utils.NewConfigValidationError(path, errors.New("only wta_k 2 is supported"))
	}
	if config.PatchSize < 3 {
		return utils.NewConfigValidationError(path, errors.New("patch_size should be >= 3"))
	}
	if config.EdgeThreshold < 3 {
		return utils.NewConfigValidationError(path, errors.New("edge_threshold should be >= 3"))
	}
	if config.FastThreshold < 0 || config.FastThreshold > 255 {
		return utils.NewConfigValidationError(path, errors.New("fast_threshold should be in [0, 255]"))
	}
	switch config.ScoreType {
	case ScoreFAST, ScoreHarris:
	case "":
		return utils.NewConfigValidationFieldRequiredError(path, "score_type")
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown score_type %q", config.ScoreType))
	}
	return nil
}

// ComputeORBKeypoints compute ORB keypoints on gray image. Keypoints are returned in full
// resolution coordinates, level by level, strongest first within a level.
func ComputeORBKeypoints(im *image.Gray, cfg *ORBConfig) (descriptors.Descriptors, KeyPoints, error) {
	if err := cfg.Validate(""); err != nil {
		return nil, nil, err
	}
	pyramid, err := GetImagePyramid(im, cfg.ScaleFactor, cfg.NLevels, 2*cfg.EdgeThreshold+1)
	if err != nil {
		return nil, nil, err
	}
	budgets := featuresPerLevel(cfg.NFeatures, cfg.ScaleFactor, cfg.NLevels)
	fastCfg := &FASTConfig{Threshold: cfg.FastThreshold, NMatchesCircle: 9, Border: cfg.EdgeThreshold}
	briefCfg := &BRIEFConfig{N: descriptorBits, UseOrientation: true, PatchSize: cfg.PatchSize}
	samplePairs := GenerateSamplePairs(briefCfg.N, briefCfg.PatchSize)

	orbDescriptors := make(descriptors.Descriptors, 0)
	orbPoints := make(KeyPoints, 0)
	for i, currentImage := range pyramid.Images {
		budget := budgets[i]
		if budget == 0 {
			continue
		}
		candidates := detectFAST(currentImage, fastCfg)
		if cfg.ScoreType == ScoreHarris {
			if len(candidates) > 2*budget {
				candidates = candidates[:2*budget]
			}
			candidates = rankByHarris(currentImage, candidates)
		}
		if len(candidates) > budget {
			candidates = candidates[:budget]
		}
		if len(candidates) == 0 {
			continue
		}
		levelPoints := make(KeyPoints, len(candidates))
		for j, c := range candidates {
			levelPoints[j] = c.Point
		}
		oriented := GetOrientedKeyPointsFromKeyPoints(currentImage, levelPoints, cfg.PatchSize)
		blurred, err := SmoothForBRIEF(currentImage)
		if err != nil {
			return nil, nil, err
		}
		orbDescriptors = append(orbDescriptors, ComputeBRIEFDescriptors(blurred, samplePairs, oriented, briefCfg)...)
		orbPoints = append(orbPoints, RescaleKeypoints(levelPoints, pyramid.Scales[i])...)
	}
	return orbDescriptors, orbPoints, nil
}
