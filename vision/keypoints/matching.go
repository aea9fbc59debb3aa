package keypoints

import (
	"sort"

	"github.com/pkg/errors"

	"go.viam.com/keyframes/utils"
	"go.viam.com/keyframes/vision/keypoints/descriptors"
)

// MatchingConfig contains the parameters for matching descriptors.
type MatchingConfig struct {
	DoCrossCheck bool `json:"do_cross_check"`
	// MaxDist, when > 0, drops matches whose distance is >= MaxDist.
	MaxDist int `json:"max_dist"`
}

// DefaultMatchingConfig enables cross check and keeps every distance.
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{DoCrossCheck: true}
}

// DescriptorMatch contains the index of a match in the first and second set of descriptors and
// their Hamming distance.
type DescriptorMatch struct {
	Idx1     int
	Idx2     int
	Distance int
}

// Matcher pairs the descriptors of a query set with those of a train set.
type Matcher interface {
	Match(desc1, desc2 descriptors.Descriptors) []DescriptorMatch
}

// BruteForceMatcher compares every query descriptor against every train descriptor.
type BruteForceMatcher struct {
	cfg MatchingConfig
}

// NewBruteForceMatcher returns a matcher using cfg, or DefaultMatchingConfig when cfg is nil.
func NewBruteForceMatcher(cfg *MatchingConfig) *BruteForceMatcher {
	if cfg == nil {
		cfg = DefaultMatchingConfig()
	}
	return &BruteForceMatcher{cfg: *cfg}
}

// Match implements Matcher.
func (m *BruteForceMatcher) Match(desc1, desc2 descriptors.Descriptors) []DescriptorMatch {
	return MatchDescriptors(desc1, desc2, &m.cfg)
}

// MatchDescriptors takes 2 sets of descriptors and performs matching. Each query descriptor is
// paired with its nearest train descriptor; with cross check the pair is kept only when the query
// is also the train descriptor's nearest neighbor. Ties go to the lowest index. The result is
// sorted by increasing distance, ties keeping query order.
func MatchDescriptors(desc1, desc2 descriptors.Descriptors, cfg *MatchingConfig) []DescriptorMatch {
	if len(desc1) == 0 || len(desc2) == 0 {
		return []DescriptorMatch{}
	}
	distances := utils.PairwiseHammingDistance(desc1.AsBitStrings(), desc2.AsBitStrings())
	nearest2 := utils.GetArgMinDistancesPerRow(distances)
	var nearest1 []int
	if cfg.DoCrossCheck {
		nearest1 = utils.GetArgMinDistancesPerColumn(distances)
	}

	matches := make([]DescriptorMatch, 0, len(desc1))
	for i, j := range nearest2 {
		if cfg.DoCrossCheck && nearest1[j] != i {
			continue
		}
		d := int(distances.At(i, j))
		if cfg.MaxDist > 0 && d >= cfg.MaxDist {
			continue
		}
		matches = append(matches, DescriptorMatch{Idx1: i, Idx2: j, Distance: d})
	}
	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Distance < matches[b].Distance
	})
	return matches
}

// GetMatchingKeyPoints takes the matches and the keypoints and returns the corresponding keypoints that are matched.
func GetMatchingKeyPoints(matches []DescriptorMatch, kps1, kps2 KeyPoints) (KeyPoints, KeyPoints, error) {
	matchedKps1 := make(KeyPoints, len(matches))
	matchedKps2 := make(KeyPoints, len(matches))
	for i, match := range matches {
		if match.Idx1 < 0 || match.Idx1 >= len(kps1) {
			return nil, nil, errors.Errorf("match %d refers to keypoint %d of the first set which has %d", i, match.Idx1, len(kps1))
		}
		if match.Idx2 < 0 || match.Idx2 >= len(kps2) {
			return nil, nil, errors.Errorf("match %d refers to keypoint %d of the second set which has %d", i, match.Idx2, len(kps2))
		}
		matchedKps1[i] = kps1[match.Idx1]
		matchedKps2[i] = kps2[match.Idx2]
	}
	return matchedKps1, matchedKps2, nil
}
