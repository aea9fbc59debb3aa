//go:build !gocv

package main

import (
	"go.viam.com/keyframes/vision/keyframes"
	"go.viam.com/keyframes/vision/keypoints"
)

func newExtractor(cfg *keyframes.Config) (keypoints.FeatureExtractor, error) {
	return keypoints.NewORBExtractor(cfg.ORB)
}

func newMatcher(cfg *keyframes.Config) keypoints.Matcher {
	return keypoints.NewBruteForceMatcher(cfg.Matching)
}
