//go:build gocv

package main

import (
	"go.viam.com/keyframes/vision/keyframes"
	"go.viam.com/keyframes/vision/keypoints"
)

func newExtractor(cfg *keyframes.Config) (keypoints.FeatureExtractor, error) {
	return keypoints.NewGoCVExtractor(cfg.ORB)
}

// newMatcher ignores cfg.Matching: the OpenCV matcher always cross checks and keeps every distance.
func newMatcher(cfg *keyframes.Config) keypoints.Matcher {
	return keypoints.GoCVMatcher{}
}
