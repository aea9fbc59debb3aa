package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"go.viam.com/test"

	"go.viam.com/keyframes/framestore"
	"go.viam.com/keyframes/logging"
	"go.viam.com/keyframes/rimage"
	"go.viam.com/keyframes/vision/keyframes"
)

func texturedFrame(w, h int, seed uint64) *image.Gray {
	rng := rand.New(rand.NewPCG(seed, 3))
	img := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.Gray{128}}, image.Point{}, draw.Src)
	for i := 0; i < 150; i++ {
		x0, y0 := rng.IntN(w), rng.IntN(h)
		rw, rh := 6+rng.IntN(30), 6+rng.IntN(30)
		draw.Draw(img, image.Rect(x0, y0, x0+rw, y0+rh), &image.Uniform{color.Gray{uint8(rng.IntN(256))}}, image.Point{}, draw.Src)
	}
	return img
}

func shiftedFrame(img *image.Gray, dx int) *image.Gray {
	out := image.NewGray(img.Bounds())
	draw.Draw(out, out.Bounds(), &image.Uniform{color.Gray{128}}, image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, image.Point{dx, 0}, draw.Src)
	return out
}

func writeFrame(t *testing.T, name string, img image.Image) {
	t.Helper()
	f, err := os.Create(name)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rimage.EncodeImage(f, img, name), test.ShouldBeNil)
	test.That(t, f.Close(), test.ShouldBeNil)
}

// makeCapture writes a capture of n frames panning over one texture.
func makeCapture(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for _, sub := range []string{framestore.ColorDir, framestore.DepthDir} {
		test.That(t, os.MkdirAll(filepath.Join(dir, sub), 0o755), test.ShouldBeNil)
	}
	base := texturedFrame(480, 240, 5)
	for i := 0; i < n; i++ {
		frame := image.NewGray(image.Rect(0, 0, 240, 240))
		draw.Draw(frame, frame.Bounds(), shiftedFrame(base, 25*i), image.Point{}, draw.Src)
		writeFrame(t, filepath.Join(dir, framestore.ColorDir, strconv.Itoa(i)+".png"), frame)
		writeFrame(t, filepath.Join(dir, framestore.DepthDir, strconv.Itoa(i)+".png"), frame)
	}
	return dir
}

func exists(t *testing.T, name string) bool {
	t.Helper()
	_, err := os.Stat(name)
	if os.IsNotExist(err) {
		return false
	}
	test.That(t, err, test.ShouldBeNil)
	return true
}

func readPlan(t *testing.T, name string) keyframes.PrunePlan {
	t.Helper()
	data, err := os.ReadFile(name)
	test.That(t, err, test.ShouldBeNil)
	var plan keyframes.PrunePlan
	test.That(t, json.Unmarshal(data, &plan), test.ShouldBeNil)
	return plan
}

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := output
	output = &buf
	t.Cleanup(func() { output = prev })
	return &buf
}

func TestArguments(t *testing.T) {
	logger := logging.NewTestLogger(t)
	ctx := context.Background()

	out := captureOutput(t)
	test.That(t, mainWithArgs(ctx, []string{"keyframes", "-print-schema"}, logger), test.ShouldBeNil)
	test.That(t, out.String(), test.ShouldContainSubstring, "visualize_correspondences")

	err := mainWithArgs(ctx, []string{"keyframes"}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "capture directory")

	err = mainWithArgs(ctx, []string{"keyframes", "-unknown", "dir"}, logger)
	test.That(t, err, test.ShouldNotBeNil)

	err = mainWithArgs(ctx, []string{"keyframes", "-threshold", "lots", "dir"}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "threshold")

	err = mainWithArgs(ctx, []string{"keyframes", "-level", "2", "-mode", "whole", "dir"}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "contradicts")

	err = mainWithArgs(ctx, []string{"keyframes", "-level", "3", "dir"}, logger)
	test.That(t, err, test.ShouldNotBeNil)

	err = mainWithArgs(ctx, []string{"keyframes", "-correspondences", "-visualize-dir", "depth/x", "dir"}, logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestBuildConfig(t *testing.T) {
	logger := logging.NewTestLogger(t)
	cfg, err := buildConfig(Arguments{Level: 2, Threshold: "0.4", Parallel: true, Ext: ".png"}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Mode, test.ShouldEqual, keyframes.ModeQuadrant)
	test.That(t, cfg.Threshold, test.ShouldEqual, 0.4)
	test.That(t, cfg.ParallelQuadrants, test.ShouldBeTrue)

	cfgFile := filepath.Join(t.TempDir(), "cfg.json")
	test.That(t, os.WriteFile(cfgFile, []byte(`{"mode": "quadrant", "threshold": 0.6}`), 0o600), test.ShouldBeNil)
	cfg, err = buildConfig(Arguments{Config: cfgFile, Threshold: "0.2"}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Mode, test.ShouldEqual, keyframes.ModeQuadrant)
	test.That(t, cfg.Threshold, test.ShouldEqual, 0.2)
}

func TestDryRun(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := makeCapture(t, 6)
	out := captureOutput(t)

	err := mainWithArgs(context.Background(), []string{"keyframes", "-dry-run", "-threshold", "0.3", dir}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.String(), test.ShouldContainSubstring, "dry run")

	plan := readPlan(t, filepath.Join(dir, "keyframes.json"))
	test.That(t, plan.N, test.ShouldEqual, 6)
	test.That(t, plan.Keep[0], test.ShouldEqual, 0)
	test.That(t, plan.Keep[len(plan.Keep)-1], test.ShouldEqual, 5)
	test.That(t, len(plan.Keep)+len(plan.Remove), test.ShouldEqual, 6)
	test.That(t, plan.RunID, test.ShouldNotBeEmpty)
	for i := 0; i < 6; i++ {
		test.That(t, exists(t, filepath.Join(dir, framestore.ColorDir, strconv.Itoa(i)+".png")), test.ShouldBeTrue)
	}
}

func TestPrune(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := makeCapture(t, 6)
	_ = captureOutput(t)
	logFile := filepath.Join(t.TempDir(), "keyframes.log")
	plotFile := filepath.Join(t.TempDir(), "scores.png")

	err := mainWithArgs(context.Background(), []string{
		"keyframes",
		"-level", "1",
		"-threshold", "0.3",
		"-checkpoint", "state/checkpoint.json",
		"-report", "report.txt",
		"-score-plot", plotFile,
		"-correspondences",
		"-log-file", logFile,
		dir,
	}, logger)
	test.That(t, err, test.ShouldBeNil)

	plan := readPlan(t, filepath.Join(dir, "keyframes.json"))
	for _, i := range plan.Keep {
		test.That(t, exists(t, filepath.Join(dir, framestore.ColorDir, strconv.Itoa(i)+".png")), test.ShouldBeTrue)
		test.That(t, exists(t, filepath.Join(dir, framestore.DepthDir, strconv.Itoa(i)+".png")), test.ShouldBeTrue)
	}
	for _, i := range plan.Remove {
		test.That(t, exists(t, filepath.Join(dir, framestore.ColorDir, strconv.Itoa(i)+".png")), test.ShouldBeFalse)
		test.That(t, exists(t, filepath.Join(dir, framestore.DepthDir, strconv.Itoa(i)+".png")), test.ShouldBeFalse)
	}

	report, err := os.ReadFile(filepath.Join(dir, "report.txt"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(report), test.ShouldContainSubstring, "frames:      6")
	test.That(t, exists(t, filepath.Join(dir, "state", "checkpoint.json")), test.ShouldBeFalse)
	test.That(t, exists(t, plotFile), test.ShouldBeTrue)
	test.That(t, exists(t, logFile), test.ShouldBeTrue)
	for i := 1; i < len(plan.Keep); i++ {
		name := keyframes.PairName(plan.Keep[i-1], plan.Keep[i])
		test.That(t, exists(t, filepath.Join(dir, "correspondences", name)), test.ShouldBeTrue)
	}
}

func TestMissingFrame(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := makeCapture(t, 4)
	test.That(t, os.Remove(filepath.Join(dir, framestore.DepthDir, "2.png")), test.ShouldBeNil)

	err := mainWithArgs(context.Background(), []string{"keyframes", "-threshold", "2", dir}, logger)
	test.That(t, errors.Is(err, framestore.ErrMissingFrame), test.ShouldBeTrue)
	for i := 0; i < 4; i++ {
		test.That(t, exists(t, filepath.Join(dir, framestore.ColorDir, strconv.Itoa(i)+".png")), test.ShouldBeTrue)
	}
	test.That(t, exists(t, filepath.Join(dir, "keyframes.json")), test.ShouldBeFalse)
}

func TestCanceled(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := makeCapture(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := mainWithArgs(ctx, []string{"keyframes", dir}, logger)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
	for i := 0; i < 4; i++ {
		test.That(t, exists(t, filepath.Join(dir, framestore.ColorDir, strconv.Itoa(i)+".png")), test.ShouldBeTrue)
	}
}
