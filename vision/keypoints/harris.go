package keypoints

import (
	"image"

	"go.viam.com/keyframes/rimage"
)

const (
	harrisBlockSize = 7
	harrisK         = 0.04
)

// sobelAt applies a 3x3 kernel centered on (x, y).
func sobelAt(img *image.Gray, kernel *rimage.Kernel, x, y int) float64 {
	sum := 0.
	for ky := 0; ky < 3; ky++ {
		for kx := 0; kx < 3; kx++ {
			sum += kernel.At(kx, ky) * float64(grayAtClamped(img, x+kx-1, y+ky-1))
		}
	}
	return sum
}

// HarrisResponse computes the Harris corner measure det(M) - k*trace(M)^2 of the structure tensor
// M accumulated over a blockSize x blockSize window centered on p.
func HarrisResponse(img *image.Gray, p image.Point, blockSize int, k float64) float64 {
	sobelX := rimage.GetSobelX()
	sobelY := rimage.GetSobelY()
	r := blockSize / 2
	var a, b, c float64
	for y := p.Y - r; y < p.Y-r+blockSize; y++ {
		for x := p.X - r; x < p.X-r+blockSize; x++ {
			ix := sobelAt(img, &sobelX, x, y)
			iy := sobelAt(img, &sobelY, x, y)
			a += ix * ix
			b += iy * iy
			c += ix * iy
		}
	}
	// Normalize like the 8-bit OpenCV implementation so that responses are comparable across levels.
	scale := 1. / float64(4*blockSize*255)
	scale4 := scale * scale * scale * scale
	return (a*b - c*c - k*(a+b)*(a+b)) * scale4
}

// rankByHarris re-scores the candidates with the Harris response and orders them by it.
func rankByHarris(img *image.Gray, candidates []scoredPoint) []scoredPoint {
	ranked := make([]scoredPoint, len(candidates))
	for i, cand := range candidates {
		ranked[i] = scoredPoint{cand.Point, HarrisResponse(img, cand.Point, harrisBlockSize, harrisK)}
	}
	sortByScore(ranked)
	return ranked
}
