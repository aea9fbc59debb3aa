package rimage

import (
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"

	"go.viam.com/keyframes/utils"
)

// Kernel is a dense convolution kernel indexed as Content[y][x].
type Kernel struct {
	Content [][]float64
	Height  int
	Width   int
}

// Size returns the kernel size as a point (width, height).
func (k *Kernel) Size() image.Point {
	return image.Point{k.Width, k.Height}
}

// At returns the kernel coefficient at (x, y).
func (k *Kernel) At(x, y int) float64 {
	return k.Content[y][x]
}

// Center returns the default anchor of the kernel.
func (k *Kernel) Center() image.Point {
	return image.Point{k.Width / 2, k.Height / 2}
}

// GetSobelX returns the Kernel corresponding to the Sobel kernel in the x direction.
func GetSobelX() Kernel {
	return Kernel{[][]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	},
		3,
		3,
	}
}

// GetSobelY returns the Kernel corresponding to the Sobel kernel in the y direction.
func GetSobelY() Kernel {
	return Kernel{[][]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	},
		3,
		3,
	}
}

// GetGaussian5 returns the normalized 5x5 binomial approximation of a Gaussian.
func GetGaussian5() Kernel {
	row := []float64{1, 4, 6, 4, 1}
	content := make([][]float64, 5)
	for y := range content {
		content[y] = make([]float64, 5)
		for x := range content[y] {
			content[y][x] = row[y] * row[x] / 256
		}
	}
	return Kernel{content, 5, 5}
}

// BorderPad selects how pixels outside the image are synthesized.
type BorderPad int

const (
	// BorderConstant pads with zeros.
	BorderConstant BorderPad = iota
	// BorderReplicate repeats the edge pixel: aaa|abcd|ddd.
	BorderReplicate
	// BorderReflect mirrors without repeating the edge pixel: cb|abcd|cb.
	BorderReflect
)

// borderIndex maps an out of range index to [0, n) for the given border, or -1 for a constant pad.
func borderIndex(i, n int, border BorderPad) int {
	if i >= 0 && i < n {
		return i
	}
	switch border {
	case BorderConstant:
		return -1
	case BorderReflect:
		if n > 1 {
			period := 2 * (n - 1)
			i = ((i % period) + period) % period
			if i >= n {
				i = period - i
			}
			return i
		}
		return 0
	default:
		return utils.ClampInt(i, 0, n-1)
	}
}

// PaddingGray pads img so that a kernel of kernelSize anchored at `anchor` can visit every pixel.
// The returned image has its origin at zero and pixel (x, y) of img lands at (x+anchor.X, y+anchor.Y).
func PaddingGray(img *image.Gray, kernelSize, anchor image.Point, border BorderPad) (*image.Gray, error) {
	if !anchor.In(image.Rectangle{Max: kernelSize}) {
		return nil, errors.Errorf("anchor %v outside of kernel of size %v", anchor, kernelSize)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	padded := image.NewGray(image.Rect(0, 0, w+kernelSize.X-1, h+kernelSize.Y-1))
	for py := 0; py < padded.Bounds().Dy(); py++ {
		sy := borderIndex(py-anchor.Y, h, border)
		for px := 0; px < padded.Bounds().Dx(); px++ {
			sx := borderIndex(px-anchor.X, w, border)
			if sx < 0 || sy < 0 {
				continue
			}
			padded.Pix[py*padded.Stride+px] = img.Pix[img.PixOffset(b.Min.X+sx, b.Min.Y+sy)]
		}
	}
	return padded, nil
}

// ConvolveGray applies a convolution matrix (Kernel) to a grayscale image.
// Example of usage:
//
//	res, err := rimage.ConvolveGray(img, &kernel, kernel.Center(), rimage.BorderReflect)
//
// Note: the anchor represents a point inside the area of the kernel. After every step of the convolution the position
// specified by the anchor point gets updated on the result image.
func ConvolveGray(img *image.Gray, kernel *Kernel, anchor image.Point, border BorderPad) (*image.Gray, error) {
	kernelSize := kernel.Size()
	padded, err := PaddingGray(img, kernelSize, anchor, border)
	if err != nil {
		return nil, err
	}
	originalSize := img.Bounds().Size()
	resultImage := image.NewGray(image.Rect(0, 0, originalSize.X, originalSize.Y))
	utils.ParallelForEachRow(0, originalSize.Y, func(y int) {
		for x := 0; x < originalSize.X; x++ {
			sum := float64(0)
			for ky := 0; ky < kernelSize.Y; ky++ {
				for kx := 0; kx < kernelSize.X; kx++ {
					pixel := padded.GrayAt(x+kx, y+ky)
					sum += float64(pixel.Y) * kernel.At(kx, ky)
				}
			}
			sum = math.Max(0, math.Min(255, math.Round(sum)))
			resultImage.SetGray(x, y, color.Gray{uint8(sum)})
		}
	})
	return resultImage, nil
}
