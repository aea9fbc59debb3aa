package rimage

import (
	"image"
	"image/draw"

	"github.com/pkg/errors"
)

// SameImgSize compares two images to see if they're the same size.
func SameImgSize(g1, g2 image.Image) bool {
	return g1.Bounds().Dx() == g2.Bounds().Dx() && g1.Bounds().Dy() == g2.Bounds().Dy()
}

// MakeGray converts any image to an *image.Gray whose bounds start at the origin. An origin-based
// *image.Gray is returned as is.
func MakeGray(pic image.Image) *image.Gray {
	if gray, ok := pic.(*image.Gray); ok && gray.Bounds().Min == (image.Point{}) {
		return gray
	}
	b := pic.Bounds()
	result := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(result, result.Bounds(), pic, b.Min, draw.Src)

	return result
}

// CropGray copies the region `r`, expressed relative to the origin of pic, into a new image whose
// bounds start at the origin.
func CropGray(pic *image.Gray, r image.Rectangle) (*image.Gray, error) {
	b := pic.Bounds()
	src := r.Add(b.Min)
	if !src.In(b) {
		return nil, errors.Errorf("crop %v is outside of image bounds %v", r, image.Rect(0, 0, b.Dx(), b.Dy()))
	}
	result := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		srcOff := pic.PixOffset(src.Min.X, src.Min.Y+y)
		copy(result.Pix[y*result.Stride:y*result.Stride+r.Dx()], pic.Pix[srcOff:srcOff+r.Dx()])
	}
	return result, nil
}
