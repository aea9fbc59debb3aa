package keypoints

import (
	"image"
	"image/color"
	"image/draw"
	"math/rand/v2"
)

func createTestImage() *image.Gray {
	rectImage := image.NewGray(image.Rect(0, 0, 300, 200))
	whiteRect := image.Rect(50, 30, 100, 150)
	white := color.Gray{255}
	black := color.Gray{0}
	draw.Draw(rectImage, rectImage.Bounds(), &image.Uniform{black}, image.Point{0, 0}, draw.Src)
	draw.Draw(rectImage, whiteRect, &image.Uniform{white}, image.Point{0, 0}, draw.Src)
	return rectImage
}

func createBlankImage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.Gray{128}}, image.Point{}, draw.Src)
	return img
}

// createTexturedImage paints random overlapping rectangles of random gray levels.
func createTexturedImage(w, h int, seed uint64) *image.Gray {
	rng := rand.New(rand.NewPCG(seed, 42))
	img := createBlankImage(w, h)
	for i := 0; i < 120; i++ {
		x0, y0 := rng.IntN(w), rng.IntN(h)
		rw, rh := 6+rng.IntN(40), 6+rng.IntN(40)
		level := color.Gray{uint8(rng.IntN(256))}
		draw.Draw(img, image.Rect(x0, y0, x0+rw, y0+rh), &image.Uniform{level}, image.Point{}, draw.Src)
	}
	return img
}
