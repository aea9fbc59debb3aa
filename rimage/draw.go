package rimage

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

var font *truetype.Font

// init sets up the fonts we want to use.
func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Font returns the font we use for drawing.
func Font() *truetype.Font {
	return font
}

// DrawString writes a string to the given context at a particular point.
func DrawString(dc *gg.Context, text string, p image.Point, c color.Color, size float64) {
	dc.SetFontFace(truetype.NewFace(Font(), &truetype.Options{Size: size}))
	dc.SetColor(c)
	dc.DrawStringWrapped(text, float64(p.X), float64(p.Y), 0, 0, float64(dc.Width()), 1, 0)
}

// DrawRectangleEmpty draws the outline of the given rectangle into the context.
func DrawRectangleEmpty(dc *gg.Context, r image.Rectangle, c color.Color, width float64) {
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.DrawRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()))
	dc.Stroke()
}

// MatchLine joins a point of the left image to a point of the right image. Distance is the
// normalized match distance in [0, 1] and picks the line color.
type MatchLine struct {
	Left     image.Point
	Right    image.Point
	Distance float64
}

// DrawMatches places left and right side by side and draws one colored line per correspondence.
// Regions, if any, are outlined in both halves.
func DrawMatches(left, right image.Image, lines []MatchLine, regions []image.Rectangle, caption string) image.Image {
	lb, rb := left.Bounds(), right.Bounds()
	width := lb.Dx() + rb.Dx()
	height := lb.Dy()
	if rb.Dy() > height {
		height = rb.Dy()
	}
	offset := image.Point{lb.Dx(), 0}

	dc := gg.NewContext(width, height)
	dc.DrawImage(left, -lb.Min.X, -lb.Min.Y)
	dc.DrawImage(right, offset.X-rb.Min.X, -rb.Min.Y)

	for _, r := range regions {
		DrawRectangleEmpty(dc, r, Yellow, 1)
		DrawRectangleEmpty(dc, r.Add(offset), Yellow, 1)
	}

	dc.SetLineWidth(1)
	for _, l := range lines {
		dc.SetColor(DistanceColor(l.Distance))
		rp := l.Right.Add(offset)
		dc.DrawCircle(float64(l.Left.X), float64(l.Left.Y), 3)
		dc.Stroke()
		dc.DrawCircle(float64(rp.X), float64(rp.Y), 3)
		dc.Stroke()
		dc.DrawLine(float64(l.Left.X), float64(l.Left.Y), float64(rp.X), float64(rp.Y))
		dc.Stroke()
	}

	if caption != "" {
		DrawString(dc, caption, image.Point{5, 5}, White, 14)
	}
	return dc.Image()
}
