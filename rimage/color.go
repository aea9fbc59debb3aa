package rimage

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// Colors used when drawing debug output.
var (
	Red    = color.NRGBA{255, 0, 0, 255}
	Green  = color.NRGBA{0, 255, 0, 255}
	Yellow = color.NRGBA{255, 255, 0, 255}
	White  = color.NRGBA{255, 255, 255, 255}
)

var (
	nearColor, _ = colorful.MakeColor(Green)
	farColor, _  = colorful.MakeColor(Red)
)

// DistanceColor maps t in [0, 1] onto a perceptual ramp from green (0) to red (1). Out of range
// values are clamped.
func DistanceColor(t float64) color.Color {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return nearColor.BlendHcl(farColor, t).Clamped()
}
