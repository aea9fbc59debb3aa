package rimage

import (
	"image"
	"io"
	"path/filepath"

	"github.com/disintegration/imaging"
	_ "github.com/lmittmann/ppm" // register ppm
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"  // register bmp
	_ "golang.org/x/image/tiff" // register tiff
)

// DecodeImage decodes any registered still image format (png, jpeg, gif, bmp, tiff, ppm).
func DecodeImage(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "cannot decode image")
	}
	return img, nil
}

// EncodeImage writes img in the format implied by the extension of filename.
func EncodeImage(w io.Writer, img image.Image, filename string) error {
	format, err := imaging.FormatFromFilename(filepath.Base(filename))
	if err != nil {
		return errors.Wrapf(err, "cannot encode %q", filename)
	}
	return imaging.Encode(w, img, format)
}
