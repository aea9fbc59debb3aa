// Package framestore reads and removes the color/depth frame pairs of an RGB-D capture laid out
// as <root>/color/<i>.<ext> and <root>/depth/<i>.<ext>, i = 0..N-1.
package framestore

import (
	"bytes"
	"image"
	"io"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gopkg.in/src-d/go-billy.v4"
	"gopkg.in/src-d/go-billy.v4/osfs"

	"go.viam.com/keyframes/logging"
	"go.viam.com/keyframes/rimage"
)

// Frame asset collections.
const (
	ColorDir = "color"
	DepthDir = "depth"
)

// DefaultExt is the frame file extension used when none is given.
const DefaultExt = "png"

var (
	// ErrMissingFrame is returned when a frame asset of the index range is absent or unreadable.
	ErrMissingFrame = errors.New("missing frame")
	// ErrDecode is returned when a frame asset cannot be decoded as an image.
	ErrDecode = errors.New("cannot decode frame")
)

// Store gives indexed access to the frames of a capture. Frame indices are contiguous from 0 and
// the number of frames is the number of color assets found when the store is opened.
type Store struct {
	fs     billy.Filesystem
	ext    string
	n      int
	logger logging.Logger
}

// OpenDir opens the capture rooted at dir on the local filesystem.
func OpenDir(dir, ext string, logger logging.Logger) (*Store, error) {
	return Open(osfs.New(dir), ext, logger)
}

// Open opens the capture at the root of fs. Every color index in 0..N-1 must be present and have a
// depth counterpart, otherwise ErrMissingFrame is returned.
func Open(fs billy.Filesystem, ext string, logger logging.Logger) (*Store, error) {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = DefaultExt
	}
	s := &Store{fs: fs, ext: ext, logger: logger}

	colorIdx, err := s.indices(ColorDir)
	if err != nil {
		return nil, err
	}
	depthIdx, err := s.indices(DepthDir)
	if err != nil {
		return nil, err
	}
	for i, idx := range colorIdx {
		if idx != i {
			return nil, errors.Wrapf(ErrMissingFrame, "color frame %d (found %d color frames, next index is %d)",
				i, len(colorIdx), idx)
		}
	}
	s.n = len(colorIdx)

	hasDepth := make(map[int]bool, len(depthIdx))
	for _, idx := range depthIdx {
		hasDepth[idx] = true
	}
	for i := 0; i < s.n; i++ {
		if !hasDepth[i] {
			return nil, errors.Wrapf(ErrMissingFrame, "depth frame %d (%s)", i, s.DepthPath(i))
		}
	}
	if extra := len(depthIdx) - s.n; extra > 0 {
		logger.Warnw("depth frames without a color frame are ignored", "count", extra)
	}

	logger.Debugw("opened frame store", "root", fs.Root(), "frames", s.n, "ext", ext)
	return s, nil
}

// indices returns the sorted frame indices of a collection.
func (s *Store) indices(dir string) ([]int, error) {
	if _, err := s.fs.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrMissingFrame, "no %s directory under %q", dir, s.fs.Root())
		}
		return nil, errors.Wrapf(err, "cannot stat %s directory", dir)
	}
	infos, err := s.fs.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot list %s directory", dir)
	}
	suffix := "." + s.ext
	var idx []int
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		i, err := strconv.Atoi(strings.TrimSuffix(name, suffix))
		if err != nil || i < 0 {
			s.logger.Debugw("skipping non frame file", "dir", dir, "name", name)
			continue
		}
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx, nil
}

// Len returns the number of frames N.
func (s *Store) Len() int {
	return s.n
}

// Ext returns the frame file extension, without the dot.
func (s *Store) Ext() string {
	return s.ext
}

// Filesystem returns the filesystem the store reads from.
func (s *Store) Filesystem() billy.Filesystem {
	return s.fs
}

// ColorPath returns the path of the color asset of frame i, relative to the store root.
func (s *Store) ColorPath(i int) string {
	return path.Join(ColorDir, strconv.Itoa(i)+"."+s.ext)
}

// DepthPath returns the path of the depth asset of frame i, relative to the store root.
func (s *Store) DepthPath(i int) string {
	return path.Join(DepthDir, strconv.Itoa(i)+"."+s.ext)
}

func (s *Store) checkIndex(i int) error {
	if i < 0 || i >= s.n {
		return errors.Wrapf(ErrMissingFrame, "frame %d out of range [0, %d)", i, s.n)
	}
	return nil
}

func (s *Store) decode(name string) (image.Image, error) {
	f, err := s.fs.Open(name)
	if err != nil {
		return nil, errors.Wrapf(ErrMissingFrame, "%s: %v", name, err)
	}
	defer utils.UncheckedErrorFunc(f.Close)
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrapf(ErrMissingFrame, "%s: %v", name, err)
	}
	img, err := rimage.DecodeImage(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "%s: %v", name, err)
	}
	return img, nil
}

// ReadColor decodes the color asset of frame i.
func (s *Store) ReadColor(i int) (image.Image, error) {
	if err := s.checkIndex(i); err != nil {
		return nil, err
	}
	return s.decode(s.ColorPath(i))
}

// ReadGray decodes the color asset of frame i and converts it to grayscale.
func (s *Store) ReadGray(i int) (*image.Gray, error) {
	img, err := s.ReadColor(i)
	if err != nil {
		return nil, err
	}
	return rimage.MakeGray(img), nil
}

func (s *Store) exists(name string) (bool, error) {
	_, err := s.fs.Stat(name)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, errors.Wrapf(err, "cannot stat %s", name)
	}
}

// HasColor reports whether the color asset of frame i is present.
func (s *Store) HasColor(i int) (bool, error) {
	return s.exists(s.ColorPath(i))
}

// HasDepth reports whether the depth asset of frame i is present.
func (s *Store) HasDepth(i int) (bool, error) {
	return s.exists(s.DepthPath(i))
}

// RemoveColor deletes the color asset of frame i.
func (s *Store) RemoveColor(i int) error {
	return s.fs.Remove(s.ColorPath(i))
}

// RemoveDepth deletes the depth asset of frame i.
func (s *Store) RemoveDepth(i int) error {
	return s.fs.Remove(s.DepthPath(i))
}
