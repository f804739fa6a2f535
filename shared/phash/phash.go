// Package phash computes coarse perceptual hashes of creative images.
//
// The image is downscaled to a grid×grid sample, alpha is discarded, samples
// are converted to grayscale and each bit records whether a sample is
// brighter than the mean, in raster order. The digest is the zero-padded
// lowercase hex encoding of those bits, so an 8×8 grid yields 16 hex chars.
package phash

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// DefaultGrid is the side of the sample grid.
const DefaultGrid = 8

// ErrInvalidGrid is returned for grids that do not produce whole 64-bit words.
var ErrInvalidGrid = errors.New("hash grid must be a positive multiple of 8")

// Hasher computes average hashes on a fixed grid.
type Hasher struct {
	grid int
}

// New creates a Hasher. grid must be a positive multiple of 8.
func New(grid int) (*Hasher, error) {
	if grid <= 0 || grid%8 != 0 {
		return nil, ErrInvalidGrid
	}
	return &Hasher{grid: grid}, nil
}

// Grid returns the grid side.
func (h *Hasher) Grid() int { return h.grid }

// HexLen is the digest length in hex characters.
func (h *Hasher) HexLen() int { return h.grid * h.grid / 4 }

// HashBytes decodes an encoded image (JPEG, PNG, GIF or WebP), applying EXIF
// orientation, and hashes it.
func (h *Hasher) HashBytes(data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	return h.HashImage(img)
}

// HashImage hashes a decoded image.
func (h *Hasher) HashImage(img image.Image) (string, error) {
	if img == nil || img.Bounds().Empty() {
		return "", errors.New("empty image")
	}
	opaque := stripAlpha(img)

	if h.grid == DefaultGrid {
		hash, err := goimagehash.AverageHash(opaque)
		if err != nil {
			return "", fmt.Errorf("average hash: %w", err)
		}
		return fmt.Sprintf("%016x", hash.GetHash()), nil
	}

	hash, err := goimagehash.ExtAverageHash(opaque, h.grid, h.grid)
	if err != nil {
		return "", fmt.Errorf("extended average hash: %w", err)
	}
	var sb strings.Builder
	for _, word := range hash.GetHash() {
		fmt.Fprintf(&sb, "%016x", word)
	}
	return sb.String(), nil
}

// stripAlpha returns an NRGBA copy with every pixel made fully opaque while
// keeping its color channels.
func stripAlpha(img image.Image) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out
}
