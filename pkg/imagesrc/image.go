// Package imagesrc decodes, holds and transforms the images that become
// card symbols.
//
// The [Provider] interface is the seam between the layout kernel and real
// bitmaps: the pipeline only needs an aspect ratio per image to pack cards,
// and the renderers need a (possibly rotated) bitmap to draw. [ImagingProvider]
// implements it with github.com/disintegration/imaging and registers the
// golang.org/x/image decoders, so PNG, JPEG, GIF, BMP, TIFF and WebP inputs
// are all accepted.
//
// A [Pool] is the mutable collection a user edits (add, remove, clear). A
// generation never reads the pool directly; it works on a [Pool.Snapshot].
package imagesrc

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/matzehuels/spotmatch/pkg/errors"
)

// Image is a decoded pool image. Images are immutable once decoded.
type Image struct {
	ID          string      // unique handle within a process
	Name        string      // source file name
	Digest      string      // sha256 of the encoded bytes
	Width       int         // source width in pixels
	Height      int         // source height in pixels
	AspectRatio float64     // Height / Width
	Bitmap      image.Image // decoded pixels
}

// Provider decodes and rotates images.
type Provider interface {
	// Decode turns encoded bytes into an Image. Failures carry DECODE_FAILED.
	Decode(name string, data []byte) (*Image, error)

	// Rotate returns the bitmap of img rotated clockwise by degrees. The
	// result is the bounding box of the rotated bitmap with a transparent
	// background. Failures carry ROTATE_FAILED.
	Rotate(img *Image, degrees float64) (image.Image, error)
}

// ImagingProvider is the default [Provider].
type ImagingProvider struct {
	// MaxSide downsizes decoded bitmaps so their longer side is at most
	// MaxSide pixels. Zero keeps the original size.
	MaxSide int
}

// NewImagingProvider returns a provider that keeps bitmaps at most maxSide
// pixels on their longer side.
func NewImagingProvider(maxSide int) *ImagingProvider {
	return &ImagingProvider{MaxSide: maxSide}
}

// Decode implements [Provider]. EXIF orientation is applied, so photos
// taken in portrait mode get the aspect ratio they are displayed with.
func (p *ImagingProvider) Decode(name string, data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, errors.New(errors.ErrCodeDecode, "%s: empty file", name)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDecode, err, "decode %s", name)
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, errors.New(errors.ErrCodeDecode, "%s: image has no pixels", name)
	}
	if p.MaxSide > 0 && max(b.Dx(), b.Dy()) > p.MaxSide {
		img = imaging.Fit(img, p.MaxSide, p.MaxSide, imaging.Lanczos)
	}

	sum := sha256.Sum256(data)
	return &Image{
		ID:          uuid.NewString(),
		Name:        name,
		Digest:      hex.EncodeToString(sum[:]),
		Width:       b.Dx(),
		Height:      b.Dy(),
		AspectRatio: float64(b.Dy()) / float64(b.Dx()),
		Bitmap:      img,
	}, nil
}

// Rotate implements [Provider].
func (p *ImagingProvider) Rotate(img *Image, degrees float64) (image.Image, error) {
	if img == nil || img.Bitmap == nil {
		return nil, errors.New(errors.ErrCodeRotate, "rotate: no bitmap")
	}
	// imaging rotates counter-clockwise.
	return imaging.Rotate(img.Bitmap, -degrees, color.Transparent), nil
}

// EncodePNG encodes a bitmap as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode png")
	}
	return buf.Bytes(), nil
}

// Index maps image IDs to images.
func Index(images []*Image) map[string]*Image {
	m := make(map[string]*Image, len(images))
	for _, img := range images {
		m[img.ID] = img
	}
	return m
}
