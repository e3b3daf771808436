package imageio

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/kirillkom/techsheet/internal/core/domain"
)

const (
	DefaultMaxModelSide   = 1536
	DefaultThumbnailWidth = 300
	jpegQuality           = 90
)

// Codec loads uploaded photographs and re-encodes images for model calls,
// product photos and thumbnails.
type Codec struct {
	maxModelSide   int
	thumbnailWidth int
}

func NewCodec(maxModelSide, thumbnailWidth int) *Codec {
	if maxModelSide <= 0 {
		maxModelSide = DefaultMaxModelSide
	}
	if thumbnailWidth <= 0 {
		thumbnailWidth = DefaultThumbnailWidth
	}
	return &Codec{maxModelSide: maxModelSide, thumbnailWidth: thumbnailWidth}
}

// Load decodes a jpeg, png, gif or webp file.
func (c *Codec) Load(_ context.Context, path string) (domain.ImageCandidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.ImageCandidate{}, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return domain.ImageCandidate{}, fmt.Errorf("%w: decode image: %w", domain.ErrDecode, err)
	}
	return domain.NewImageCandidate(img, 1, filepath.Base(path)), nil
}

// EncodeForModel downsizes large images and encodes them as JPEG.
func (c *Codec) EncodeForModel(img image.Image) (domain.EncodedImage, error) {
	scaled := fitWithin(img, c.maxModelSide)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return domain.EncodedImage{}, fmt.Errorf("encode jpeg: %w", err)
	}
	return domain.EncodedImage{MIMEType: "image/jpeg", Data: buf.Bytes()}, nil
}

func (c *Codec) EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Thumbnail scales img to the configured width keeping the aspect ratio.
func (c *Codec) Thumbnail(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() <= c.thumbnailWidth {
		return img
	}
	height := b.Dy() * c.thumbnailWidth / b.Dx()
	if height < 1 {
		height = 1
	}
	return scale(img, c.thumbnailWidth, height)
}

func fitWithin(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSide && h <= maxSide {
		return img
	}
	if w >= h {
		h = max(1, h*maxSide/w)
		w = maxSide
	} else {
		w = max(1, w*maxSide/h)
		h = maxSide
	}
	return scale(img, w, h)
}

func scale(img image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}
