package thumbnail

import (
	"context"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// DefaultDPI keeps page rasters small; thumbnails are scaled down afterwards.
const DefaultDPI = 72

// Renderer rasterizes PDF pages with MuPDF.
type Renderer struct {
	dpi float64
}

func NewRenderer(dpi float64) *Renderer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Renderer{dpi: dpi}
}

func (r *Renderer) RenderFirstPage(ctx context.Context, path string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf for rendering: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("render first page: document has no pages")
	}
	img, err := doc.ImageDPI(0, r.dpi)
	if err != nil {
		return nil, fmt.Errorf("render first page: %w", err)
	}
	return img, nil
}
