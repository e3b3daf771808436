package domain

import (
	"image"
	"sort"
)

// ImageCandidate is one decoded image found in an upload.
type ImageCandidate struct {
	Image  image.Image
	Page   int
	Name   string
	Width  int
	Height int
}

func NewImageCandidate(img image.Image, page int, name string) ImageCandidate {
	b := img.Bounds()
	return ImageCandidate{Image: img, Page: page, Name: name, Width: b.Dx(), Height: b.Dy()}
}

func (c ImageCandidate) Area() int {
	return c.Width * c.Height
}

// RankImages orders candidates by pixel area, largest first. Index 0 is the
// reference image for every downstream stage.
func RankImages(candidates []ImageCandidate) []ImageCandidate {
	ranked := make([]ImageCandidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Area() > ranked[j].Area()
	})
	return ranked
}

// EncodedImage is an image prepared for transport to a model backend.
type EncodedImage struct {
	MIMEType string
	Data     []byte
}
