package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"sort"
	"strings"

	ledongthuc "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/kirillkom/techsheet/internal/core/domain"
)

const (
	filterDCT = "DCTDecode"
	filterJPX = "JPXDecode"

	maxFormDepth = 3
	maxTreeDepth = 32
)

// Extractor reads text with ledongthuc/pdf and walks image XObjects with
// pdfcpu.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractText concatenates the plain text of every page in page order. Pages
// that fail to parse are skipped; a document that cannot be opened yields "".
func (e *Extractor) ExtractText(ctx context.Context, path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: pdf text reader: %v", domain.ErrDecode, r)
		}
	}()

	f, reader, err := ledongthuc.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %w", domain.ErrDecode, err)
	}
	defer f.Close()

	var b strings.Builder
	var pageErrs []error
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			pageErrs = append(pageErrs, fmt.Errorf("page %d: %w", i, err))
			continue
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), errors.Join(pageErrs...)
}

// ExtractImages decodes every image XObject reachable from the page resources
// and returns them ranked by area. Images that fail to decode are reported in
// the joined error and left out; the rest are still returned.
func (e *Extractor) ExtractImages(ctx context.Context, path string) ([]domain.ImageCandidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pdfCtx, err := api.ReadContext(f, conf)
	if err != nil {
		return nil, fmt.Errorf("%w: read pdf: %w", domain.ErrDecode, err)
	}
	if err := pdfCtx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("%w: count pages: %w", domain.ErrDecode, err)
	}

	w := &imageWalker{xref: pdfCtx.XRefTable, seen: map[int]bool{}}
	for page := 1; page <= pdfCtx.PageCount; page++ {
		if err := ctx.Err(); err != nil {
			return domain.RankImages(w.candidates), err
		}
		resources, err := w.pageResources(page)
		if err != nil {
			w.errs = append(w.errs, fmt.Errorf("page %d resources: %w", page, err))
			continue
		}
		w.walkResources(page, resources, 0)
	}
	return domain.RankImages(w.candidates), errors.Join(w.errs...)
}

type imageWalker struct {
	xref       *model.XRefTable
	seen       map[int]bool
	candidates []domain.ImageCandidate
	errs       []error
}

// pageResources returns the resource dictionary the page declares, or the
// nearest ancestor's when the page has none. Entries are taken as declared,
// whether or not the content stream draws them.
func (w *imageWalker) pageResources(page int) (types.Dict, error) {
	pageDict, _, _, err := w.xref.PageDict(page, false)
	if err != nil {
		return nil, err
	}
	node := pageDict
	for depth := 0; node != nil && depth <= maxTreeDepth; depth++ {
		resources, err := dictValue(w.xref, node["Resources"])
		if err != nil {
			return nil, err
		}
		if len(resources) > 0 {
			return resources, nil
		}
		if node, err = dictValue(w.xref, node["Parent"]); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (w *imageWalker) walkResources(page int, resources types.Dict, depth int) {
	if resources == nil || depth > maxFormDepth {
		return
	}
	xobjects, err := dictValue(w.xref, resources["XObject"])
	if err != nil {
		w.errs = append(w.errs, fmt.Errorf("page %d xobjects: %w", page, err))
		return
	}

	names := make([]string, 0, len(xobjects))
	for name := range xobjects {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		obj := xobjects[name]
		if ref, ok := obj.(types.IndirectRef); ok {
			nr := ref.ObjectNumber.Value()
			if w.seen[nr] {
				continue
			}
			w.seen[nr] = true
		}
		sd, err := streamDict(w.xref, obj)
		if err != nil {
			w.errs = append(w.errs, fmt.Errorf("page %d %s: %w", page, name, err))
			continue
		}
		subtype := sd.NameEntry("Subtype")
		if subtype == nil {
			continue
		}
		switch *subtype {
		case "Image":
			if mask := sd.BooleanEntry("ImageMask"); mask != nil && *mask {
				continue
			}
			img, err := decodeXObject(w.xref, sd)
			if err != nil {
				w.errs = append(w.errs, fmt.Errorf("page %d %s: %w", page, name, err))
				continue
			}
			w.candidates = append(w.candidates, domain.NewImageCandidate(img, page, name))
		case "Form":
			formResources, err := dictValue(w.xref, sd.Dict["Resources"])
			if err != nil {
				w.errs = append(w.errs, fmt.Errorf("page %d form %s: %w", page, name, err))
				continue
			}
			w.walkResources(page, formResources, depth+1)
		}
	}
}

func decodeXObject(r objectResolver, sd *types.StreamDict) (image.Image, error) {
	width, err := intValue(r, sd.Dict["Width"])
	if err != nil {
		return nil, err
	}
	height, err := intValue(r, sd.Dict["Height"])
	if err != nil {
		return nil, err
	}

	if n := len(sd.FilterPipeline); n > 0 {
		switch sd.FilterPipeline[n-1].Name {
		case filterDCT:
			if n > 1 {
				return nil, fmt.Errorf("%w: DCTDecode behind %d other filters", domain.ErrDecode, n-1)
			}
			img, err := jpeg.Decode(bytes.NewReader(sd.Raw))
			if err != nil {
				return nil, fmt.Errorf("%w: jpeg: %w", domain.ErrDecode, err)
			}
			return img, nil
		case filterJPX:
			return nil, fmt.Errorf("%w: JPXDecode images are not supported", domain.ErrDecode)
		}
	}

	bpc := 8
	if obj, ok := sd.Dict["BitsPerComponent"]; ok {
		if bpc, err = intValue(r, obj); err != nil {
			return nil, err
		}
	}
	cs, err := parseColorSpace(r, sd.Dict["ColorSpace"])
	if err != nil {
		return nil, err
	}
	data, err := decodedContent(sd)
	if err != nil {
		return nil, err
	}
	return Decode(Params{Width: width, Height: height, BitsPerComponent: bpc, ColorSpace: cs}, data)
}
