package pdf

import (
	"fmt"
	"image"
	"image/color"

	"github.com/kirillkom/techsheet/internal/core/domain"
)

// Color space families understood by the decoder. Inline-image abbreviations
// are normalized to these names by parseColorSpace.
const (
	FamilyDeviceRGB  = "DeviceRGB"
	FamilyDeviceGray = "DeviceGray"
	FamilyDeviceCMYK = "DeviceCMYK"
	FamilyIndexed    = "Indexed"
	FamilyICCBased   = "ICCBased"
	FamilyCalRGB     = "CalRGB"
	FamilyCalGray    = "CalGray"
)

const paletteSize = 256

// ColorSpace is a resolved color space descriptor. Indirect references and
// lookup tables are already dereferenced.
type ColorSpace struct {
	Family     string
	Components int
	Base       *ColorSpace
	HiVal      int
	Lookup     []byte
}

// Params describes one image XObject after its filters were applied.
type Params struct {
	Width            int
	Height           int
	BitsPerComponent int
	ColorSpace       ColorSpace
}

type decodeFunc func(p Params, data []byte) (image.Image, error)

var decoders = map[string]decodeFunc{
	FamilyDeviceRGB:  decodeRGB,
	FamilyCalRGB:     decodeRGB,
	FamilyDeviceGray: decodeGray,
	FamilyCalGray:    decodeGray,
	FamilyDeviceCMYK: decodeCMYK,
	FamilyIndexed:    decodeIndexed,
	FamilyICCBased:   decodeICCBased,
}

// Decode turns filtered image samples into a raster. Unknown families fall
// back to an RGB interpretation.
func Decode(p Params, data []byte) (image.Image, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("%w: invalid dimensions %dx%d", domain.ErrDecode, p.Width, p.Height)
	}
	if p.BitsPerComponent == 0 {
		p.BitsPerComponent = 8
	}
	fn, ok := decoders[p.ColorSpace.Family]
	if !ok {
		fn = decodeRGB
	}
	img, err := fn(p, data)
	if err != nil {
		return nil, err
	}
	return img, nil
}

func decodeRGB(p Params, data []byte) (image.Image, error) {
	samples, err := unpackSamples(data, p.Width, p.Height, 3, p.BitsPerComponent, true)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	for i := 0; i < p.Width*p.Height; i++ {
		img.Pix[i*4] = samples[i*3]
		img.Pix[i*4+1] = samples[i*3+1]
		img.Pix[i*4+2] = samples[i*3+2]
		img.Pix[i*4+3] = 0xff
	}
	return img, nil
}

func decodeGray(p Params, data []byte) (image.Image, error) {
	samples, err := unpackSamples(data, p.Width, p.Height, 1, p.BitsPerComponent, true)
	if err != nil {
		return nil, err
	}
	img := image.NewGray(image.Rect(0, 0, p.Width, p.Height))
	copy(img.Pix, samples)
	return img, nil
}

func decodeCMYK(p Params, data []byte) (image.Image, error) {
	samples, err := unpackSamples(data, p.Width, p.Height, 4, p.BitsPerComponent, true)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	for i := 0; i < p.Width*p.Height; i++ {
		r, g, b := color.CMYKToRGB(samples[i*4], samples[i*4+1], samples[i*4+2], samples[i*4+3])
		img.Pix[i*4] = r
		img.Pix[i*4+1] = g
		img.Pix[i*4+2] = b
		img.Pix[i*4+3] = 0xff
	}
	return img, nil
}

func decodeICCBased(p Params, data []byte) (image.Image, error) {
	switch p.ColorSpace.Components {
	case 1:
		return decodeGray(p, data)
	case 4:
		return decodeCMYK(p, data)
	default:
		return decodeRGB(p, data)
	}
}

func decodeIndexed(p Params, data []byte) (image.Image, error) {
	palette, err := buildPalette(p.ColorSpace)
	if err != nil {
		return nil, err
	}
	indexes, err := unpackSamples(data, p.Width, p.Height, 1, p.BitsPerComponent, false)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	for i, idx := range indexes[:p.Width*p.Height] {
		entry := palette[idx]
		img.Pix[i*4] = entry[0]
		img.Pix[i*4+1] = entry[1]
		img.Pix[i*4+2] = entry[2]
		img.Pix[i*4+3] = 0xff
	}
	return img, nil
}

// buildPalette expands the lookup table into 256 RGB entries. Entries past
// hival or past the end of a short table stay black.
func buildPalette(cs ColorSpace) ([paletteSize][3]uint8, error) {
	var palette [paletteSize][3]uint8
	base := FamilyDeviceRGB
	comps := 3
	if cs.Base != nil {
		base = cs.Base.Family
		comps = componentsOf(*cs.Base)
	}
	if comps == 0 {
		return palette, fmt.Errorf("%w: indexed base %q", domain.ErrUnsupportedColorSpace, base)
	}

	flat := make([]byte, paletteSize*comps)
	n := (cs.HiVal + 1) * comps
	if n > len(flat) {
		n = len(flat)
	}
	if n > len(cs.Lookup) {
		n = len(cs.Lookup)
	}
	copy(flat, cs.Lookup[:n])

	for i := 0; i < paletteSize; i++ {
		entry := flat[i*comps : (i+1)*comps]
		switch comps {
		case 1:
			palette[i] = [3]uint8{entry[0], entry[0], entry[0]}
		case 4:
			r, g, b := color.CMYKToRGB(entry[0], entry[1], entry[2], entry[3])
			palette[i] = [3]uint8{r, g, b}
		default:
			palette[i] = [3]uint8{entry[0], entry[1], entry[2]}
		}
	}
	return palette, nil
}

func componentsOf(cs ColorSpace) int {
	switch cs.Family {
	case FamilyDeviceGray, FamilyCalGray:
		return 1
	case FamilyDeviceCMYK:
		return 4
	case FamilyICCBased:
		if cs.Components == 1 || cs.Components == 3 || cs.Components == 4 {
			return cs.Components
		}
		return 3
	case FamilyIndexed:
		return 0
	default:
		return 3
	}
}

// unpackSamples expands packed rows into one byte per sample. Rows are padded
// to a byte boundary. With scale set, sub-byte samples are stretched to 0-255;
// otherwise they are returned raw, as palette indexes are.
func unpackSamples(data []byte, width, height, comps, bpc int, scale bool) ([]uint8, error) {
	switch bpc {
	case 1, 2, 4, 8, 16:
	default:
		return nil, fmt.Errorf("%w: unsupported bits per component %d", domain.ErrDecode, bpc)
	}
	rowBytes := (width*comps*bpc + 7) / 8
	if len(data) < rowBytes*height {
		return nil, fmt.Errorf("%w: short sample data: have %d bytes, need %d", domain.ErrDecode, len(data), rowBytes*height)
	}
	perRow := width * comps
	if bpc == 8 {
		return data[:perRow*height], nil
	}

	out := make([]uint8, perRow*height)
	maxVal := (1 << bpc) - 1
	for y := 0; y < height; y++ {
		row := data[y*rowBytes : (y+1)*rowBytes]
		for x := 0; x < perRow; x++ {
			var v int
			if bpc == 16 {
				v = int(row[x*2])
				out[y*perRow+x] = uint8(v)
				continue
			}
			bit := x * bpc
			v = int(row[bit/8]>>(8-bpc-bit%8)) & maxVal
			if scale {
				v = v * 255 / maxVal
			}
			out[y*perRow+x] = uint8(v)
		}
	}
	return out, nil
}
