package pdf

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/kirillkom/techsheet/internal/core/domain"
)

const maxColorSpaceDepth = 4

// objectResolver dereferences indirect objects; *model.XRefTable satisfies it.
type objectResolver interface {
	Dereference(o types.Object) (types.Object, error)
}

var familyAliases = map[string]string{
	"RGB":  FamilyDeviceRGB,
	"G":    FamilyDeviceGray,
	"CMYK": FamilyDeviceCMYK,
	"I":    FamilyIndexed,
}

func normalizeFamily(name string) string {
	if alias, ok := familyAliases[name]; ok {
		return alias
	}
	return name
}

// parseColorSpace resolves a /ColorSpace entry into a descriptor. A missing
// entry yields an empty family, which the decoder treats as RGB.
func parseColorSpace(r objectResolver, obj types.Object) (ColorSpace, error) {
	return parseColorSpaceDepth(r, obj, 0)
}

func parseColorSpaceDepth(r objectResolver, obj types.Object, depth int) (ColorSpace, error) {
	if depth > maxColorSpaceDepth {
		return ColorSpace{}, fmt.Errorf("%w: color space nesting too deep", domain.ErrUnsupportedColorSpace)
	}
	if obj == nil {
		return ColorSpace{}, nil
	}
	resolved, err := r.Dereference(obj)
	if err != nil {
		return ColorSpace{}, fmt.Errorf("%w: dereference color space: %w", domain.ErrDecode, err)
	}

	switch cs := resolved.(type) {
	case types.Name:
		return ColorSpace{Family: normalizeFamily(string(cs))}, nil
	case types.Array:
		return parseColorSpaceArray(r, cs, depth)
	default:
		return ColorSpace{}, fmt.Errorf("%w: color space object %T", domain.ErrUnsupportedColorSpace, resolved)
	}
}

func parseColorSpaceArray(r objectResolver, arr types.Array, depth int) (ColorSpace, error) {
	if len(arr) == 0 {
		return ColorSpace{}, fmt.Errorf("%w: empty color space array", domain.ErrUnsupportedColorSpace)
	}
	head, err := r.Dereference(arr[0])
	if err != nil {
		return ColorSpace{}, fmt.Errorf("%w: dereference color space tag: %w", domain.ErrDecode, err)
	}
	tag, ok := head.(types.Name)
	if !ok {
		return ColorSpace{}, fmt.Errorf("%w: color space tag %T", domain.ErrUnsupportedColorSpace, head)
	}
	family := normalizeFamily(string(tag))

	switch family {
	case FamilyIndexed:
		if len(arr) < 4 {
			return ColorSpace{}, fmt.Errorf("%w: indexed color space needs 4 entries, got %d", domain.ErrUnsupportedColorSpace, len(arr))
		}
		base, err := parseColorSpaceDepth(r, arr[1], depth+1)
		if err != nil {
			return ColorSpace{}, err
		}
		hival, err := intValue(r, arr[2])
		if err != nil {
			return ColorSpace{}, err
		}
		lookup, err := lookupBytes(r, arr[3])
		if err != nil {
			return ColorSpace{}, err
		}
		return ColorSpace{Family: FamilyIndexed, Base: &base, HiVal: hival, Lookup: lookup}, nil
	case FamilyICCBased:
		cs := ColorSpace{Family: FamilyICCBased, Components: 3}
		if len(arr) > 1 {
			if sd, err := streamDict(r, arr[1]); err == nil {
				if n := sd.IntEntry("N"); n != nil {
					cs.Components = *n
				}
			}
		}
		return cs, nil
	default:
		return ColorSpace{Family: family}, nil
	}
}

// lookupBytes reads an indexed lookup table from any of the shapes writers
// use for it.
func lookupBytes(r objectResolver, obj types.Object) ([]byte, error) {
	resolved, err := r.Dereference(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: dereference lookup table: %w", domain.ErrDecode, err)
	}
	switch v := resolved.(type) {
	case types.StreamDict:
		return decodedContent(&v)
	case *types.StreamDict:
		return decodedContent(v)
	case types.HexLiteral:
		b, err := v.Bytes()
		if err != nil {
			return nil, fmt.Errorf("%w: hex lookup table: %w", domain.ErrDecode, err)
		}
		return b, nil
	case types.StringLiteral:
		b, err := types.Unescape(v.Value())
		if err != nil {
			return nil, fmt.Errorf("%w: string lookup table: %w", domain.ErrDecode, err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: lookup table object %T", domain.ErrUnsupportedColorSpace, resolved)
	}
}

func decodedContent(sd *types.StreamDict) ([]byte, error) {
	if err := sd.Decode(); err != nil {
		return nil, fmt.Errorf("%w: decode stream: %w", domain.ErrDecode, err)
	}
	return sd.Content, nil
}

func streamDict(r objectResolver, obj types.Object) (*types.StreamDict, error) {
	resolved, err := r.Dereference(obj)
	if err != nil {
		return nil, err
	}
	switch v := resolved.(type) {
	case types.StreamDict:
		return &v, nil
	case *types.StreamDict:
		return v, nil
	default:
		return nil, fmt.Errorf("expected stream, got %T", resolved)
	}
}

func dictValue(r objectResolver, obj types.Object) (types.Dict, error) {
	if obj == nil {
		return nil, nil
	}
	resolved, err := r.Dereference(obj)
	if err != nil {
		return nil, err
	}
	d, ok := resolved.(types.Dict)
	if !ok {
		return nil, fmt.Errorf("expected dictionary, got %T", resolved)
	}
	return d, nil
}

func intValue(r objectResolver, obj types.Object) (int, error) {
	resolved, err := r.Dereference(obj)
	if err != nil {
		return 0, fmt.Errorf("%w: dereference integer: %w", domain.ErrDecode, err)
	}
	switch v := resolved.(type) {
	case types.Integer:
		return v.Value(), nil
	case types.Float:
		return int(v.Value()), nil
	default:
		return 0, fmt.Errorf("%w: expected number, got %T", domain.ErrDecode, resolved)
	}
}
