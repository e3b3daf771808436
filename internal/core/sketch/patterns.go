package sketch

import (
	"strings"
	"unicode"
)

type patternRule struct {
	name        string
	keywords    []string
	instruction string
}

var patternRules = []patternRule{
	{
		name:        "stripes",
		keywords:    []string{"listra", "listras", "listrado", "listrada", "riscado", "riscas", "stripe", "stripes", "striped"},
		instruction: "Stripes: draw evenly spaced parallel lines following the stripe direction, no fills.",
	},
	{
		name:        "plaid",
		keywords:    []string{"xadrez", "plaid", "tartan", "check", "checked", "gingham", "vichy"},
		instruction: "Plaid/check: draw a perpendicular grid of thin lines at the check spacing, no color blocks.",
	},
	{
		name:        "polka-dot",
		keywords:    []string{"poá", "poa", "bolinha", "bolinhas", "polka", "dots", "dotted"},
		instruction: "Polka dots: draw small outlined circles in a regular repeat.",
	},
	{
		name:        "print",
		keywords:    []string{"estampa", "estampado", "estampada", "print", "printed", "floral"},
		instruction: "Print: draw a simplified outline motif repeated sparsely, never a photographic texture.",
	},
}

// patternInstructions returns the line-art conventions for every pattern
// named in the descriptors, in rule order.
func patternInstructions(descriptors ...string) []string {
	words := map[string]bool{}
	for _, d := range descriptors {
		for _, w := range strings.FieldsFunc(strings.ToLower(d), func(r rune) bool { return !unicode.IsLetter(r) }) {
			words[w] = true
		}
	}
	var out []string
	for _, rule := range patternRules {
		for _, kw := range rule.keywords {
			if words[kw] {
				out = append(out, rule.instruction)
				break
			}
		}
	}
	return out
}
