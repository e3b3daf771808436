package extraction

import (
	"strings"
	"unicode"

	"github.com/kirillkom/techsheet/internal/core/domain"
)

// GenericGarmentLabel is used when nothing better identifies the piece.
const GenericGarmentLabel = "peça de vestuário"

// garmentKeywords maps words found in prose answers to a garment label.
// Longer, more specific words come first.
var garmentKeywords = []struct {
	keyword string
	label   string
}{
	{"macacão", "macacão"},
	{"jumpsuit", "macacão"},
	{"moletom", "moletom"},
	{"hoodie", "moletom"},
	{"jaqueta", "jaqueta"},
	{"jacket", "jaqueta"},
	{"casaco", "casaco"},
	{"blazer", "blazer"},
	{"colete", "colete"},
	{"vestido", "vestido"},
	{"dress", "vestido"},
	{"saia", "saia"},
	{"skirt", "saia"},
	{"bermuda", "bermuda"},
	{"shorts", "shorts"},
	{"calça", "calça"},
	{"pants", "calça"},
	{"trousers", "calça"},
	{"camisa", "camisa"},
	{"shirt", "camisa"},
	{"camiseta", "camiseta"},
	{"t-shirt", "camiseta"},
	{"regata", "regata"},
	{"blusa", "blusa"},
	{"blouse", "blusa"},
	{"suéter", "suéter"},
	{"sweater", "suéter"},
	{"cardigã", "cardigã"},
	{"cardigan", "cardigã"},
	{"body", "body"},
	{"top", "top"},
}

// GarmentLabel names the garment using the structured identification, then a
// keyword scan of prose, then the generic label.
func GarmentLabel(a domain.VisualAnalysis) string {
	for _, try := range []func(domain.VisualAnalysis) (string, bool){
		labelFromIdentification,
		labelFromKeywords,
	} {
		if label, ok := try(a); ok {
			return label
		}
	}
	return GenericGarmentLabel
}

func labelFromIdentification(a domain.VisualAnalysis) (string, bool) {
	if a.Mode != domain.AnalysisStructured {
		return "", false
	}
	if v, ok := a.Garment.Visible("identificacao", "tipo_peca"); ok {
		return v, true
	}
	if v, ok := a.Garment.Visible("identificacao", "categoria"); ok {
		return v, true
	}
	return "", false
}

func labelFromKeywords(a domain.VisualAnalysis) (string, bool) {
	text := strings.ToLower(a.Raw)
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	words := strings.FieldsFunc(text, func(r rune) bool {
		return r != '-' && !unicode.IsLetter(r)
	})
	present := make(map[string]bool, len(words))
	for _, w := range words {
		present[w] = true
	}
	for _, kw := range garmentKeywords {
		if present[kw.keyword] {
			return kw.label, true
		}
	}
	return "", false
}
