package extraction

import (
	"strings"

	"github.com/kirillkom/techsheet/internal/core/domain"
)

// enrichment derives one classification field from visible analysis
// attributes, joined in order.
type enrichment struct {
	field string
	from  [][2]string
}

var enrichments = []enrichment{
	{field: "colors", from: [][2]string{{"textura_padrao", "cor_principal"}, {"textura_padrao", "cores_secundarias"}, {"textura_padrao", "padrao"}}},
	{field: "openings_details", from: [][2]string{{"fechamentos", "tipo"}, {"fechamentos", "posicao"}, {"fechamentos", "detalhes"}}},
	{field: "finishes", from: [][2]string{{"barra", "acabamento"}, {"acabamentos_especiais", "pespontos"}, {"acabamentos_especiais", "costuras_aparentes"}}},
	{field: "specific_details", from: [][2]string{{"diferencas_frente_costas", "descricao"}, {"acabamentos_especiais", "aplicacoes"}}},
}

// EnrichFromAnalysis fills fields the text pass left empty using a structured
// analysis. It returns the keys it filled.
func EnrichFromAnalysis(f *domain.Fields, a domain.VisualAnalysis) []string {
	if a.Mode != domain.AnalysisStructured || a.Garment == nil {
		return nil
	}
	var filled []string
	set := func(key, value string) {
		def, ok := domain.LookupField(key)
		if !ok || value == "" || def.Get(f) != "" {
			return
		}
		def.Set(f, value)
		filled = append(filled, key)
	}

	if label, ok := labelFromIdentification(a); ok {
		description := label
		if neck, ok := a.Garment.Visible("gola_decote", "tipo"); ok {
			description += ", gola " + neck
		}
		if sleeve, ok := a.Garment.Visible("mangas", "comprimento"); ok {
			description += ", manga " + sleeve
		}
		set("description", description)
	}
	for _, e := range enrichments {
		var parts []string
		for _, src := range e.from {
			if v, ok := a.Garment.Visible(src[0], src[1]); ok {
				parts = append(parts, v)
			}
		}
		set(e.field, strings.Join(parts, ", "))
	}
	return filled
}
