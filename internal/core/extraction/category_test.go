package extraction

import (
	"testing"

	"github.com/kirillkom/techsheet/internal/core/domain"
)

func TestGarmentLabelFallbackChain(t *testing.T) {
	structured := ParseVisualAnalysis(roundNeckAnswer)
	if got := GarmentLabel(structured); got != "blusa" {
		t.Fatalf("structured: expected blusa, got %q", got)
	}
	prose := domain.ProseAnalysis("Trata-se de um Vestido midi com alças finas.")
	if got := GarmentLabel(prose); got != "vestido" {
		t.Fatalf("prose: expected vestido, got %q", got)
	}
	unknown := domain.ProseAnalysis("Imagem escura, difícil de descrever.")
	if got := GarmentLabel(unknown); got != GenericGarmentLabel {
		t.Fatalf("unknown: expected generic label, got %q", got)
	}
	if got := GarmentLabel(domain.NoAnalysis()); got != GenericGarmentLabel {
		t.Fatalf("none: expected generic label, got %q", got)
	}
}

func TestEnrichFromAnalysisFillsOnlyEmptyFields(t *testing.T) {
	var f domain.Fields
	existing := "Blusa básica"
	f.Description = &existing

	analysis := ParseVisualAnalysis(`{
		"identificacao": {"tipo_peca": "blusa"},
		"gola_decote": {"tipo": "redonda"},
		"textura_padrao": {"cor_principal": "branco", "padrao": "listrado", "cores_secundarias": "não visível"},
		"fechamentos": {"tipo": "não visível"}
	}`)
	filled := EnrichFromAnalysis(&f, analysis)

	if *f.Description != "Blusa básica" {
		t.Fatalf("existing description must be kept, got %q", *f.Description)
	}
	if f.Colors == nil || *f.Colors != "branco, listrado" {
		t.Fatalf("expected colors from texture, got %v", f.Colors)
	}
	if f.OpeningsDetails != nil {
		t.Fatalf("not-visible attributes must not fill fields")
	}
	if len(filled) != 1 || filled[0] != "colors" {
		t.Fatalf("unexpected filled keys %v", filled)
	}
}
