package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// NotVisible is the sentinel the vision model emits for attributes it could
// not determine.
const NotVisible = "não visível"

var notVisibleForms = map[string]struct{}{
	"não visível": {},
	"nao visivel": {},
	"não visivel": {},
	"nao visível": {},
	"not visible": {},
}

// IsNotVisible reports whether v is empty or a form of the sentinel.
func IsNotVisible(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return true
	}
	_, ok := notVisibleForms[v]
	return ok
}

// AnalysisSection describes one object of the visual analysis schema. The
// keys are the wire contract shared with the vision prompt.
type AnalysisSection struct {
	Key        string
	Label      string
	Attributes []string
}

// AnalysisSchema lists the sections in prompt and rendering order.
var AnalysisSchema = []AnalysisSection{
	{Key: "identificacao", Label: "IDENTIFICAÇÃO", Attributes: []string{"tipo_peca", "categoria", "genero", "confianca"}},
	{Key: "vistas", Label: "VISTAS", Attributes: []string{"frente", "costas", "observacao"}},
	{Key: "gola_decote", Label: "GOLA/DECOTE", Attributes: []string{"tipo", "formato", "profundidade_relativa", "acabamento", "detalhes"}},
	{Key: "mangas", Label: "MANGAS", Attributes: []string{"tipo", "comprimento", "modelagem", "punho", "cava", "detalhes"}},
	{Key: "corpo", Label: "CORPO", Attributes: []string{"silhueta", "comprimento_relativo", "ajuste", "recortes", "pences", "detalhes_frente", "detalhes_costas"}},
	{Key: "fechamentos", Label: "FECHAMENTOS", Attributes: []string{"tipo", "posicao", "quantidade", "material", "detalhes"}},
	{Key: "bolsos", Label: "BOLSOS", Attributes: []string{"presenca", "tipo", "quantidade", "posicao", "detalhes"}},
	{Key: "barra", Label: "BARRA", Attributes: []string{"tipo", "formato", "acabamento", "aberturas"}},
	{Key: "textura_padrao", Label: "TEXTURA/PADRÃO", Attributes: []string{"cor_principal", "cores_secundarias", "padrao", "descricao_padrao", "textura_tecido"}},
	{Key: "acabamentos_especiais", Label: "ACABAMENTOS ESPECIAIS", Attributes: []string{"costuras_aparentes", "pespontos", "aplicacoes", "etiquetas_externas", "outros"}},
	{Key: "diferencas_frente_costas", Label: "DIFERENÇAS FRENTE/COSTAS", Attributes: []string{"descricao", "assimetrias"}},
}

// ChecklistKeys are the boolean flags confirming each analysis pass ran.
var ChecklistKeys = []string{"classificacao_macro", "varredura_regional", "varredura_transversal"}

// Attr is a leaf of the analysis tree. Whatever JSON type the model used is
// kept as text.
type Attr string

func (a *Attr) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*a = Attr(StringifyValue(decoded))
	return nil
}

// GarmentAnalysis is the structured result of the vision pass.
type GarmentAnalysis struct {
	Sections   map[string]map[string]Attr
	NotVisible []string
	Checklist  map[string]bool
}

type garmentAnalysisWire map[string]json.RawMessage

func (g *GarmentAnalysis) UnmarshalJSON(data []byte) error {
	var wire garmentAnalysisWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	g.Sections = make(map[string]map[string]Attr, len(AnalysisSchema))
	for _, section := range AnalysisSchema {
		raw, ok := wire[section.Key]
		if !ok {
			continue
		}
		attrs := map[string]Attr{}
		if err := json.Unmarshal(raw, &attrs); err != nil {
			// a section given as a bare value is kept under its first attribute
			var single Attr
			if err2 := json.Unmarshal(raw, &single); err2 != nil {
				return err
			}
			attrs = map[string]Attr{section.Attributes[0]: single}
		}
		g.Sections[section.Key] = attrs
	}
	if raw, ok := wire["itens_nao_visiveis"]; ok {
		var items []Attr
		if err := json.Unmarshal(raw, &items); err == nil {
			for _, item := range items {
				if s := strings.TrimSpace(string(item)); s != "" {
					g.NotVisible = append(g.NotVisible, s)
				}
			}
		}
	}
	if raw, ok := wire["checklist"]; ok {
		var flags map[string]bool
		if err := json.Unmarshal(raw, &flags); err == nil {
			g.Checklist = flags
		}
	}
	return nil
}

func (g GarmentAnalysis) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(g.Sections)+2)
	for key, attrs := range g.Sections {
		out[key] = attrs
	}
	notVisible := g.NotVisible
	if notVisible == nil {
		notVisible = []string{}
	}
	out["itens_nao_visiveis"] = notVisible
	if g.Checklist != nil {
		out["checklist"] = g.Checklist
	}
	return json.Marshal(out)
}

// Value returns a leaf, "" when absent.
func (g *GarmentAnalysis) Value(section, attr string) string {
	if g == nil {
		return ""
	}
	return strings.TrimSpace(string(g.Sections[section][attr]))
}

// Visible returns a leaf only when it carries a determined value.
func (g *GarmentAnalysis) Visible(section, attr string) (string, bool) {
	v := g.Value(section, attr)
	if IsNotVisible(v) {
		return "", false
	}
	return v, true
}

// Confidence returns identificacao.confianca clamped to [0,1].
func (g *GarmentAnalysis) Confidence() float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(g.Value("identificacao", "confianca")), 64)
	if err != nil || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Populated reports whether at least one schema attribute carries a value.
func (g *GarmentAnalysis) Populated() bool {
	for _, section := range AnalysisSchema {
		for _, attr := range section.Attributes {
			if _, ok := g.Visible(section.Key, attr); ok {
				return true
			}
		}
	}
	return false
}

type AnalysisMode string

const (
	AnalysisNone       AnalysisMode = "none"
	AnalysisStructured AnalysisMode = "structured"
	AnalysisProse      AnalysisMode = "prose"
)

// VisualAnalysis is either a structured garment tree, the model's raw prose,
// or nothing at all.
type VisualAnalysis struct {
	Mode    AnalysisMode
	Garment *GarmentAnalysis
	Raw     string
}

func NoAnalysis() VisualAnalysis { return VisualAnalysis{Mode: AnalysisNone} }

func StructuredAnalysis(g *GarmentAnalysis, raw string) VisualAnalysis {
	return VisualAnalysis{Mode: AnalysisStructured, Garment: g, Raw: raw}
}

func ProseAnalysis(raw string) VisualAnalysis {
	return VisualAnalysis{Mode: AnalysisProse, Raw: raw}
}
