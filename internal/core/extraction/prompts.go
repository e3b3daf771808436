package extraction

import (
	"fmt"
	"strings"

	"github.com/kirillkom/techsheet/internal/core/domain"
)

const maxFieldTextChars = 15000

const FieldSystemPrompt = "Você é um especialista em análise de fichas técnicas de vestuário. Extraia informações estruturadas e retorne SOMENTE em formato JSON válido, sem texto adicional."

const VisionSystemPrompt = "Você é um modelista técnico sênior especializado em leitura de peças de vestuário a partir de fotografias. Responda SOMENTE com um objeto JSON válido."

var anatomicalOrder = []string{
	"decote/gola",
	"carcela",
	"ombro",
	"cava",
	"manga",
	"punho",
	"corpo frente",
	"bolsos frente",
	"recortes e pences da frente",
	"barra",
	"costas",
	"decote costas/capuz",
	"centro costas",
	"recortes e pences das costas",
	"bolsos costas",
	"barra costas",
	"interior visível",
}

var crossCuttingSweep = []string{
	"fechamentos (botões, zíperes, amarrações, colchetes)",
	"pequenos aviamentos e ferragens (ilhoses, rebites, fivelas)",
	"tipos de costura e acabamento (pesponto, overloque, viés, bainha)",
	"silhueta e volume",
	"padronagem e textura do tecido",
	"etiquetas externas e aplicações",
	"assimetrias frente/costas e esquerda/direita",
}

// AnalysisSchemaTemplate renders the JSON object the vision model must fill.
func AnalysisSchemaTemplate() string {
	var b strings.Builder
	b.WriteString("{\n")
	for _, section := range domain.AnalysisSchema {
		fmt.Fprintf(&b, "  %q: {", section.Key)
		for i, attr := range section.Attributes {
			if i > 0 {
				b.WriteString(", ")
			}
			if attr == "confianca" {
				fmt.Fprintf(&b, "%q: 0.0", attr)
				continue
			}
			fmt.Fprintf(&b, "%q: \"\"", attr)
		}
		b.WriteString("},\n")
	}
	b.WriteString("  \"itens_nao_visiveis\": [],\n")
	b.WriteString("  \"checklist\": {")
	for i, key := range domain.ChecklistKeys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: false", key)
	}
	b.WriteString("}\n}")
	return b.String()
}

// BuildVisionPrompt returns the three-pass garment reading instruction.
func BuildVisionPrompt(imageCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Você recebeu %d imagem(ns) de uma peça de vestuário. Analise SOMENTE a peça mais proeminente da PRIMEIRA imagem; as demais imagens servem apenas de apoio para a mesma peça.\n", imageCount)
	b.WriteString("Ignore outras peças, pessoas, manequins, cabides e o fundo.\n\n")

	b.WriteString("PASSO 1 - CLASSIFICAÇÃO MACRO: identifique o tipo de peça, a categoria e o público.\n\n")

	b.WriteString("PASSO 2 - VARREDURA REGIONAL, nesta ordem exata:\n")
	for i, region := range anatomicalOrder {
		fmt.Fprintf(&b, "%d. %s\n", i+1, region)
	}
	b.WriteString("\n")

	b.WriteString("PASSO 3 - VARREDURA TRANSVERSAL por categoria de detalhe:\n")
	for _, item := range crossCuttingSweep {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	b.WriteString("\n")

	b.WriteString("REGRAS:\n")
	fmt.Fprintf(&b, "- Quando um atributo não puder ser determinado pela imagem, use exatamente %q. Nunca invente valores.\n", domain.NotVisible)
	b.WriteString("- Não informe medidas absolutas (cm, polegadas). Use comparações relativas (ex.: \"manga até o cotovelo\", \"decote raso\").\n")
	b.WriteString("- \"confianca\" é um número entre 0 e 1.\n")
	b.WriteString("- Liste em \"itens_nao_visiveis\" tudo o que ficou ambíguo ou oculto.\n")
	b.WriteString("- Marque no \"checklist\" cada passo concluído.\n\n")

	b.WriteString("Responda SOMENTE com um JSON neste formato:\n")
	b.WriteString(AnalysisSchemaTemplate())
	return b.String()
}

// BuildFieldPrompt enumerates every allow-listed field with its hints and
// appends the source text.
func BuildFieldPrompt(text string) string {
	text = strings.TrimSpace(text)
	if runes := []rune(text); len(runes) > maxFieldTextChars {
		text = string(runes[:maxFieldTextChars])
	}

	var b strings.Builder
	b.WriteString("Analise o seguinte texto de ficha técnica de vestuário e extraia as informações estruturadas em formato JSON.\n\n")
	b.WriteString("Retorne um único objeto JSON plano com exatamente estas chaves:\n")

	var group domain.FieldGroup
	for _, def := range domain.FieldTable() {
		if def.Group != group {
			group = def.Group
			fmt.Fprintf(&b, "\n%s:\n", group)
		}
		fmt.Fprintf(&b, "- %s: %s", def.Key, def.Description)
		if len(def.Synonyms) > 0 {
			fmt.Fprintf(&b, " (sinônimos: %s)", strings.Join(def.Synonyms, ", "))
		}
		switch def.Kind {
		case domain.FieldDate:
			b.WriteString(" [data YYYY-MM-DD]")
		case domain.FieldMeasurement:
			b.WriteString(" [medida: prefira o valor numérico]")
		}
		b.WriteString("\n")
	}

	b.WriteString("\nPara datas, use formato YYYY-MM-DD. Para medidas, prefira valores numéricos como aparecem no texto. ")
	b.WriteString("Se uma informação não estiver disponível, use null. Nunca invente valores.\n\n")
	b.WriteString("Texto da ficha técnica:\n")
	b.WriteString(text)
	return b.String()
}
