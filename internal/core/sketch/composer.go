package sketch

import (
	"fmt"
	"strings"

	"github.com/kirillkom/techsheet/internal/core/domain"
	"github.com/kirillkom/techsheet/internal/core/extraction"
)

type Template string

const (
	TemplateDimensioned Template = "dimensioned"
	TemplateClean       Template = "clean"
)

// Prompt is an image-generation instruction and the template it used.
type Prompt struct {
	Template Template
	Text     string
}

// SelectTemplate picks the dimensioned template when any point of measure is
// populated.
func SelectTemplate(f *domain.Fields) Template {
	if f.HasMeasurements() {
		return TemplateDimensioned
	}
	return TemplateClean
}

var constructionFields = []string{"composition", "openings_details", "finishes", "tags_kit", "specific_details", "technical_drawing"}

// Compose builds the flat-sketch instruction for a specification. It is a
// pure function of its inputs.
func Compose(spec *domain.Specification, analysis domain.VisualAnalysis) Prompt {
	f := &spec.Fields
	template := SelectTemplate(f)
	label := garmentLabel(f, analysis)

	var b strings.Builder
	fmt.Fprintf(&b, "Technical flat sketch of a single %s for a garment technical sheet.\n", label)
	b.WriteString("Show the FRONT view and the BACK view side by side at the same scale, isolated on a plain white background.\n")
	b.WriteString("Black line art only: clean vector-style outlines, uniform line weight, dashed lines for topstitching, no shading, no color fills, no photorealism, no body, no mannequin, no hanger.\n")
	b.WriteString("Keep the garment symmetrical unless an asymmetry is described below.\n\n")

	writeGarment(&b, spec, label)
	writeConstruction(&b, f)
	writeVisualReference(&b, analysis)
	writePatterns(&b, f, analysis)

	switch template {
	case TemplateDimensioned:
		writePointsOfMeasure(&b, f)
	default:
		b.WriteString("DIMENSIONS:\n")
		b.WriteString("Do NOT draw any dimensions, measurement lines, arrows, numbers, callouts or text. Clean flat sketch only.\n")
	}

	return Prompt{Template: template, Text: strings.TrimRight(b.String(), "\n")}
}

func garmentLabel(f *domain.Fields, analysis domain.VisualAnalysis) string {
	label := extraction.GarmentLabel(analysis)
	if label == extraction.GenericGarmentLabel && f.Description != nil && strings.TrimSpace(*f.Description) != "" {
		return strings.TrimSpace(*f.Description)
	}
	return label
}

func writeGarment(b *strings.Builder, spec *domain.Specification, label string) {
	b.WriteString("GARMENT:\n")
	fmt.Fprintf(b, "- Type: %s\n", label)
	for _, key := range []string{"ref_souq", "description", "pilot_size"} {
		def, _ := domain.LookupField(key)
		if v := strings.TrimSpace(def.Get(&spec.Fields)); v != "" {
			fmt.Fprintf(b, "- %s: %s\n", def.Label, v)
		}
	}
	b.WriteString("\n")
}

func writeConstruction(b *strings.Builder, f *domain.Fields) {
	var lines []string
	for _, key := range constructionFields {
		def, _ := domain.LookupField(key)
		if v := strings.TrimSpace(def.Get(f)); v != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", def.Label, v))
		}
	}
	if len(lines) == 0 {
		return
	}
	b.WriteString("CONSTRUCTION DETAILS:\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\n")
}

func writeVisualReference(b *strings.Builder, analysis domain.VisualAnalysis) {
	switch analysis.Mode {
	case domain.AnalysisStructured:
		lines := analysisLines(analysis.Garment)
		if len(lines) == 0 {
			return
		}
		b.WriteString("VISUAL REFERENCE (from the photo analysis):\n")
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n\n")
	case domain.AnalysisProse:
		b.WriteString("VISUAL REFERENCE (notes from the photo analysis, verbatim):\n")
		b.WriteString(analysis.Raw)
		b.WriteString("\n\n")
	}
}

// analysisLines renders one labeled line per visible attribute. The views
// section and the confidence score describe the photo, not the garment.
func analysisLines(g *domain.GarmentAnalysis) []string {
	var lines []string
	for _, section := range domain.AnalysisSchema {
		if section.Key == "vistas" {
			continue
		}
		for _, attr := range section.Attributes {
			if attr == "confianca" {
				continue
			}
			v, ok := g.Visible(section.Key, attr)
			if !ok {
				continue
			}
			lines = append(lines, fmt.Sprintf("- %s · %s: %s", section.Label, strings.ReplaceAll(attr, "_", " "), v))
		}
	}
	return lines
}

func writePatterns(b *strings.Builder, f *domain.Fields, analysis domain.VisualAnalysis) {
	descriptors := []string{}
	if f.Colors != nil {
		descriptors = append(descriptors, *f.Colors)
	}
	if analysis.Mode == domain.AnalysisStructured {
		for _, attr := range []string{"padrao", "descricao_padrao", "cor_principal"} {
			if v, ok := analysis.Garment.Visible("textura_padrao", attr); ok {
				descriptors = append(descriptors, v)
			}
		}
	}
	instructions := patternInstructions(descriptors...)
	if len(instructions) == 0 {
		return
	}
	b.WriteString("PATTERN RENDERING (technical line-art convention, not a realistic texture):\n")
	for _, ins := range instructions {
		fmt.Fprintf(b, "- %s\n", ins)
	}
	b.WriteString("\n")
}

func writePointsOfMeasure(b *strings.Builder, f *domain.Fields) {
	poms := pointsOfMeasure(f)
	b.WriteString("POINTS OF MEASURE (POM):\n")
	for i, pom := range poms {
		fmt.Fprintf(b, "%d. %s (%s): %s %s, measured %s\n", i+1, pom.Name, pom.Label, pom.Value, pom.Unit, pom.Howto)
	}
	b.WriteString("Tolerance: ±0.5 cm on lengths up to 30 cm, ±1 cm on body lengths and widths.\n")
	b.WriteString("Draw every POM above as a thin dimension line with arrowheads and its number in a small circle, and add a numbered POM table beside the sketch. Do not invent any other measurement.\n")
}
