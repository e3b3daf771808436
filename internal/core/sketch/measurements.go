package sketch

import (
	"regexp"
	"strings"

	"github.com/kirillkom/techsheet/internal/core/domain"
)

const defaultUnit = "cm"

var unitSuffix = regexp.MustCompile(`(?i)^(.*?\d)\s*(cm|mm|m|in|inch|inches|pol|")\.?$`)

// NormalizeMeasurement strips a trailing unit token from a stored measurement
// and returns the remaining value and the unit, "cm" when none was given.
// The value is kept as text.
func NormalizeMeasurement(raw string) (value, unit string) {
	raw = strings.TrimSpace(raw)
	m := unitSuffix.FindStringSubmatch(raw)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return raw, defaultUnit
	}
	unit = strings.ToLower(m[2])
	switch unit {
	case "inch", "inches", `"`, "pol":
		unit = "in"
	}
	return strings.TrimSpace(m[1]), unit
}

type pointOfMeasure struct {
	Name  string
	Howto string
	Value string
	Unit  string
	Label string
}

var pomNames = map[string][2]string{
	"body_length":          {"Body length", "from high point shoulder to hem"},
	"sleeve_length":        {"Sleeve length", "from shoulder point to cuff edge"},
	"hem_width":            {"Hem width", "straight across the hem edge"},
	"shoulder_to_shoulder": {"Shoulder to shoulder", "between shoulder points"},
	"bust":                 {"Bust", "straight across 2.5 cm below armhole"},
	"waist":                {"Waist", "straight across at the narrowest point"},
	"straight_armhole":     {"Armhole straight", "from shoulder point to underarm"},
	"neckline_depth":       {"Neckline depth", "from high point shoulder line to neckline center"},
}

// pointsOfMeasure lists the populated measurement fields in table order.
func pointsOfMeasure(f *domain.Fields) []pointOfMeasure {
	var poms []pointOfMeasure
	for _, def := range domain.MeasurementFields() {
		raw := strings.TrimSpace(def.Get(f))
		if raw == "" {
			continue
		}
		value, unit := NormalizeMeasurement(raw)
		names := pomNames[def.Key]
		poms = append(poms, pointOfMeasure{Name: names[0], Howto: names[1], Value: value, Unit: unit, Label: def.Label})
	}
	return poms
}
