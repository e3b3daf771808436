package domain

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Fields holds the classification fields of a specification. Every value is
// free-form text; measurements keep whatever unit the sheet used.
type Fields struct {
	RefSouq         *string `json:"ref_souq"`
	Description     *string `json:"description"`
	Collection      *string `json:"collection"`
	Supplier        *string `json:"supplier"`
	Corner          *string `json:"corner"`
	TargetPrice     *string `json:"target_price"`
	StoreMonth      *string `json:"store_month"`
	DeliveryCDMonth *string `json:"delivery_cd_month"`

	TechSheetDeliveryDate *string `json:"tech_sheet_delivery_date"`
	PilotDeliveryDate     *string `json:"pilot_delivery_date"`
	ShowcaseFor           *string `json:"showcase_for"`

	Stylists    *string `json:"stylists"`
	Composition *string `json:"composition"`
	Colors      *string `json:"colors"`
	TagsKit     *string `json:"tags_kit"`

	PilotSize          *string `json:"pilot_size"`
	BodyLength         *string `json:"body_length"`
	SleeveLength       *string `json:"sleeve_length"`
	HemWidth           *string `json:"hem_width"`
	ShoulderToShoulder *string `json:"shoulder_to_shoulder"`
	Bust               *string `json:"bust"`
	Waist              *string `json:"waist"`
	StraightArmhole    *string `json:"straight_armhole"`
	NecklineDepth      *string `json:"neckline_depth"`
	OpeningsDetails    *string `json:"openings_details"`
	Finishes           *string `json:"finishes"`

	TechnicalDrawing *string `json:"technical_drawing"`
	ReferencePhotos  *string `json:"reference_photos"`
	SpecificDetails  *string `json:"specific_details"`
}

type FieldKind int

const (
	FieldText FieldKind = iota
	FieldDate
	FieldMeasurement
)

type FieldGroup string

const (
	GroupIdentification FieldGroup = "Identificação da Peça"
	GroupCommercial     FieldGroup = "Informações Comerciais"
	GroupDeadlines      FieldGroup = "Prazos e Entregas"
	GroupTeam           FieldGroup = "Equipe Envolvida"
	GroupMaterials      FieldGroup = "Matéria-Prima e Aviamentos"
	GroupTechnical      FieldGroup = "Especificações Técnicas"
	GroupDesign         FieldGroup = "Design e Estilo"
)

// FieldDef is one entry of the allow-list that maps model output keys onto
// the record.
type FieldDef struct {
	Key         string
	Group       FieldGroup
	Label       string
	Description string
	Synonyms    []string
	Kind        FieldKind
	slot        func(*Fields) **string
}

// Get returns the stored value or "".
func (d FieldDef) Get(f *Fields) string {
	if p := *d.slot(f); p != nil {
		return *p
	}
	return ""
}

// Set stores value verbatim; an empty value clears the field.
func (d FieldDef) Set(f *Fields, value string) {
	if value == "" {
		*d.slot(f) = nil
		return
	}
	v := value
	*d.slot(f) = &v
}

var fieldTable = []FieldDef{
	{Key: "ref_souq", Group: GroupIdentification, Label: "Referência", Description: "código de referência da peça", Synonyms: []string{"REF", "referência", "código", "SKU"}, slot: func(f *Fields) **string { return &f.RefSouq }},
	{Key: "description", Group: GroupIdentification, Label: "Descrição", Description: "descrição curta da peça", Synonyms: []string{"nome da peça", "produto", "modelo"}, slot: func(f *Fields) **string { return &f.Description }},
	{Key: "collection", Group: GroupIdentification, Label: "Coleção", Description: "nome da coleção", Synonyms: []string{"coleção", "temporada", "season"}, slot: func(f *Fields) **string { return &f.Collection }},
	{Key: "supplier", Group: GroupIdentification, Label: "Fornecedor", Description: "fornecedor ou fabricante", Synonyms: []string{"fornecedor", "fábrica", "confecção", "vendor"}, slot: func(f *Fields) **string { return &f.Supplier }},
	{Key: "corner", Group: GroupIdentification, Label: "Corner", Description: "departamento ou corner de venda", Synonyms: []string{"departamento", "setor", "linha"}, slot: func(f *Fields) **string { return &f.Corner }},
	{Key: "target_price", Group: GroupCommercial, Label: "Preço alvo", Description: "preço alvo de venda ou custo", Synonyms: []string{"preço", "target", "custo alvo", "PV"}, slot: func(f *Fields) **string { return &f.TargetPrice }},
	{Key: "store_month", Group: GroupCommercial, Label: "Mês loja", Description: "mês de entrada em loja", Synonyms: []string{"mês de loja", "lançamento"}, slot: func(f *Fields) **string { return &f.StoreMonth }},
	{Key: "delivery_cd_month", Group: GroupCommercial, Label: "Mês entrega CD", Description: "mês de entrega no centro de distribuição", Synonyms: []string{"entrega CD", "mês CD"}, slot: func(f *Fields) **string { return &f.DeliveryCDMonth }},
	{Key: "tech_sheet_delivery_date", Group: GroupDeadlines, Label: "Entrega ficha técnica", Description: "data de entrega da ficha técnica", Synonyms: []string{"entrega FT", "prazo ficha"}, Kind: FieldDate, slot: func(f *Fields) **string { return &f.TechSheetDeliveryDate }},
	{Key: "pilot_delivery_date", Group: GroupDeadlines, Label: "Entrega piloto", Description: "data de entrega da peça piloto", Synonyms: []string{"entrega piloto", "prazo piloto"}, Kind: FieldDate, slot: func(f *Fields) **string { return &f.PilotDeliveryDate }},
	{Key: "showcase_for", Group: GroupDeadlines, Label: "Showcase para", Description: "evento ou vitrine de apresentação", Synonyms: []string{"showcase", "apresentação", "vitrine"}, slot: func(f *Fields) **string { return &f.ShowcaseFor }},
	{Key: "stylists", Group: GroupTeam, Label: "Estilistas", Description: "nomes dos estilistas responsáveis", Synonyms: []string{"estilista", "designer", "criação"}, slot: func(f *Fields) **string { return &f.Stylists }},
	{Key: "composition", Group: GroupMaterials, Label: "Composição", Description: "composição do tecido em percentuais", Synonyms: []string{"composição", "tecido", "material", "fibra"}, slot: func(f *Fields) **string { return &f.Composition }},
	{Key: "colors", Group: GroupMaterials, Label: "Cores", Description: "cores e estampas da peça", Synonyms: []string{"cor", "cores", "estampa", "padronagem"}, slot: func(f *Fields) **string { return &f.Colors }},
	{Key: "tags_kit", Group: GroupMaterials, Label: "Kit etiquetas e aviamentos", Description: "etiquetas, tags e aviamentos", Synonyms: []string{"aviamentos", "etiquetas", "botões", "zíper"}, slot: func(f *Fields) **string { return &f.TagsKit }},
	{Key: "pilot_size", Group: GroupTechnical, Label: "Tamanho piloto", Description: "tamanho da peça piloto", Synonyms: []string{"tamanho base", "grade piloto"}, slot: func(f *Fields) **string { return &f.PilotSize }},
	{Key: "body_length", Group: GroupTechnical, Label: "Comprimento corpo", Description: "comprimento total do corpo", Synonyms: []string{"comprimento", "altura do corpo", "length"}, Kind: FieldMeasurement, slot: func(f *Fields) **string { return &f.BodyLength }},
	{Key: "sleeve_length", Group: GroupTechnical, Label: "Comprimento manga", Description: "comprimento da manga", Synonyms: []string{"manga", "sleeve"}, Kind: FieldMeasurement, slot: func(f *Fields) **string { return &f.SleeveLength }},
	{Key: "hem_width", Group: GroupTechnical, Label: "Largura barra", Description: "largura da barra", Synonyms: []string{"barra", "boca", "hem"}, Kind: FieldMeasurement, slot: func(f *Fields) **string { return &f.HemWidth }},
	{Key: "shoulder_to_shoulder", Group: GroupTechnical, Label: "Ombro a ombro", Description: "largura de ombro a ombro", Synonyms: []string{"ombro", "ombros", "shoulder"}, Kind: FieldMeasurement, slot: func(f *Fields) **string { return &f.ShoulderToShoulder }},
	{Key: "bust", Group: GroupTechnical, Label: "Busto", Description: "medida do busto", Synonyms: []string{"busto", "peito", "tórax", "chest"}, Kind: FieldMeasurement, slot: func(f *Fields) **string { return &f.Bust }},
	{Key: "waist", Group: GroupTechnical, Label: "Cintura", Description: "medida da cintura", Synonyms: []string{"cintura", "cós", "waist"}, Kind: FieldMeasurement, slot: func(f *Fields) **string { return &f.Waist }},
	{Key: "straight_armhole", Group: GroupTechnical, Label: "Cava reta", Description: "medida da cava reta", Synonyms: []string{"cava", "armhole"}, Kind: FieldMeasurement, slot: func(f *Fields) **string { return &f.StraightArmhole }},
	{Key: "neckline_depth", Group: GroupTechnical, Label: "Profundidade decote", Description: "profundidade do decote", Synonyms: []string{"decote", "gola", "neckline"}, Kind: FieldMeasurement, slot: func(f *Fields) **string { return &f.NecklineDepth }},
	{Key: "openings_details", Group: GroupTechnical, Label: "Aberturas", Description: "detalhes de aberturas e fechamentos", Synonyms: []string{"abertura", "fenda", "fechamento", "carcela"}, slot: func(f *Fields) **string { return &f.OpeningsDetails }},
	{Key: "finishes", Group: GroupTechnical, Label: "Acabamentos", Description: "acabamentos e tipos de costura", Synonyms: []string{"acabamento", "costura", "pesponto", "overloque"}, slot: func(f *Fields) **string { return &f.Finishes }},
	{Key: "technical_drawing", Group: GroupDesign, Label: "Desenho técnico", Description: "observações sobre o desenho técnico", Synonyms: []string{"croqui", "desenho", "flat"}, slot: func(f *Fields) **string { return &f.TechnicalDrawing }},
	{Key: "reference_photos", Group: GroupDesign, Label: "Fotos de referência", Description: "observações sobre fotos de referência", Synonyms: []string{"referência visual", "foto"}, slot: func(f *Fields) **string { return &f.ReferencePhotos }},
	{Key: "specific_details", Group: GroupDesign, Label: "Detalhes específicos", Description: "detalhes de design e observações livres", Synonyms: []string{"observações", "detalhes", "obs"}, slot: func(f *Fields) **string { return &f.SpecificDetails }},
}

var fieldIndex = func() map[string]FieldDef {
	idx := make(map[string]FieldDef, len(fieldTable))
	for _, def := range fieldTable {
		idx[def.Key] = def
	}
	return idx
}()

// FieldTable returns the allow-list in display order.
func FieldTable() []FieldDef {
	out := make([]FieldDef, len(fieldTable))
	copy(out, fieldTable)
	return out
}

// LookupField finds an allow-listed field by wire key.
func LookupField(key string) (FieldDef, bool) {
	def, ok := fieldIndex[key]
	return def, ok
}

// MeasurementFields returns the point-of-measure fields in table order.
func MeasurementFields() []FieldDef {
	out := make([]FieldDef, 0, 8)
	for _, def := range fieldTable {
		if def.Kind == FieldMeasurement {
			out = append(out, def)
		}
	}
	return out
}

type RejectReason string

const (
	RejectUnknownField RejectReason = "unknown_field"
	RejectInvalidDate  RejectReason = "invalid_date"
)

type FieldRejection struct {
	Key    string
	Value  string
	Reason RejectReason
}

type MergeReport struct {
	Applied  []string
	Rejected []FieldRejection
}

var isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidDate reports whether value is a real calendar date in YYYY-MM-DD form.
func ValidDate(value string) bool {
	if !isoDatePattern.MatchString(value) {
		return false
	}
	_, err := time.Parse("2006-01-02", value)
	return err == nil
}

// ApplyModelFields merges model output into f through the allow-list. Keys are
// processed in sorted order so the report is deterministic.
func ApplyModelFields(f *Fields, values map[string]any) MergeReport {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var report MergeReport
	for _, key := range keys {
		def, ok := LookupField(key)
		if !ok {
			report.Rejected = append(report.Rejected, FieldRejection{Key: key, Value: StringifyValue(values[key]), Reason: RejectUnknownField})
			continue
		}
		value := StringifyValue(values[key])
		if value == "" {
			continue
		}
		if def.Kind == FieldDate && !ValidDate(value) {
			report.Rejected = append(report.Rejected, FieldRejection{Key: key, Value: value, Reason: RejectInvalidDate})
			continue
		}
		def.Set(f, value)
		report.Applied = append(report.Applied, key)
	}
	return report
}

// StringifyValue flattens a decoded JSON value into the text form stored on
// the record. null yields "".
func StringifyValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := StringifyValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

// HasMeasurements reports whether any point-of-measure field is populated.
func (f *Fields) HasMeasurements() bool {
	for _, def := range MeasurementFields() {
		if strings.TrimSpace(def.Get(f)) != "" {
			return true
		}
	}
	return false
}
