// Package xlsx renders a specification as a one-sheet workbook.
package xlsx

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/techsheet/internal/core/domain"
)

const SheetName = "Ficha Técnica"

var header = []string{"Grupo", "Campo", "Chave", "Valor"}

// Write encodes spec as XLSX into w.
func Write(w io.Writer, spec *domain.Specification) error {
	f, err := Build(spec)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Build lays out one row per classification field followed by the record
// status rows.
func Build(spec *domain.Specification) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	rows := [][]any{toRow(header)}
	for _, def := range domain.FieldTable() {
		rows = append(rows, []any{string(def.Group), def.Label, def.Key, def.Get(&spec.Fields)})
	}
	rows = append(rows, statusRows(spec)...)

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if err := decorate(f, len(rows)); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func statusRows(spec *domain.Specification) [][]any {
	drawing := ""
	if spec.Drawing != nil {
		drawing = spec.Drawing.Value
	}
	const group = "Registro"
	return [][]any{
		{group, "Identificador", "id", spec.ID},
		{group, "Arquivo", "source_filename", spec.SourceFilename},
		{group, "Status do processamento", "processing_status", string(spec.ProcessingStatus)},
		{group, "Status do desenho", "sketch_generation_status", string(spec.SketchStatus)},
		{group, "Desenho técnico", "technical_drawing_reference", drawing},
		{group, "Atualizado em", "updated_at", spec.UpdatedAt.UTC().Format("2006-01-02 15:04:05")},
	}
}

func decorate(f *excelize.File, rowCount int) error {
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "D1", bold); err != nil {
		return err
	}
	wrap, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})
	if err != nil {
		return fmt.Errorf("create value style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(4, rowCount)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "D2", last, wrap); err != nil {
		return err
	}
	for col, width := range map[string]float64{"A": 28, "B": 26, "C": 26, "D": 60} {
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return err
		}
	}
	return f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func toRow(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
