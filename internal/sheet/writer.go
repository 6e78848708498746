package sheet

import (
	"fmt"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/mark3labs/swagger2react/internal/merge"
	"github.com/mark3labs/swagger2react/internal/spec"
)

const (
	APIsFile    = "apis.xlsx"
	ModelsFile  = "models.xlsx"
	APIsSheet   = "apis"
	ModelsSheet = "models"
)

// Options controls Write.
type Options struct {
	DryRun bool
}

// Written describes one workbook.
type Written struct {
	Path    string
	Rows    int
	Size    int
	Changed bool
}

// Write renders apis.xlsx and models.xlsx into dir. Workbooks are replaced
// atomically and left alone when their bytes did not change.
func Write(dir string, m *spec.Model, opts Options) ([]Written, error) {
	apis := APIRows(m)
	apiCells := make([][]any, len(apis))
	for i, r := range apis {
		apiCells[i] = r.cells()
	}
	models := ModelRows(m)
	modelCells := make([][]any, len(models))
	for i, r := range models {
		modelCells[i] = r.cells()
	}

	var out []Written
	for _, wb := range []struct {
		file, sheet string
		header      []string
		rows        [][]any
	}{
		{APIsFile, APIsSheet, APIColumns, apiCells},
		{ModelsFile, ModelsSheet, ModelColumns, modelCells},
	} {
		content, err := Workbook(wb.sheet, wb.header, wb.rows)
		if err != nil {
			return out, fmt.Errorf("sheet: build %s: %w", wb.file, err)
		}
		w := Written{Path: filepath.Join(dir, wb.file), Rows: len(wb.rows), Size: len(content), Changed: true}
		if !opts.DryRun {
			changed, err := merge.WriteFile(w.Path, content)
			if err != nil {
				return out, fmt.Errorf("sheet: %w", err)
			}
			w.Changed = changed
		}
		out = append(out, w)
	}
	return out, nil
}

// Workbook encodes one sheet with a bold, frozen header row.
func Workbook(sheet string, header []string, rows [][]any) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, err
	}
	headerCells := make([]any, len(header))
	for i, h := range header {
		headerCells[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headerCells); err != nil {
		return nil, err
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return nil, err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		return nil, err
	}
	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return nil, err
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 20); err != nil {
		return nil, err
	}
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
