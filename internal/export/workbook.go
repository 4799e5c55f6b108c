package export

import (
	"fmt"
	"path"
	"strings"

	"github.com/hyperjump/ticktie/internal/models"
	"github.com/xuri/excelize/v2"
)

// Sheet names of the results workbook.
const (
	SheetResults = "Extraction Results"
	SheetTable   = "Reconciliation Table"
	SheetReport  = "Reconciliation Report"
	SheetCode    = "Analysis Code"
)

// Column headers of the results sheet that precede the per-field columns.
const (
	HeaderFileName = "File Name"
	HeaderStatus   = "Status"
)

// CoordsHeader is the header of a field's coordinate column.
func CoordsHeader(fieldName string) string {
	return fieldName + " (Coords)"
}

// ResultsHeader lists the results sheet columns for fields in registry order. Field columns use
// models.ColumnLabels so every header is distinct.
func ResultsHeader(fields []models.FieldDefinition) []string {
	header := make([]string, 0, 2+2*len(fields))
	header = append(header, HeaderFileName, HeaderStatus)
	reserved := []string{HeaderFileName, HeaderStatus}
	for _, f := range fields {
		reserved = append(reserved, CoordsHeader(f.Name))
	}
	for _, label := range models.ColumnLabels(fields, reserved...) {
		header = append(header, label, CoordsHeader(label))
	}
	return header
}

// ResultsRow is one document's row of the results sheet, aligned with ResultsHeader.
func ResultsRow(doc *models.Document, fileName string, fields []models.FieldDefinition) []any {
	row := make([]any, 0, 2+2*len(fields))
	row = append(row, fileName, string(doc.Status))
	for _, f := range fields {
		v, ok := doc.Data[f.Key]
		if !ok {
			row = append(row, "", "")
			continue
		}
		row = append(row, cellValue(v), v.Coords())
	}
	return row
}

// cellValue keeps numbers numeric so the sheet can total them.
func cellValue(v models.ExtractedValue) any {
	if f, ok := v.Value.(float64); ok {
		return f
	}
	return v.Text()
}

type workbook struct {
	f    *excelize.File
	bold int
}

// buildWorkbook writes the results sheet and, when result is non-nil, the reconciliation sheets.
// names holds each document's resolved archive name, index-aligned with docs.
func buildWorkbook(opts Options, fields []models.FieldDefinition, docs []*models.Document, names []string, result *models.ReconcileResult) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	wb := &workbook{f: f, bold: bold}

	if err := f.SetSheetName("Sheet1", SheetResults); err != nil {
		return nil, fmt.Errorf("rename results sheet: %w", err)
	}
	if err := wb.writeResults(opts.DocumentsDir, fields, docs, names); err != nil {
		return nil, err
	}

	if result != nil {
		if err := wb.writeReconciliation(opts.AllTables, *result); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func (wb *workbook) writeResults(dir string, fields []models.FieldDefinition, docs []*models.Document, names []string) error {
	header := ResultsHeader(fields)
	if err := wb.writeRow(SheetResults, 1, toAny(header)); err != nil {
		return err
	}
	if err := wb.styleHeader(SheetResults, len(header)); err != nil {
		return err
	}
	for i, doc := range docs {
		row := i + 2
		if err := wb.writeRow(SheetResults, row, ResultsRow(doc, names[i], fields)); err != nil {
			return err
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := wb.f.SetCellHyperLink(SheetResults, cell, path.Join(dir, names[i]), "External"); err != nil {
			return fmt.Errorf("link %s: %w", names[i], err)
		}
	}
	_ = wb.f.SetColWidth(SheetResults, "A", "A", 32) // file name
	_ = wb.f.SetColWidth(SheetResults, "B", "B", 12) // status
	if len(fields) > 0 {
		last, _ := excelize.ColumnNumberToName(len(header))
		_ = wb.f.SetColWidth(SheetResults, "C", last, 20)
	}
	return nil
}

func (wb *workbook) writeReconciliation(allTables bool, result models.ReconcileResult) error {
	var table [][]string
	if allTables {
		for i, t := range ParseTables(result.Report) {
			if i > 0 {
				table = append(table, nil)
			}
			table = append(table, t...)
		}
	} else {
		table = ParseFirstTable(result.Report)
	}
	if len(table) > 0 {
		if _, err := wb.f.NewSheet(SheetTable); err != nil {
			return fmt.Errorf("create %s sheet: %w", SheetTable, err)
		}
		for i, cells := range table {
			if err := wb.writeRow(SheetTable, i+1, toAny(cells)); err != nil {
				return err
			}
		}
		if err := wb.styleHeader(SheetTable, len(table[0])); err != nil {
			return err
		}
	}

	if err := wb.writeLines(SheetReport, result.Report, 100); err != nil {
		return err
	}
	if result.Code != "" {
		if err := wb.writeLines(SheetCode, result.Code, 120); err != nil {
			return err
		}
	}
	return nil
}

// writeLines puts text on its own sheet one line per row, which keeps every cell under the
// spreadsheet cell length limit and reproduces the text verbatim when rows are joined by "\n".
func (wb *workbook) writeLines(sheet, text string, width float64) error {
	if _, err := wb.f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create %s sheet: %w", sheet, err)
	}
	for i, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := wb.f.SetCellStr(sheet, cell, line); err != nil {
			return fmt.Errorf("write %s line %d: %w", sheet, i+1, err)
		}
	}
	_ = wb.f.SetColWidth(sheet, "A", "A", width)
	return nil
}

func (wb *workbook) writeRow(sheet string, row int, values []any) error {
	cell, _ := excelize.CoordinatesToCellName(1, row)
	if err := wb.f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func (wb *workbook) styleHeader(sheet string, cols int) error {
	if cols == 0 {
		return nil
	}
	last, _ := excelize.CoordinatesToCellName(cols, 1)
	return wb.f.SetCellStyle(sheet, "A1", last, wb.bold)
}

func toAny(cells []string) []any {
	out := make([]any, len(cells))
	for i, c := range cells {
		out[i] = c
	}
	return out
}
