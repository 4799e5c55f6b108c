package extract

import (
	"bytes"
	"fmt"

	"github.com/hyperjump/ticktie/internal/models"
	"github.com/xuri/excelize/v2"
)

func readExcelRows(content []byte) ([]models.Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheets[0], err)
	}
	return toRows(rows), nil
}
