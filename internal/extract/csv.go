package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/hyperjump/ticktie/internal/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func readCSVRows(content []byte) ([]models.Row, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(content, utf8BOM)))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse CSV: %w", err)
	}
	return toRows(records), nil
}
