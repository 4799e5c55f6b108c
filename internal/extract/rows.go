package extract

import (
	"fmt"
	"strings"

	"github.com/hyperjump/ticktie/internal/models"
)

// toRows keys every record after the first by the header cells. Blank headers become
// "Column N", repeated headers get a numeric suffix. Empty cells are omitted and records with
// no cells at all are dropped.
func toRows(records [][]string) []models.Row {
	if len(records) == 0 {
		return nil
	}
	header := headerKeys(records[0])
	rows := make([]models.Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(models.Row, len(rec))
		for i, cell := range rec {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			row[columnKey(header, i)] = cell
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rows
}

func headerKeys(cells []string) []string {
	seen := make(map[string]int, len(cells))
	keys := make([]string, len(cells))
	for i, c := range cells {
		key := strings.TrimSpace(c)
		if key == "" {
			key = fmt.Sprintf("Column %d", i+1)
		}
		if n := seen[key]; n > 0 {
			seen[key] = n + 1
			key = fmt.Sprintf("%s_%d", key, n)
		} else {
			seen[key] = 1
		}
		keys[i] = key
	}
	return keys
}

// columnKey handles data rows wider than the header.
func columnKey(header []string, i int) string {
	if i < len(header) {
		return header[i]
	}
	return fmt.Sprintf("Column %d", i+1)
}
