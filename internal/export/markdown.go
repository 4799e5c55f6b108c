package export

import (
	"regexp"
	"strings"
)

var separatorCell = regexp.MustCompile(`^:?-+:?$`)

// ParseFirstTable returns the rows of the first pipe-delimited Markdown table in text, header
// first and without the separator row. The table ends at the first blank line after it; a line
// without pipes before that blank line is skipped, not read as a row. It returns nil when text
// holds no table.
func ParseFirstTable(text string) [][]string {
	tables := parseTables(text, 1)
	if len(tables) == 0 {
		return nil
	}
	return tables[0]
}

// ParseTables returns every pipe-delimited Markdown table in text, in order. Tables are delimited
// the same way as in ParseFirstTable.
func ParseTables(text string) [][][]string {
	return parseTables(text, -1)
}

func parseTables(text string, limit int) [][][]string {
	var (
		tables  [][][]string
		current [][]string
	)
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case isTableLine(line):
			if cells := splitRow(line); !isSeparator(cells) {
				current = append(current, cells)
			}
		case line == "":
			if len(current) > 0 {
				tables = append(tables, current)
				current = nil
			}
		}
		if limit > 0 && len(tables) >= limit {
			return tables
		}
	}
	if len(current) > 0 {
		tables = append(tables, current)
	}
	return tables
}

func isTableLine(line string) bool {
	return strings.HasPrefix(line, "|") && strings.Count(line, "|") >= 2
}

// splitRow splits a table line into trimmed cells. An escaped "\|" stays inside its cell.
func splitRow(line string) []string {
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	var (
		cells []string
		cell  strings.Builder
	)
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '\\' && i+1 < len(line) && line[i+1] == '|':
			cell.WriteByte('|')
			i++
		case line[i] == '|':
			cells = append(cells, strings.TrimSpace(cell.String()))
			cell.Reset()
		default:
			cell.WriteByte(line[i])
		}
	}
	return append(cells, strings.TrimSpace(cell.String()))
}

func isSeparator(cells []string) bool {
	for _, c := range cells {
		if !separatorCell.MatchString(strings.ReplaceAll(c, " ", "")) {
			return false
		}
	}
	return len(cells) > 0
}
