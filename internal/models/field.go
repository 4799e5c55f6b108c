package models

import "strconv"

// FieldDefinition is a user-declared extraction target.
type FieldDefinition struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Key   string `json:"key"`
	Color string `json:"color"`
}

// ColumnLabels returns one column label per field, in order. A field keeps its name unless an
// earlier label or one of reserved already uses it; then the key is appended ("Total (total_2)"),
// and a number after that if the result is still taken.
func ColumnLabels(fields []FieldDefinition, reserved ...string) []string {
	taken := make(map[string]bool, len(fields)+len(reserved))
	for _, r := range reserved {
		taken[r] = true
	}
	labels := make([]string, len(fields))
	for i, f := range fields {
		label := f.Name
		if taken[label] {
			label = f.Name + " (" + f.Key + ")"
		}
		base := label
		for n := 2; taken[label]; n++ {
			label = base + " " + strconv.Itoa(n)
		}
		taken[label] = true
		labels[i] = label
	}
	return labels
}
