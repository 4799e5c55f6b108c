package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperjump/ticktie/internal/models"
)

// ExtractionPrompt names every field and states the value and coordinate rules.
func ExtractionPrompt(fields []models.FieldDefinition) string {
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		lines = append(lines, fmt.Sprintf("- %s (key: %s)", f.Name, f.Key))
	}
	rules := []string{
		"Analyze the attached document and extract the following fields:",
		strings.Join(lines, "\n"),
		"",
		"For each field, locate its textual value in the document and the bounding box around that value.",
		"Return a single JSON object keyed by the field keys above; each entry is an object with \"value\" and \"box_2d\".",
		"If a field is not present in the document, set \"value\" to null.",
		"Give \"box_2d\" as [ymin, xmin, ymax, xmax] with every coordinate normalized to a 0-1000 scale of the page dimensions.",
		"Return only JSON.",
	}
	return strings.Join(rules, "\n")
}

// ReconcilePrompt embeds both datasets and the user's instructions in one prompt that asks the
// model to compare them by executing code.
func ReconcilePrompt(extracted, reference []models.Row, instructions string) (string, error) {
	extractedJSON, err := json.MarshalIndent(extracted, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal extracted rows: %w", err)
	}
	referenceJSON, err := json.MarshalIndent(reference, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal reference rows: %w", err)
	}
	instructions = strings.TrimSpace(instructions)
	if instructions == "" {
		instructions = "Match each extracted document to the reference data and report every discrepancy."
	}

	var b strings.Builder
	b.WriteString("You are an audit assistant performing a tick and tie reconciliation.\n\n")
	b.WriteString("DATASET 1 - values extracted from source documents (JSON array, one object per document):\n")
	b.Write(extractedJSON)
	b.WriteString("\n\nDATASET 2 - reference data (JSON array, one object per row):\n")
	b.Write(referenceJSON)
	b.WriteString("\n\nUSER INSTRUCTIONS:\n")
	b.WriteString(instructions)
	b.WriteString("\n\n")
	b.WriteString("Treat both datasets as structured tables. Write and execute Python code to load them, ")
	b.WriteString("perform the requested comparison or join, and compute the findings. ")
	b.WriteString("Format any tabular findings as a Markdown pipe table, then finish with a short prose summary.")
	return b.String(), nil
}
