package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/hyperjump/ticktie/internal/models"
	"github.com/hyperjump/ticktie/pkg/utils"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("empty model response")

// ParseExtraction decodes the model's JSON answer and validates it key by key against fields.
// The payload must be a JSON object; every field key maps to a value in the result, and an
// absent or malformed entry becomes models.NotFound(). Keys the model invented are dropped.
func ParseExtraction(text string, fields []models.FieldDefinition) (map[string]models.ExtractedValue, error) {
	var payload map[string]any
	if err := decodeJSON(text, &payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, fmt.Errorf("model response is not a JSON object (payload snippet: %s)", snippet(text))
	}
	out := make(map[string]models.ExtractedValue, len(fields))
	for _, f := range fields {
		out[f.Key] = parseEntry(payload[f.Key])
	}
	return out, nil
}

func parseEntry(raw any) models.ExtractedValue {
	entry, ok := raw.(map[string]any)
	if !ok {
		return models.NotFound()
	}
	var v models.ExtractedValue
	if rawValue, ok := entry["value"]; ok && valueSchema.Validate(rawValue) == nil {
		v.Value = scalar(rawValue)
	}
	if rawBox, ok := entry["box_2d"]; ok && rawBox != nil && boxSchema.Validate(rawBox) == nil {
		v.Box = box(rawBox.([]any))
	}
	return v
}

func scalar(raw any) any {
	switch x := raw.(type) {
	case string:
		return x
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return x.String()
		}
		return f
	default:
		return nil
	}
}

func box(items []any) *models.Box {
	var b models.Box
	for i, item := range items {
		n, ok := item.(json.Number)
		if !ok {
			return nil
		}
		f, err := n.Float64()
		if err != nil {
			return nil
		}
		b[i] = int(math.Round(f))
	}
	return &b
}

// decodeJSON unmarshals content into target, retrying once on a payload stripped of code
// fences and surrounding prose. Numbers decode as json.Number.
func decodeJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ErrEmptyResponse
	}
	directErr := unmarshalNumbers(trimmed, target)
	if directErr == nil {
		return nil
	}
	sanitized := sanitizeJSONPayload(trimmed)
	if sanitized == "" || sanitized == trimmed {
		return fmt.Errorf("%w (payload snippet: %s)", directErr, snippet(trimmed))
	}
	if err := unmarshalNumbers(sanitized, target); err != nil {
		return fmt.Errorf("%w (sanitized payload snippet: %s)", err, snippet(sanitized))
	}
	return nil
}

func unmarshalNumbers(s string, target any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	if err := dec.Decode(target); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON value")
	}
	return nil
}

func sanitizeJSONPayload(content string) string {
	trimmed := strings.TrimSpace(stripCodeFence(content))
	if trimmed == "" {
		return ""
	}
	if trimmed[0] == '{' {
		return trimmed
	}
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}
	return ""
}

func stripCodeFence(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return s
}

func snippet(s string) string {
	return utils.Truncate(strings.Join(strings.Fields(s), " "), 160)
}
