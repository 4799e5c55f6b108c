package models

import (
	"fmt"
	"strconv"
)

// Box is a bounding box [ymin, xmin, ymax, xmax] on a 0-1000 scale relative to the rendered page.
type Box [4]int

// String renders the box as the literal "[ymin,xmin,ymax,xmax]".
func (b Box) String() string {
	return fmt.Sprintf("[%d,%d,%d,%d]", b[0], b[1], b[2], b[3])
}

// ExtractedValue is the result of extracting one field from one document.
// Value is a string, a float64 or nil. A nil Box means the location is unknown.
type ExtractedValue struct {
	Value any  `json:"value"`
	Box   *Box `json:"box_2d"`
}

// NotFound is the explicit value for a field the model did not locate.
func NotFound() ExtractedValue {
	return ExtractedValue{}
}

// Found reports whether a value was located.
func (v ExtractedValue) Found() bool {
	return v.Value != nil
}

// Text renders Value for tabular output; nil becomes "".
func (v ExtractedValue) Text() string {
	switch x := v.Value.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// Coords renders the box for tabular output; a missing box becomes "".
func (v ExtractedValue) Coords() string {
	if v.Box == nil {
		return ""
	}
	return v.Box.String()
}

// Clone copies the box pointer target.
func (v ExtractedValue) Clone() ExtractedValue {
	if v.Box != nil {
		b := *v.Box
		v.Box = &b
	}
	return v
}
