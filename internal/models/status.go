package models

import "fmt"

// Status is the extraction lifecycle state of a document.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

var allStatuses = []Status{StatusIdle, StatusProcessing, StatusSuccess, StatusError}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts s into a Status.
func ParseStatus(s string) (Status, error) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown document status %q", s)
}

// Terminal reports whether an extraction attempt has finished.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusError:
		return true
	case StatusIdle, StatusProcessing:
		return false
	}
	return false
}

// NeedsExtraction reports whether a run should pick the document up. Successful documents are
// skipped; processing documents belong to the run in flight.
func (s Status) NeedsExtraction() bool {
	switch s {
	case StatusIdle, StatusError:
		return true
	case StatusProcessing, StatusSuccess:
		return false
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal step.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusIdle, StatusError:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusSuccess || next == StatusError
	case StatusSuccess:
		return false
	}
	return false
}
