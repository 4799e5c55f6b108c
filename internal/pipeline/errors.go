// Package pipeline drives extraction and reconciliation runs against the remote model.
package pipeline

import "errors"

// ErrBusy is returned when a run of the same kind is already in flight.
var ErrBusy = errors.New("a run is already in progress")

// PreconditionError is a refusal that happens before any remote call. Message is shown to the user.
type PreconditionError struct {
	Message string
}

func (e *PreconditionError) Error() string {
	return e.Message
}

var (
	ErrNoFields              = &PreconditionError{Message: "Add at least one field before extracting."}
	ErrNoSuccessfulDocuments = &PreconditionError{Message: "Extract data from at least one document before reconciling."}
	ErrNoReferenceRows       = &PreconditionError{Message: "Upload a reference dataset with at least one row before reconciling."}
)

// ExtractionFailedMessage is the only error text stored on a document whose extraction failed.
const ExtractionFailedMessage = "extraction failed"
