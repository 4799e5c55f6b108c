// Package llm builds the structured requests sent to the remote multimodal model and
// validates what comes back.
package llm

import "context"

// ExtractionRequest carries one document and the schema the model must answer with.
// Data is sent inline; the transport encodes it as base64 tagged with MIMEType.
type ExtractionRequest struct {
	DocumentID  string
	FileName    string
	MIMEType    string
	Data        []byte
	Instruction string
	Schema      map[string]any
}

// ReconcileRequest is a single text prompt run with server-side code execution enabled.
type ReconcileRequest struct {
	Prompt string
}

// ReconcileResponse is the narrative text plus every code fragment the model executed, in emission order.
type ReconcileResponse struct {
	Text string
	Code []string
}

// Model is the remote model contract used by the pipeline.
type Model interface {
	// Extract returns the raw JSON text produced for req.
	Extract(ctx context.Context, req *ExtractionRequest) (string, error)
	// Reconcile runs the prompt with code execution enabled.
	Reconcile(ctx context.Context, req *ReconcileRequest) (*ReconcileResponse, error)
}
