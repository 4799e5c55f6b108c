package models

// Row is one record of a tabular dataset keyed by column header.
type Row map[string]any

// ReconcileResult is the output of one reconciliation run.
type ReconcileResult struct {
	Report string `json:"report"`
	Code   string `json:"code"`
}
