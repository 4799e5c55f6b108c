package llm

import (
	"strings"

	"github.com/hyperjump/ticktie/internal/models"
)

const (
	// CodeBlockSeparator marks the boundary between consecutive executed code fragments.
	CodeBlockSeparator = "\n\n# --- Next Code Block ---\n\n"
	// NoReportText replaces an empty narrative.
	NoReportText = "No analysis text was returned."
	// FailedReportText is the report of a reconciliation whose remote call failed.
	FailedReportText = "Reconciliation failed. Please try again."
)

// AssembleReconcileResult joins the code fragments in emission order and substitutes the fallback
// text for an empty narrative.
func AssembleReconcileResult(resp *ReconcileResponse) models.ReconcileResult {
	if resp == nil {
		return FailedReconcileResult()
	}
	report := strings.TrimSpace(resp.Text)
	if report == "" {
		report = NoReportText
	}
	code := make([]string, 0, len(resp.Code))
	for _, c := range resp.Code {
		if strings.TrimSpace(c) != "" {
			code = append(code, c)
		}
	}
	return models.ReconcileResult{
		Report: report,
		Code:   strings.Join(code, CodeBlockSeparator),
	}
}

// FailedReconcileResult is the sentinel returned when the remote call fails.
func FailedReconcileResult() models.ReconcileResult {
	return models.ReconcileResult{Report: FailedReportText}
}
