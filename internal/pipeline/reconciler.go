package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hyperjump/ticktie/internal/llm"
	"github.com/hyperjump/ticktie/internal/models"
	"go.uber.org/zap"
)

// FileNameColumn is the first column of every projected extraction row.
const FileNameColumn = "fileName"

// Reconciler compares extracted values with a reference dataset through one remote call.
type Reconciler struct {
	model   llm.Model
	logger  *zap.Logger
	running atomic.Bool
}

// NewReconciler creates a reconciler. A nil logger disables logging.
func NewReconciler(model llm.Model, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{model: model, logger: logger}
}

// Running reports whether a reconciliation is in flight.
func (r *Reconciler) Running() bool {
	return r.running.Load()
}

// ProjectRows turns every successful document into one row keyed by field display name, with
// the file name first. Values not found become nil. Colliding names are disambiguated by
// models.ColumnLabels.
func ProjectRows(docs []*models.Document, fields []models.FieldDefinition) []models.Row {
	labels := models.ColumnLabels(fields, FileNameColumn)
	rows := make([]models.Row, 0, len(docs))
	for _, doc := range docs {
		if doc.Status != models.StatusSuccess {
			continue
		}
		row := models.Row{FileNameColumn: doc.FileName}
		for i, f := range fields {
			v, ok := doc.Data[f.Key]
			if ok && v.Found() {
				row[labels[i]] = v.Value
			} else {
				row[labels[i]] = nil
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Reconcile refuses with a PreconditionError when there is nothing to compare, and with ErrBusy
// when another reconciliation is in flight. A failed remote call is not an error: it yields the
// fixed failure result.
func (r *Reconciler) Reconcile(ctx context.Context, docs []*models.Document, fields []models.FieldDefinition, reference []models.Row, instructions string) (models.ReconcileResult, error) {
	extracted := ProjectRows(docs, fields)
	if len(extracted) == 0 {
		return models.ReconcileResult{}, ErrNoSuccessfulDocuments
	}
	if len(reference) == 0 {
		return models.ReconcileResult{}, ErrNoReferenceRows
	}
	if !r.running.CompareAndSwap(false, true) {
		return models.ReconcileResult{}, ErrBusy
	}
	defer r.running.Store(false)

	prompt, err := llm.ReconcilePrompt(extracted, reference, instructions)
	if err != nil {
		r.logger.Warn("failed to build reconciliation prompt", zap.Error(err))
		return llm.FailedReconcileResult(), nil
	}

	start := time.Now()
	r.logger.Info("reconciliation started", zap.Int("extracted_rows", len(extracted)), zap.Int("reference_rows", len(reference)))
	resp, err := r.model.Reconcile(ctx, &llm.ReconcileRequest{Prompt: prompt})
	if err != nil {
		r.logger.Warn("reconciliation failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return llm.FailedReconcileResult(), nil
	}
	result := llm.AssembleReconcileResult(resp)
	r.logger.Info("reconciliation finished",
		zap.Int("report_bytes", len(result.Report)),
		zap.Int("code_blocks", len(resp.Code)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}
