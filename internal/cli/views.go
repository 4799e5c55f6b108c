package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/hyperjump/ticktie/internal/models"
	"github.com/hyperjump/ticktie/internal/pipeline"
	"github.com/hyperjump/ticktie/internal/server"
	"github.com/hyperjump/ticktie/pkg/utils"
)

// cellWidth caps free text inside table cells.
const cellWidth = 48

// WriteDocuments writes one row per document with a column per field.
func WriteDocuments(w io.Writer, docs []*models.Document, fields []models.FieldDefinition, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, map[string]any{"fields": fields, "documents": docs})
	}
	if len(docs) == 0 {
		_, err := fmt.Fprintln(w, "No documents.")
		return err
	}
	headers := append([]string{"File", "Status"}, models.ColumnLabels(fields, "File", "Status")...)
	rows := make([][]string, 0, len(docs))
	for _, doc := range docs {
		status := string(doc.Status)
		if doc.ErrorMsg != "" {
			status += " (" + doc.ErrorMsg + ")"
		}
		row := []string{doc.FileName, status}
		for _, f := range fields {
			row = append(row, utils.Truncate(doc.Data[f.Key].Text(), cellWidth))
		}
		rows = append(rows, row)
	}
	_, err := fmt.Fprintln(w, renderTable(headers, rows, nil))
	return err
}

// WriteRunSummary writes the counts of an extraction run.
func WriteRunSummary(w io.Writer, s *pipeline.RunSummary, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, s)
	}
	_, err := fmt.Fprintf(w, "Extracted %d of %d document(s) in %s (%d failed, %d skipped)\n",
		s.Succeeded, s.Total, s.Elapsed.Round(time.Millisecond), s.Failed, s.Skipped)
	return err
}

// WriteReconcileResult writes the report followed by the executed code.
func WriteReconcileResult(w io.Writer, r *models.ReconcileResult, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, r)
	}
	if _, err := fmt.Fprintf(w, "%s\n", r.Report); err != nil {
		return err
	}
	if r.Code == "" {
		return nil
	}
	_, err := fmt.Fprintf(w, "\n# analysis code\n%s\n", r.Code)
	return err
}

// WriteSearchResults writes ranked search hits.
func WriteSearchResults(w io.Writer, resp *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, resp)
	}
	if _, err := fmt.Fprintf(w, "Found %d result(s) for %q in %dms\n", resp.Total, resp.Query, resp.QueryTime); err != nil {
		return err
	}
	if len(resp.Results) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		var name, status string
		if r.Document != nil {
			name, status = r.Document.FileName, string(r.Document.Status)
		}
		rows = append(rows, []string{strconv.Itoa(r.Rank), name, status, strconv.FormatFloat(r.Score, 'f', 4, 64)})
	}
	_, err := fmt.Fprintln(w, renderTable(
		[]string{"Rank", "File", "Status", "Score"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
	))
	return err
}

// WriteStatus writes the server status as key/value lines.
func WriteStatus(w io.Writer, s *server.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, s)
	}
	rows := [][]string{}
	if snap := s.Snapshot; snap != nil {
		rows = append(rows,
			[]string{"documents", strconv.FormatInt(snap.Documents, 10)},
		)
		for _, st := range models.AllStatuses() {
			rows = append(rows, []string{"  " + string(st), strconv.FormatInt(snap.ByStatus[st], 10)})
		}
		rows = append(rows,
			[]string{"fields", strconv.Itoa(snap.Fields)},
			[]string{"reference_rows", strconv.Itoa(snap.ReferenceRows)},
			[]string{"has_result", strconv.FormatBool(snap.HasResult)},
			[]string{"extraction_running", strconv.FormatBool(snap.ExtractionRunning)},
			[]string{"reconcile_running", strconv.FormatBool(snap.ReconcileRunning)},
			[]string{"indexed_documents", strconv.FormatUint(snap.IndexedDocuments, 10)},
		)
		if snap.ReferenceFile != "" {
			rows = append(rows, []string{"reference_file", snap.ReferenceFile})
		}
	}
	if s.DiskUsageBytes > 0 {
		rows = append(rows, []string{"disk_usage_bytes", strconv.FormatInt(s.DiskUsageBytes, 10)})
	}
	keys := make([]string, 0, len(s.Config))
	for k := range s.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rows = append(rows, []string{k, fmt.Sprint(s.Config[k])})
	}
	_, err := fmt.Fprintln(w, renderTable([]string{"Key", "Value"}, rows, nil))
	return err
}
