package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/ticktie/internal/llm"
	"github.com/hyperjump/ticktie/internal/models"
	"github.com/hyperjump/ticktie/internal/storage"
)

type fakeModel struct {
	mu        sync.Mutex
	replies   map[string]string
	failFor   map[string]bool
	calls     []string
	inFlight  atomic.Int32
	maxFlight atomic.Int32
	delay     time.Duration

	reconcile    *llm.ReconcileResponse
	reconcileErr error
	prompts      []string
}

func (m *fakeModel) Extract(ctx context.Context, req *llm.ExtractionRequest) (string, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxFlight.Load()
		if n <= cur || m.maxFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	m.calls = append(m.calls, req.DocumentID)
	fail := m.failFor[req.DocumentID]
	reply := m.replies[req.DocumentID]
	m.mu.Unlock()
	if fail {
		return "", errors.New("upstream 500: quota exceeded for project")
	}
	return reply, nil
}

func (m *fakeModel) Reconcile(ctx context.Context, req *llm.ReconcileRequest) (*llm.ReconcileResponse, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, req.Prompt)
	m.mu.Unlock()
	if m.reconcileErr != nil {
		return nil, m.reconcileErr
	}
	return m.reconcile, nil
}

var testFields = []models.FieldDefinition{
	{ID: "f1", Name: "Invoice Number", Key: "invoice_number", Color: "#ef4444"},
	{ID: "f2", Name: "Total", Key: "total", Color: "#3b82f6"},
}

func seed(t *testing.T, store storage.Storage, ids ...string) {
	t.Helper()
	for _, id := range ids {
		doc := &models.Document{ID: id, FileName: id + ".pdf", FileType: "application/pdf", Content: []byte("%PDF"), Status: models.StatusIdle}
		if err := store.CreateDocument(context.Background(), doc); err != nil {
			t.Fatalf("CreateDocument(%s): %v", id, err)
		}
	}
}

func TestExtractorRunIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	seed(t, store, "a", "b", "c")
	model := &fakeModel{
		replies: map[string]string{
			"a": `{"invoice_number":{"value":"INV-1","box_2d":[1,2,3,4]},"total":{"value":null,"box_2d":[0,0,0,0]}}`,
			"c": `{"invoice_number":{"value":"INV-3","box_2d":[5,6,7,8]},"total":{"value":12.5,"box_2d":[1,1,2,2]}}`,
		},
		failFor: map[string]bool{"b": true},
	}

	summary, err := NewExtractor(model, store).Run(ctx, testFields)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Succeeded != 2 || summary.Failed != 1 || summary.Skipped != 0 {
		t.Errorf("summary = %+v, want 2 succeeded, 1 failed", summary)
	}
	if strings.Join(model.calls, ",") != "a,b,c" {
		t.Errorf("calls = %v, want sequential a,b,c", model.calls)
	}

	b, _ := store.GetDocument(ctx, "b")
	if b.Status != models.StatusError {
		t.Errorf("b status = %s, want error", b.Status)
	}
	if b.ErrorMsg != ExtractionFailedMessage {
		t.Errorf("b error = %q, want generic message", b.ErrorMsg)
	}
	if strings.Contains(b.ErrorMsg, "quota") {
		t.Error("remote error text leaked into the document")
	}

	a, _ := store.GetDocument(ctx, "a")
	if a.Status != models.StatusSuccess {
		t.Fatalf("a status = %s, want success", a.Status)
	}
	if got := a.Data["invoice_number"].Text(); got != "INV-1" {
		t.Errorf("a invoice_number = %q", got)
	}
	if a.Data["total"].Found() {
		t.Error("a total should be not found")
	}
}

func TestExtractorRunSkipsSuccessfulDocuments(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	seed(t, store, "a", "b")
	model := &fakeModel{
		replies: map[string]string{
			"a": `{"invoice_number":{"value":"INV-1","box_2d":[1,2,3,4]}}`,
			"b": `{"invoice_number":{"value":"INV-2","box_2d":[1,2,3,4]}}`,
		},
		failFor: map[string]bool{"b": true},
	}
	ex := NewExtractor(model, store)
	if _, err := ex.Run(ctx, testFields); err != nil {
		t.Fatal(err)
	}

	model.failFor = nil
	model.calls = nil
	summary, err := ex.Run(ctx, testFields)
	if err != nil {
		t.Fatal(err)
	}
	if len(model.calls) != 1 || model.calls[0] != "b" {
		t.Errorf("second run calls = %v, want only the failed document", model.calls)
	}
	if summary.Skipped != 1 || summary.Succeeded != 1 {
		t.Errorf("summary = %+v", summary)
	}
	b, _ := store.GetDocument(ctx, "b")
	if b.Status != models.StatusSuccess || b.ErrorMsg != "" {
		t.Errorf("b = %s %q, want success without error", b.Status, b.ErrorMsg)
	}
}

func TestExtractorRunInvalidJSONFailsDocument(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	seed(t, store, "a")
	model := &fakeModel{replies: map[string]string{"a": "I could not read this document."}}

	summary, err := NewExtractor(model, store).Run(ctx, testFields)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Failed != 1 {
		t.Errorf("summary = %+v, want one failure", summary)
	}
	a, _ := store.GetDocument(ctx, "a")
	if a.Status != models.StatusError {
		t.Errorf("status = %s, want error", a.Status)
	}
}

func TestExtractorRunConcurrentLimit(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	ids := []string{"a", "b", "c", "d", "e", "f"}
	seed(t, store, ids...)
	replies := make(map[string]string, len(ids))
	for _, id := range ids {
		replies[id] = `{"invoice_number":{"value":"X","box_2d":[1,2,3,4]}}`
	}
	model := &fakeModel{replies: replies, delay: 20 * time.Millisecond}

	summary, err := NewExtractor(model, store, WithConcurrency(2)).Run(ctx, testFields)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Succeeded != len(ids) {
		t.Errorf("succeeded = %d, want %d", summary.Succeeded, len(ids))
	}
	if got := model.maxFlight.Load(); got > 2 {
		t.Errorf("max concurrent calls = %d, want <= 2", got)
	}
	counts, _ := store.CountByStatus(ctx)
	if counts[models.StatusSuccess] != int64(len(ids)) {
		t.Errorf("counts = %v", counts)
	}
}

func TestExtractorRunRefusals(t *testing.T) {
	store := storage.NewMemoryStorage()
	seed(t, store, "a")
	model := &fakeModel{replies: map[string]string{"a": `{}`}, delay: 50 * time.Millisecond}
	ex := NewExtractor(model, store)

	if _, err := ex.Run(context.Background(), nil); !errors.Is(err, ErrNoFields) {
		t.Errorf("Run(no fields) error = %v, want ErrNoFields", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = ex.Run(context.Background(), testFields)
	}()
	deadline := time.Now().Add(time.Second)
	for !ex.Running() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if _, err := ex.Run(context.Background(), testFields); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Run() error = %v, want ErrBusy", err)
	}
	<-done
}

type recordingIndexer struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingIndexer) IndexDocument(_ context.Context, doc *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, doc.ID)
	return nil
}

func TestExtractorIndexesSuccessfulDocuments(t *testing.T) {
	store := storage.NewMemoryStorage()
	seed(t, store, "a", "b")
	model := &fakeModel{
		replies: map[string]string{"a": `{"total":{"value":"1","box_2d":[1,2,3,4]}}`},
		failFor: map[string]bool{"b": true},
	}
	ix := &recordingIndexer{}
	if _, err := NewExtractor(model, store, WithIndexer(ix)).Run(context.Background(), testFields); err != nil {
		t.Fatal(err)
	}
	if len(ix.ids) != 1 || ix.ids[0] != "a" {
		t.Errorf("indexed = %v, want [a]", ix.ids)
	}
}

func successDoc(name string, data map[string]models.ExtractedValue) *models.Document {
	return &models.Document{ID: name, FileName: name, Status: models.StatusSuccess, Data: data}
}

func TestProjectRows(t *testing.T) {
	docs := []*models.Document{
		successDoc("one.pdf", map[string]models.ExtractedValue{
			"invoice_number": {Value: "INV-1", Box: &models.Box{1, 2, 3, 4}},
			"total":          models.NotFound(),
		}),
		{ID: "two", FileName: "two.pdf", Status: models.StatusError},
		successDoc("three.pdf", map[string]models.ExtractedValue{"total": {Value: "9.99"}}),
	}
	rows := ProjectRows(docs, testFields)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0][FileNameColumn] != "one.pdf" || rows[0]["Invoice Number"] != "INV-1" {
		t.Errorf("row 0 = %v", rows[0])
	}
	if v, ok := rows[0]["Total"]; !ok || v != nil {
		t.Errorf("row 0 Total = %v (present %v), want explicit nil", v, ok)
	}
	if v, ok := rows[1]["Invoice Number"]; !ok || v != nil {
		t.Errorf("row 1 missing key should project to nil, got %v", v)
	}
}

func TestProjectRows_CollidingNames(t *testing.T) {
	fields := []models.FieldDefinition{
		{ID: "1", Name: "Total", Key: "total"},
		{ID: "2", Name: "Total", Key: "total_2"},
		{ID: "3", Name: FileNameColumn, Key: "filename"},
	}
	docs := []*models.Document{successDoc("one.pdf", map[string]models.ExtractedValue{
		"total":    {Value: 10.0},
		"total_2":  {Value: 12.5},
		"filename": {Value: "scan-0001"},
	})}

	rows := ProjectRows(docs, fields)
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	want := models.Row{
		FileNameColumn:                 "one.pdf",
		"Total":                        10.0,
		"Total (total_2)":              12.5,
		FileNameColumn + " (filename)": "scan-0001",
	}
	if len(rows[0]) != len(want) {
		t.Fatalf("row = %v, want %v", rows[0], want)
	}
	for k, v := range want {
		if rows[0][k] != v {
			t.Errorf("row[%q] = %v, want %v", k, rows[0][k], v)
		}
	}
}

func TestReconcilePreconditions(t *testing.T) {
	model := &fakeModel{reconcile: &llm.ReconcileResponse{Text: "ok"}}
	r := NewReconciler(model, nil)
	reference := []models.Row{{"Invoice": "INV-1"}}
	failed := []*models.Document{{ID: "x", FileName: "x.pdf", Status: models.StatusError}}

	_, err := r.Reconcile(context.Background(), failed, testFields, reference, "")
	var pe *PreconditionError
	if !errors.As(err, &pe) || !errors.Is(err, ErrNoSuccessfulDocuments) {
		t.Errorf("error = %v, want ErrNoSuccessfulDocuments", err)
	}

	docs := []*models.Document{successDoc("a.pdf", nil)}
	if _, err := r.Reconcile(context.Background(), docs, testFields, nil, ""); !errors.Is(err, ErrNoReferenceRows) {
		t.Errorf("error = %v, want ErrNoReferenceRows", err)
	}
	if len(model.prompts) != 0 {
		t.Errorf("remote called %d times on refusal", len(model.prompts))
	}
}

func TestReconcileAssemblesResult(t *testing.T) {
	model := &fakeModel{reconcile: &llm.ReconcileResponse{
		Text: "| File | Status |\n|---|---|\n| a.pdf | Match |\n\nAll good.",
		Code: []string{"import pandas as pd", "print(df)"},
	}}
	r := NewReconciler(model, nil)
	docs := []*models.Document{successDoc("a.pdf", map[string]models.ExtractedValue{"total": {Value: "10"}})}
	reference := []models.Row{{"File": "a.pdf", "Amount": "10"}}

	res, err := r.Reconcile(context.Background(), docs, testFields, reference, "match on file name")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Report, "All good.") {
		t.Errorf("report = %q", res.Report)
	}
	if res.Code != "import pandas as pd"+llm.CodeBlockSeparator+"print(df)" {
		t.Errorf("code = %q", res.Code)
	}
	if len(model.prompts) != 1 || !strings.Contains(model.prompts[0], "match on file name") {
		t.Errorf("prompt did not carry instructions: %v", model.prompts)
	}
}

func TestReconcileRemoteFailure(t *testing.T) {
	model := &fakeModel{reconcileErr: errors.New("deadline exceeded")}
	r := NewReconciler(model, nil)
	docs := []*models.Document{successDoc("a.pdf", nil)}

	res, err := r.Reconcile(context.Background(), docs, testFields, []models.Row{{"a": 1}}, "")
	if err != nil {
		t.Fatalf("remote failure should not be an error, got %v", err)
	}
	if res.Report != llm.FailedReportText || res.Code != "" {
		t.Errorf("result = %+v, want failure sentinel", res)
	}
	if r.Running() {
		t.Error("busy flag not cleared")
	}
}
