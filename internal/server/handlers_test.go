package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/ticktie/internal/config"
	"github.com/hyperjump/ticktie/internal/keyword"
	"github.com/hyperjump/ticktie/internal/llm"
	"github.com/hyperjump/ticktie/internal/models"
	"github.com/hyperjump/ticktie/internal/session"
	"github.com/hyperjump/ticktie/internal/storage"
	"go.uber.org/zap"
)

type fakeModel struct {
	mu        sync.Mutex
	extract   string
	reconcile *llm.ReconcileResponse
}

func (m *fakeModel) Extract(context.Context, *llm.ExtractionRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.extract, nil
}

func (m *fakeModel) Reconcile(context.Context, *llm.ReconcileRequest) (*llm.ReconcileResponse, error) {
	return m.reconcile, nil
}

type fakeRenderer struct{}

func (fakeRenderer) Render(_, mediaType string, _ []byte) (string, error) {
	return "data:" + mediaType + ";base64,AA==", nil
}

func setupTestServer(t *testing.T, model llm.Model, opts ...session.Option) (*Server, http.Handler) {
	t.Helper()
	idx, err := keyword.NewBleveIndex()
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	opts = append([]session.Option{
		session.WithRenderer(fakeRenderer{}),
		session.WithIndex(idx),
		session.WithLogger(zap.NewNop()),
	}, opts...)
	sess := session.New(model, storage.NewMemoryStorage(), opts...)
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	srv := NewServer(sess, cfg, zap.NewNop())
	return srv, srv.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

type part struct {
	field, name, contentType string
	content                  []byte
}

func doMultipart(t *testing.T, h http.Handler, target string, parts ...part) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		hdr := make(map[string][]string)
		hdr["Content-Disposition"] = []string{`form-data; name="` + p.field + `"; filename="` + p.name + `"`}
		hdr["Content-Type"] = []string{p.contentType}
		pw, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = pw.Write(p.content)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return v
}

func TestHandleHealth(t *testing.T) {
	_, h := setupTestServer(t, &fakeModel{})
	w := doJSON(t, h, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if got := decode[map[string]string](t, w); got["status"] != "ok" {
		t.Errorf("body = %v", got)
	}
}

func TestHandleFields(t *testing.T) {
	_, h := setupTestServer(t, &fakeModel{})

	w := doJSON(t, h, http.MethodPost, "/api/v1/fields", map[string]string{"name": "Invoice Number"})
	if w.Code != http.StatusCreated {
		t.Fatalf("add status = %d, body %s", w.Code, w.Body)
	}
	f := decode[models.FieldDefinition](t, w)
	if f.Key != "invoice_number" {
		t.Errorf("key = %q, want invoice_number", f.Key)
	}

	if w := doJSON(t, h, http.MethodPost, "/api/v1/fields", map[string]string{"name": "   "}); w.Code != http.StatusBadRequest {
		t.Errorf("blank name status = %d, want 400", w.Code)
	}

	w = doJSON(t, h, http.MethodDelete, "/api/v1/fields/"+f.ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("remove status = %d", w.Code)
	}
	list := decode[map[string][]models.FieldDefinition](t, doJSON(t, h, http.MethodGet, "/api/v1/fields", nil))
	if len(list["fields"]) != 0 {
		t.Errorf("fields after remove = %v", list["fields"])
	}
}

func TestHandleUploadDocuments(t *testing.T) {
	_, h := setupTestServer(t, &fakeModel{})
	w := doMultipart(t, h, "/api/v1/documents",
		part{"files", "invoice.pdf", "application/pdf", []byte("%PDF-1.4 body")},
		part{"files", "empty.png", "image/png", nil},
	)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	resp := decode[uploadResponse](t, w)
	if len(resp.Documents) != 1 || resp.Documents[0].FileName != "invoice.pdf" {
		t.Fatalf("documents = %+v", resp.Documents)
	}
	if resp.Documents[0].Status != models.StatusIdle {
		t.Errorf("status = %s, want idle", resp.Documents[0].Status)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].FileName != "empty.png" {
		t.Errorf("errors = %+v, want empty.png rejected", resp.Errors)
	}

	id := resp.Documents[0].ID
	if w := doJSON(t, h, http.MethodGet, "/api/v1/documents/"+id, nil); w.Code != http.StatusOK {
		t.Errorf("get status = %d", w.Code)
	}
	if w := doJSON(t, h, http.MethodDelete, "/api/v1/documents/"+id, nil); w.Code != http.StatusOK {
		t.Errorf("delete status = %d", w.Code)
	}
	if w := doJSON(t, h, http.MethodGet, "/api/v1/documents/"+id, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}
	if w := doJSON(t, h, http.MethodDelete, "/api/v1/documents/"+id, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestHandleUploadDocuments_NoFiles(t *testing.T) {
	_, h := setupTestServer(t, &fakeModel{})
	w := doMultipart(t, h, "/api/v1/documents", part{"other", "a.pdf", "application/pdf", []byte("x")})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleExtract_Preconditions(t *testing.T) {
	_, h := setupTestServer(t, &fakeModel{})
	w := doJSON(t, h, http.MethodPost, "/api/v1/extract?wait=true", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	if got := decode[map[string]string](t, w)["error"]; !strings.Contains(got, "at least one field") {
		t.Errorf("error = %q", got)
	}
}

func TestEndToEnd(t *testing.T) {
	model := &fakeModel{
		extract: `{"invoice_number":{"value":"INV-001","box_2d":[50,60,90,140]}}`,
		reconcile: &llm.ReconcileResponse{
			Text: "All matched.\n\n| fileName | Status |\n|---|---|\n| invoice.pdf | Match |",
			Code: []string{"print('ok')"},
		},
	}
	_, h := setupTestServer(t, model)

	doJSON(t, h, http.MethodPost, "/api/v1/fields", map[string]string{"name": "Invoice Number"})
	doMultipart(t, h, "/api/v1/documents", part{"files", "invoice.pdf", "application/pdf", []byte("%PDF-1.4 body")})

	w := doJSON(t, h, http.MethodPost, "/api/v1/reconcile", map[string]string{})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("reconcile before extraction status = %d, want 422", w.Code)
	}

	w = doJSON(t, h, http.MethodPost, "/api/v1/extract?wait=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("extract status = %d, body %s", w.Code, w.Body)
	}
	if s := decode[map[string]any](t, w); s["succeeded"] != float64(1) {
		t.Errorf("summary = %v", s)
	}

	w = doMultipart(t, h, "/api/v1/reference",
		part{"file", "ledger.csv", "text/csv", []byte("Invoice Number,Amount\nINV-001,100\n")})
	if w.Code != http.StatusOK {
		t.Fatalf("reference status = %d, body %s", w.Code, w.Body)
	}

	if w := doJSON(t, h, http.MethodGet, "/api/v1/reconcile", nil); w.Code != http.StatusNotFound {
		t.Errorf("result before reconcile status = %d, want 404", w.Code)
	}
	w = doJSON(t, h, http.MethodPost, "/api/v1/reconcile", map[string]string{"instructions": "match on invoice number"})
	if w.Code != http.StatusOK {
		t.Fatalf("reconcile status = %d, body %s", w.Code, w.Body)
	}
	result := decode[models.ReconcileResult](t, w)
	if !strings.Contains(result.Report, "All matched.") {
		t.Errorf("markdown = %q", result.Report)
	}

	w = doJSON(t, h, http.MethodGet, "/api/v1/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d, body %s", w.Code, w.Body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "tick_and_tie_export.zip") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	w = doJSON(t, h, http.MethodGet, "/api/v1/search?q=INV-001", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d, body %s", w.Code, w.Body)
	}
	if resp := decode[models.SearchResponse](t, w); len(resp.Results) != 1 {
		t.Errorf("search results = %+v", resp.Results)
	}

	w = doJSON(t, h, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d", w.Code)
	}
	status := decode[map[string]any](t, w)
	if status["config"].(map[string]any)["storage_driver"] != "memory" {
		t.Errorf("status config = %v", status["config"])
	}

	if w := doJSON(t, h, http.MethodPost, "/api/v1/session/reset", nil); w.Code != http.StatusOK {
		t.Errorf("reset status = %d", w.Code)
	}
	list := decode[map[string]any](t, doJSON(t, h, http.MethodGet, "/api/v1/documents", nil))
	if list["total"] != float64(0) {
		t.Errorf("documents after reset = %v", list)
	}
}

func TestHandleSearch_Validation(t *testing.T) {
	_, h := setupTestServer(t, &fakeModel{})
	if w := doJSON(t, h, http.MethodGet, "/api/v1/search?q=", nil); w.Code != http.StatusBadRequest {
		t.Errorf("empty query status = %d, want 400", w.Code)
	}
	if w := doJSON(t, h, http.MethodGet, "/api/v1/search?q=x&limit=abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", w.Code)
	}
}

func TestHandleSearch_Disabled(t *testing.T) {
	_, h := setupTestServer(t, &fakeModel{}, session.WithIndex(nil))
	if w := doJSON(t, h, http.MethodGet, "/api/v1/search?q=x", nil); w.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", w.Code)
	}
}
