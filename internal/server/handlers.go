package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/ticktie/internal/fields"
	"github.com/hyperjump/ticktie/internal/models"
	"github.com/hyperjump/ticktie/internal/pipeline"
	"github.com/hyperjump/ticktie/internal/session"
	"github.com/hyperjump/ticktie/internal/storage"
	"go.uber.org/zap"
)

// multipartMemory is how much of a multipart body is held in memory before spilling to disk.
const multipartMemory = 32 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	*session.Snapshot
	DiskUsageBytes int64          `json:"disk_usage_bytes,omitempty"`
	Config         map[string]any `json:"config"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.Snapshot(r.Context())
	if err != nil {
		s.logger.Error("status: snapshot failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := StatusResponse{Snapshot: snap, Config: map[string]any{}}
	if c := s.config; c != nil {
		resp.Config["backend"] = c.Model.Backend
		resp.Config["extraction_model"] = c.Model.ExtractionModel
		resp.Config["reconcile_model"] = c.Model.ReconcileModel
		resp.Config["concurrency"] = c.Extraction.Concurrency
		resp.Config["storage_driver"] = c.Storage.Driver
		resp.Config["search_enabled"] = c.Search.EnabledOrDefault()
		resp.Config["watch_directories"] = c.Watch.Directories
		if c.Storage.Driver == string(storage.DriverSQLite) {
			resp.Config["database_path"] = c.Storage.DatabasePath
			if n, err := storage.ScratchSizeBytes(c.Storage.DatabasePath); err == nil {
				resp.DiskUsageBytes = n
			}
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListFields(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{"fields": s.session.Fields()})
}

type addFieldRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleAddField(w http.ResponseWriter, r *http.Request) {
	var req addFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	f, err := s.session.AddField(req.Name)
	if errors.Is(err, fields.ErrEmptyName) {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, f)
}

func (s *Server) handleRemoveField(w http.ResponseWriter, r *http.Request) {
	s.session.RemoveField(chi.URLParam(r, "id"))
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.session.Documents(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"documents": docs, "total": len(docs)})
}

type uploadFailure struct {
	FileName string `json:"fileName"`
	Error    string `json:"error"`
}

type uploadResponse struct {
	Documents []*models.Document `json:"documents"`
	Errors    []uploadFailure    `json:"errors,omitempty"`
}

// handleUploadDocuments accepts any number of "files" parts. One bad file does not reject the
// others; its problem is listed under errors.
func (s *Server) handleUploadDocuments(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.respondError(w, http.StatusBadRequest, "no files in field \"files\"")
		return
	}

	resp := uploadResponse{Documents: make([]*models.Document, 0, len(headers))}
	for _, fh := range headers {
		content, err := readPart(fh)
		if err != nil {
			resp.Errors = append(resp.Errors, uploadFailure{FileName: fh.Filename, Error: err.Error()})
			continue
		}
		doc, err := s.session.Upload(r.Context(), models.DocumentInput{
			FileName: fh.Filename,
			FileType: fh.Header.Get("Content-Type"),
			Content:  content,
		})
		if err != nil {
			resp.Errors = append(resp.Errors, uploadFailure{FileName: fh.Filename, Error: err.Error()})
			continue
		}
		resp.Documents = append(resp.Documents, doc)
	}
	status := http.StatusCreated
	if len(resp.Documents) == 0 {
		status = http.StatusBadRequest
	}
	s.respondJSON(w, status, resp)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.session.Document(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	err := s.session.RemoveDocument(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleExtract starts an extraction run in the background and answers 202, or with ?wait=true
// runs it to completion and answers with the run summary.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if len(s.session.Fields()) == 0 {
		s.respondError(w, http.StatusUnprocessableEntity, pipeline.ErrNoFields.Message)
		return
	}
	ctx := context.WithoutCancel(r.Context())
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		summary, err := s.session.RunExtraction(ctx)
		if err != nil {
			s.respondPipelineError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, summary)
		return
	}
	if s.session.ExtractionRunning() {
		s.respondPipelineError(w, pipeline.ErrBusy)
		return
	}
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		if _, err := s.session.RunExtraction(ctx); err != nil {
			s.logger.Warn("background extraction run not started", zap.Error(err))
		}
	}()
	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleUploadReference(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		s.respondError(w, http.StatusBadRequest, "no file in field \"file\"")
		return
	}
	fh := headers[0]
	content, err := readPart(fh)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := s.session.SetReference(fh.Filename, content)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"fileName": fh.Filename, "rows": len(rows)})
}

type reconcileRequest struct {
	Instructions string `json:"instructions"`
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.session.Reconcile(context.WithoutCancel(r.Context()), req.Instructions)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	result := s.session.Result()
	if result == nil {
		s.respondError(w, http.StatusNotFound, "no reconciliation result")
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	arc, err := s.session.Export(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "export failed: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", arc.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(arc.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(arc.Data)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := models.SearchQuery{Query: q.Get("q")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		query.Limit = n
	}
	query.Fuzzy, _ = strconv.ParseBool(q.Get("fuzzy"))
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit))

	resp, err := s.session.Search(r.Context(), query)
	if errors.Is(err, session.ErrSearchDisabled) {
		s.respondError(w, http.StatusNotImplemented, err.Error())
		return
	}
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Reset(r.Context()); err != nil {
		s.respondPipelineError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// respondPipelineError maps refusals to 422 and 409; anything else is a 500.
func (s *Server) respondPipelineError(w http.ResponseWriter, err error) {
	var pe *pipeline.PreconditionError
	switch {
	case errors.As(err, &pe):
		s.respondError(w, http.StatusUnprocessableEntity, pe.Message)
	case errors.Is(err, pipeline.ErrBusy):
		s.respondError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
