// Package session ties the field registry, document set, reference data and last reconciliation
// result of one audit session to the pipeline that operates on them.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/hyperjump/ticktie/internal/export"
	"github.com/hyperjump/ticktie/internal/extract"
	"github.com/hyperjump/ticktie/internal/fields"
	"github.com/hyperjump/ticktie/internal/keyword"
	"github.com/hyperjump/ticktie/internal/llm"
	"github.com/hyperjump/ticktie/internal/models"
	"github.com/hyperjump/ticktie/internal/pipeline"
	"github.com/hyperjump/ticktie/internal/preview"
	"github.com/hyperjump/ticktie/internal/storage"
	"go.uber.org/zap"
)

// PreviewFailedMessage is the error text of a document whose preview could not be rendered.
const PreviewFailedMessage = "preview failed"

var (
	// ErrEmptyFile is returned for uploads without content.
	ErrEmptyFile = errors.New("file is empty")
	// ErrFileTooLarge is returned for uploads above the configured limit.
	ErrFileTooLarge = errors.New("file exceeds the upload size limit")
	// ErrSearchDisabled is returned by Search when no keyword index is configured.
	ErrSearchDisabled = errors.New("search is disabled")
)

// Session is the in-memory state of one audit session.
type Session struct {
	registry   *fields.Registry
	store      storage.Storage
	renderer   preview.Renderer
	text       *extract.Extractor
	index      keyword.KeywordIndex
	extractor  *pipeline.Extractor
	reconciler *pipeline.Reconciler
	logger     *zap.Logger

	palette        []string
	concurrency    int
	maxUploadBytes int64
	exportOpts     export.Options
	searchDefault  int
	searchMax      int
	fuzziness      int

	mu            sync.RWMutex
	reference     []models.Row
	referenceName string
	result        *models.ReconcileResult
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithRenderer replaces the preview renderer.
func WithRenderer(r preview.Renderer) Option {
	return func(s *Session) { s.renderer = r }
}

// WithIndex enables keyword search over the session's documents.
func WithIndex(ix keyword.KeywordIndex) Option {
	return func(s *Session) { s.index = ix }
}

// WithPalette sets the field colour palette.
func WithPalette(p []string) Option {
	return func(s *Session) { s.palette = p }
}

// WithConcurrency sets how many documents are extracted at once.
func WithConcurrency(n int) Option {
	return func(s *Session) { s.concurrency = n }
}

// WithMaxUploadBytes caps the size of a single upload. Zero means no cap.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Session) { s.maxUploadBytes = n }
}

// WithExportOptions sets the archive layout.
func WithExportOptions(o export.Options) Option {
	return func(s *Session) { s.exportOpts = o }
}

// WithSearchLimits sets the default and maximum search result counts and the fuzzy edit distance.
func WithSearchLimits(defaultLimit, maxLimit, fuzziness int) Option {
	return func(s *Session) {
		s.searchDefault = defaultLimit
		s.searchMax = maxLimit
		s.fuzziness = fuzziness
	}
}

// New creates a session over store that calls model for extraction and reconciliation.
func New(model llm.Model, store storage.Storage, opts ...Option) *Session {
	s := &Session{
		store:         store,
		text:          extract.NewExtractor(0),
		logger:        zap.NewNop(),
		concurrency:   1,
		exportOpts:    export.DefaultOptions(),
		searchDefault: 10,
		searchMax:     100,
		fuzziness:     1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.renderer == nil {
		s.renderer = preview.NewRenderer()
	}
	s.registry = fields.NewRegistry(s.palette)

	exOpts := []pipeline.ExtractorOption{
		pipeline.WithLogger(s.logger.Named("extract")),
		pipeline.WithConcurrency(s.concurrency),
	}
	if s.index != nil {
		exOpts = append(exOpts, pipeline.WithIndexer(s.index))
	}
	s.extractor = pipeline.NewExtractor(model, store, exOpts...)
	s.reconciler = pipeline.NewReconciler(model, s.logger.Named("reconcile"))
	return s
}

// Fields returns the registered fields in order.
func (s *Session) Fields() []models.FieldDefinition {
	return s.registry.List()
}

// AddField registers a field.
func (s *Session) AddField(name string) (models.FieldDefinition, error) {
	f, err := s.registry.Add(name)
	if err != nil {
		return f, err
	}
	s.logger.Info("field added", zap.String("field_id", f.ID), zap.String("name", f.Name), zap.String("key", f.Key))
	return f, nil
}

// RemoveField removes a field. Removing an unknown id is not an error.
func (s *Session) RemoveField(id string) {
	s.registry.Remove(id)
}

// Upload adds a document. A preview failure does not reject the upload: the document is stored
// with status error and no preview. When in.ID names an existing document, that document is
// replaced in place and returns to idle.
func (s *Session) Upload(ctx context.Context, in models.DocumentInput) (*models.Document, error) {
	if len(in.Content) == 0 {
		return nil, fmt.Errorf("%s: %w", in.FileName, ErrEmptyFile)
	}
	if s.maxUploadBytes > 0 && int64(len(in.Content)) > s.maxUploadBytes {
		return nil, fmt.Errorf("%s (%d bytes): %w", in.FileName, len(in.Content), ErrFileTooLarge)
	}
	name := filepath.Base(strings.ReplaceAll(in.FileName, "\\", "/"))
	if name == "." || name == "/" {
		name = "document"
	}
	mediaType := in.FileType
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = mimetype.Detect(in.Content).String()
	}
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}

	now := time.Now()
	doc := &models.Document{
		ID:        in.ID,
		FileName:  name,
		FileType:  mediaType,
		Size:      int64(len(in.Content)),
		Content:   append([]byte(nil), in.Content...),
		Status:    models.StatusIdle,
		Data:      map[string]models.ExtractedValue{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	log := s.logger.With(zap.String("document_id", doc.ID), zap.String("file_name", name))

	url, err := s.renderer.Render(name, mediaType, in.Content)
	if err != nil {
		log.Warn("preview failed", zap.String("media_type", mediaType), zap.Error(err))
		doc.Status = models.StatusError
		doc.ErrorMsg = PreviewFailedMessage
	} else {
		doc.PreviewURL = url
	}

	stored, err := s.put(ctx, doc)
	if err != nil {
		return nil, err
	}
	s.indexUpload(ctx, stored)
	log.Info("document uploaded", zap.String("media_type", mediaType), zap.Int64("size", doc.Size), zap.String("status", string(stored.Status)))
	return stored, nil
}

// put creates doc, or replaces the record with the same id keeping its position.
func (s *Session) put(ctx context.Context, doc *models.Document) (*models.Document, error) {
	err := s.store.CreateDocument(ctx, doc)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, storage.ErrAlreadyExists) {
		return nil, fmt.Errorf("store document: %w", err)
	}
	return s.store.UpdateDocument(ctx, doc.ID, func(cur *models.Document) (*models.Document, error) {
		doc.CreatedAt = cur.CreatedAt
		return doc, nil
	})
}

// indexUpload indexes the file name and, when the preview rendered, the text layer. A file the
// renderer rejected is never handed to the PDF text parser.
func (s *Session) indexUpload(ctx context.Context, doc *models.Document) {
	if s.index == nil {
		return
	}
	var text string
	if doc.PreviewURL != "" {
		var err error
		text, err = s.text.TextLayer(ctx, doc.FileType, doc.Content)
		if err != nil {
			s.logger.Debug("no text layer", zap.String("document_id", doc.ID), zap.Error(err))
		}
	}
	if err := s.index.IndexUpload(ctx, doc, text); err != nil {
		s.logger.Warn("failed to index document", zap.String("document_id", doc.ID), zap.Error(err))
	}
}

// Document returns one document.
func (s *Session) Document(ctx context.Context, id string) (*models.Document, error) {
	return s.store.GetDocument(ctx, id)
}

// Documents returns every document in upload order.
func (s *Session) Documents(ctx context.Context) ([]*models.Document, error) {
	return s.store.ListDocuments(ctx)
}

// RemoveDocument deletes a document and its index entry.
func (s *Session) RemoveDocument(ctx context.Context, id string) error {
	if err := s.store.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.Delete(ctx, id); err != nil {
			s.logger.Warn("failed to remove document from index", zap.String("document_id", id), zap.Error(err))
		}
	}
	s.logger.Info("document removed", zap.String("document_id", id))
	return nil
}

// ExtractionRunning reports whether an extraction run is in flight.
func (s *Session) ExtractionRunning() bool {
	return s.extractor.Running()
}

// RunExtraction extracts every document that is not yet successful.
func (s *Session) RunExtraction(ctx context.Context) (*pipeline.RunSummary, error) {
	return s.extractor.Run(ctx, s.registry.List())
}

// SetReference parses a reference file and makes its rows the session's reference dataset.
func (s *Session) SetReference(fileName string, content []byte) ([]models.Row, error) {
	rows, err := s.text.ReadRows(fileName, content)
	if err != nil {
		return nil, err
	}
	s.SetReferenceRows(filepath.Base(fileName), rows)
	return rows, nil
}

// SetReferenceRows replaces the reference dataset.
func (s *Session) SetReferenceRows(name string, rows []models.Row) {
	s.mu.Lock()
	s.reference = rows
	s.referenceName = name
	s.mu.Unlock()
	s.logger.Info("reference loaded", zap.String("file_name", name), zap.Int("rows", len(rows)))
}

// Reference returns the reference rows and the name of the file they came from.
func (s *Session) Reference() ([]models.Row, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reference, s.referenceName
}

// Reconcile compares the successful documents with the reference rows. The result replaces the
// previous one; refusals leave the previous result in place.
func (s *Session) Reconcile(ctx context.Context, instructions string) (models.ReconcileResult, error) {
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return models.ReconcileResult{}, err
	}
	reference, _ := s.Reference()
	result, err := s.reconciler.Reconcile(ctx, docs, s.registry.List(), reference, instructions)
	if err != nil {
		return result, err
	}
	s.mu.Lock()
	s.result = &result
	s.mu.Unlock()
	return result, nil
}

// Result returns the last reconciliation result, or nil if there is none.
func (s *Session) Result() *models.ReconcileResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return nil
	}
	r := *s.result
	return &r
}

// Export builds the download archive from the current session.
func (s *Session) Export(ctx context.Context) (*export.Archive, error) {
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	arc, err := export.Export(s.exportOpts, s.registry.List(), docs, s.Result())
	if err != nil {
		s.logger.Error("export failed", zap.Error(err))
		return nil, err
	}
	s.logger.Info("export built", zap.String("archive", arc.Name), zap.Int("files", len(arc.Files)), zap.Int("bytes", len(arc.Data)))
	return arc, nil
}

// Search runs a keyword search over file names, PDF text and extracted values.
func (s *Session) Search(ctx context.Context, q models.SearchQuery) (*models.SearchResponse, error) {
	if s.index == nil {
		return nil, ErrSearchDisabled
	}
	q.Query = strings.TrimSpace(q.Query)
	if err := q.Validate(s.searchDefault, s.searchMax); err != nil {
		return nil, err
	}
	start := time.Now()
	hits, err := s.index.Search(ctx, q.Query, q.Limit, &keyword.SearchOptions{Fuzzy: q.Fuzzy, Fuzziness: s.fuzziness})
	if err != nil {
		return nil, err
	}
	results := make([]*models.SearchResult, 0, len(hits))
	for _, hit := range hits {
		doc, err := s.store.GetDocument(ctx, hit.ID)
		if err != nil {
			continue
		}
		results = append(results, &models.SearchResult{Document: doc, Score: hit.Score, Rank: len(results) + 1})
	}
	return &models.SearchResponse{
		Results:   results,
		Total:     len(results),
		QueryTime: time.Since(start).Milliseconds(),
		Query:     q.Query,
	}, nil
}

// Reset clears fields, documents, reference data and the last result.
func (s *Session) Reset(ctx context.Context) error {
	if s.extractor.Running() || s.reconciler.Running() {
		return pipeline.ErrBusy
	}
	if err := s.store.Reset(ctx); err != nil {
		return fmt.Errorf("reset documents: %w", err)
	}
	if s.index != nil {
		if err := s.index.Reset(); err != nil {
			return fmt.Errorf("reset index: %w", err)
		}
	}
	s.registry.Reset()
	s.mu.Lock()
	s.reference = nil
	s.referenceName = ""
	s.result = nil
	s.mu.Unlock()
	s.logger.Info("session reset")
	return nil
}

// Snapshot summarises the session for status reporting.
type Snapshot struct {
	Documents         int64                   `json:"documents"`
	ByStatus          map[models.Status]int64 `json:"by_status"`
	Fields            int                     `json:"fields"`
	ReferenceRows     int                     `json:"reference_rows"`
	ReferenceFile     string                  `json:"reference_file,omitempty"`
	HasResult         bool                    `json:"has_result"`
	ExtractionRunning bool                    `json:"extraction_running"`
	ReconcileRunning  bool                    `json:"reconcile_running"`
	IndexedDocuments  uint64                  `json:"indexed_documents"`
}

// Snapshot returns the current counts.
func (s *Session) Snapshot(ctx context.Context) (*Snapshot, error) {
	total, err := s.store.CountDocuments(ctx)
	if err != nil {
		return nil, err
	}
	byStatus, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	snap := &Snapshot{
		Documents:         total,
		ByStatus:          byStatus,
		Fields:            s.registry.Len(),
		ReferenceRows:     len(s.reference),
		ReferenceFile:     s.referenceName,
		HasResult:         s.result != nil,
		ExtractionRunning: s.extractor.Running(),
		ReconcileRunning:  s.reconciler.Running(),
	}
	s.mu.RUnlock()
	if s.index != nil {
		if n, err := s.index.DocCount(); err == nil {
			snap.IndexedDocuments = n
		}
	}
	return snap, nil
}
