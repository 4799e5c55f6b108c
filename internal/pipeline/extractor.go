package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperjump/ticktie/internal/llm"
	"github.com/hyperjump/ticktie/internal/models"
	"github.com/hyperjump/ticktie/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Indexer receives every document that reached success.
type Indexer interface {
	IndexDocument(ctx context.Context, doc *models.Document) error
}

// Extractor runs extraction over the document set.
type Extractor struct {
	model       llm.Model
	store       storage.Storage
	indexer     Indexer
	concurrency int
	logger      *zap.Logger
	running     atomic.Bool
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithConcurrency sets how many documents are extracted at once. Values below 2 keep the
// default strictly sequential order.
func WithConcurrency(n int) ExtractorOption {
	return func(e *Extractor) { e.concurrency = n }
}

// WithIndexer sets the index updated after each successful document.
func WithIndexer(ix Indexer) ExtractorOption {
	return func(e *Extractor) { e.indexer = ix }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ExtractorOption {
	return func(e *Extractor) { e.logger = l }
}

// NewExtractor creates an extractor over store using model.
func NewExtractor(model llm.Model, store storage.Storage, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		model:       model,
		store:       store,
		concurrency: 1,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunSummary counts what happened to each document in one run.
type RunSummary struct {
	Total     int           `json:"total"`
	Skipped   int           `json:"skipped"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSucceeded
	outcomeFailed
)

// Running reports whether a run is in flight.
func (e *Extractor) Running() bool {
	return e.running.Load()
}

// Run extracts every document that is not already successful, in list order. One document's
// failure never stops the others. Run returns once every picked document is terminal.
func (e *Extractor) Run(ctx context.Context, fields []models.FieldDefinition) (*RunSummary, error) {
	if len(fields) == 0 {
		return nil, ErrNoFields
	}
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer e.running.Store(false)

	start := time.Now()
	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	summary := &RunSummary{Total: len(docs)}
	var mu sync.Mutex
	record := func(o outcome) {
		mu.Lock()
		defer mu.Unlock()
		switch o {
		case outcomeSkipped:
			summary.Skipped++
		case outcomeSucceeded:
			summary.Succeeded++
		case outcomeFailed:
			summary.Failed++
		}
	}

	e.logger.Info("extraction run started", zap.Int("documents", len(docs)), zap.Int("fields", len(fields)), zap.Int("concurrency", e.concurrency))
	if e.concurrency <= 1 {
		for _, doc := range docs {
			record(e.extractOne(ctx, doc, fields))
		}
	} else {
		var g errgroup.Group
		g.SetLimit(e.concurrency)
		for _, doc := range docs {
			g.Go(func() error {
				record(e.extractOne(ctx, doc, fields))
				return nil
			})
		}
		_ = g.Wait()
	}
	summary.Elapsed = time.Since(start)
	e.logger.Info("extraction run finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}

func (e *Extractor) extractOne(ctx context.Context, doc *models.Document, fields []models.FieldDefinition) outcome {
	if !doc.Status.NeedsExtraction() {
		return outcomeSkipped
	}
	log := e.logger.With(zap.String("document_id", doc.ID), zap.String("file_name", doc.FileName))
	if _, err := storage.Transition(ctx, e.store, doc.ID, models.StatusProcessing, "", nil); err != nil {
		log.Warn("document left the run before extraction", zap.Error(err))
		return outcomeSkipped
	}

	data, err := e.extract(ctx, doc, fields)

	// Terminal states are committed even when ctx was cancelled mid-call.
	commitCtx := context.WithoutCancel(ctx)
	if err != nil {
		log.Warn("extraction failed", zap.Error(err))
		if _, terr := storage.Transition(commitCtx, e.store, doc.ID, models.StatusError, ExtractionFailedMessage, nil); terr != nil {
			log.Warn("failed to record extraction failure", zap.Error(terr))
		}
		return outcomeFailed
	}
	updated, err := storage.Transition(commitCtx, e.store, doc.ID, models.StatusSuccess, "", data)
	if err != nil {
		log.Warn("failed to record extraction result", zap.Error(err))
		if errors.Is(err, storage.ErrNotFound) {
			return outcomeSkipped
		}
		return outcomeFailed
	}
	log.Debug("extraction succeeded", zap.Int("fields", len(data)))
	if e.indexer != nil {
		if err := e.indexer.IndexDocument(commitCtx, updated); err != nil {
			log.Warn("failed to index extracted values", zap.Error(err))
		}
	}
	return outcomeSucceeded
}

func (e *Extractor) extract(ctx context.Context, doc *models.Document, fields []models.FieldDefinition) (map[string]models.ExtractedValue, error) {
	req := llm.BuildExtractionRequest(doc, fields)
	text, err := e.model.Extract(ctx, req)
	if err != nil {
		return nil, err
	}
	return llm.ParseExtraction(text, fields)
}
