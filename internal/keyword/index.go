// Package keyword provides keyword search over the current session's documents.
package keyword

import (
	"context"

	"github.com/hyperjump/ticktie/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means exact term matching.
type SearchOptions struct {
	// Fuzzy enables typo-tolerant matching.
	Fuzzy bool
	// Fuzziness is the maximum edit distance for fuzzy matching (1 or 2). Defaults to 1.
	Fuzziness int
}

// KeywordIndex defines keyword search operations.
type KeywordIndex interface {
	// IndexUpload indexes a freshly uploaded document together with its text layer.
	IndexUpload(ctx context.Context, doc *models.Document, text string) error
	// IndexDocument re-indexes a document after its extracted values changed.
	IndexDocument(ctx context.Context, doc *models.Document) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	Delete(ctx context.Context, id string) error
	Reset() error
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit.
type KeywordResult struct {
	ID    string
	Score float64
}
