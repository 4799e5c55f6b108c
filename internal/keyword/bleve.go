package keyword

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/ticktie/internal/models"
)

const (
	fieldFileName = "file_name"
	fieldText     = "text"
	fieldValues   = "values"
)

// Per-field boosts: a file name hit outranks a hit in an extracted value, which outranks body text.
var fieldBoosts = map[string]float64{
	fieldFileName: 2.0,
	fieldValues:   1.5,
	fieldText:     1.0,
}

// BleveIndex implements KeywordIndex with an in-memory Bleve index. Session documents are not
// persisted, so neither is their index.
type BleveIndex struct {
	mu    sync.RWMutex
	index bleve.Index
	// text layers by document id, kept so re-indexing after extraction does not need the file.
	text map[string]string
}

// NewBleveIndex creates an empty in-memory index.
func NewBleveIndex() (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index, text: make(map[string]string)}, nil
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer: lowercase + tokenize, no stemming, so invoice numbers match as written.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(fieldFileName, textFieldMapping)
	docMapping.AddFieldMappingsAt(fieldText, textFieldMapping)
	docMapping.AddFieldMappingsAt(fieldValues, textFieldMapping)
	im.AddDocumentMapping("document", docMapping)
	im.DefaultType = "document"
	im.DefaultMapping = docMapping
	return im
}

// IndexUpload indexes doc with the text layer read at upload time.
func (b *BleveIndex) IndexUpload(ctx context.Context, doc *models.Document, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text[doc.ID] = text
	return b.put(doc)
}

// IndexDocument re-indexes doc, keeping the text layer from its upload.
func (b *BleveIndex) IndexDocument(ctx context.Context, doc *models.Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.put(doc)
}

func (b *BleveIndex) put(doc *models.Document) error {
	fields := map[string]interface{}{
		fieldFileName: doc.FileName,
		fieldText:     b.text[doc.ID],
		fieldValues:   joinValues(doc.Data),
	}
	if err := b.index.Index(doc.ID, fields); err != nil {
		return fmt.Errorf("index document %s: %w", doc.ID, err)
	}
	return nil
}

// joinValues flattens the found values in key order.
func joinValues(data map[string]models.ExtractedValue) string {
	keys := make([]string, 0, len(data))
	for k, v := range data {
		if v.Found() {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, data[k].Text())
	}
	return strings.Join(parts, "\n")
}

// Search runs query over every indexed field and returns up to limit hits by descending score.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	fuzzy := opts != nil && opts.Fuzzy
	fuzziness := 1
	if opts != nil && opts.Fuzziness > 0 {
		fuzziness = opts.Fuzziness
	}

	queries := make([]blevequery.Query, 0, len(fieldBoosts))
	for _, field := range []string{fieldFileName, fieldValues, fieldText} {
		var q blevequery.Query
		if fuzzy {
			q = buildFuzzyQuery(query, fuzziness, field, fieldBoosts[field])
		} else {
			mq := bleve.NewMatchQuery(query)
			mq.SetField(field)
			mq.SetBoost(fieldBoosts[field])
			q = mq
		}
		queries = append(queries, q)
	}
	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(queries...))
	req.Size = limit

	b.mu.RLock()
	results, err := b.index.SearchInContext(ctx, req)
	b.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// tokenizeQuery splits query into lowercase terms on anything that is not a letter or digit,
// the same boundaries the standard analyzer uses for identifiers like "INV-001".
func tokenizeQuery(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// buildFuzzyQuery ORs one fuzzy query per term, restricted to field.
func buildFuzzyQuery(queryStr string, fuzziness int, field string, boost float64) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	if len(terms) == 0 {
		mq := bleve.NewMatchQuery(queryStr)
		mq.SetField(field)
		mq.SetBoost(boost)
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(field)
		fq.SetBoost(boost)
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Delete removes a document from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.text, id)
	return b.index.Delete(id)
}

// Reset drops every document by swapping in a fresh index.
func (b *BleveIndex) Reset() error {
	fresh, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return fmt.Errorf("failed to create Bleve index: %w", err)
	}
	b.mu.Lock()
	old := b.index
	b.index = fresh
	b.text = make(map[string]string)
	b.mu.Unlock()
	return old.Close()
}

// DocCount returns the total number of documents in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Close()
}
