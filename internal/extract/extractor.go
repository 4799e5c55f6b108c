// Package extract reads the text layer of uploaded documents and the rows of reference sheets.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/ticktie/internal/models"
)

// ErrUnsupportedReference is returned for reference files that are neither a workbook nor CSV.
var ErrUnsupportedReference = errors.New("unsupported reference file (supported: .xlsx, .xlsm, .csv)")

// Extractor reads document text and reference rows.
type Extractor struct {
	maxPages    int
	textTimeout time.Duration
}

// NewExtractor returns a new Extractor. maxPages caps how many PDF pages feed the text layer;
// zero means no cap.
func NewExtractor(maxPages int) *Extractor {
	return &Extractor{maxPages: maxPages, textTimeout: defaultTextTimeout}
}

// TextLayer returns the embedded text of a document. Only PDFs carry one; other media types
// yield an empty string. PDFs with a malformed page tree are rejected, and a read that takes
// longer than the text timeout returns ErrTextTimeout.
func (e *Extractor) TextLayer(ctx context.Context, mediaType string, content []byte) (string, error) {
	if !strings.HasPrefix(strings.ToLower(mediaType), "application/pdf") {
		return "", nil
	}
	return readPDFText(ctx, content, e.maxPages, e.textTimeout)
}

// ReadRowsFile reads the reference file at path.
func (e *Extractor) ReadRowsFile(path string) ([]models.Row, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.ReadRows(filepath.Base(path), content)
}

// ReadRows parses a reference dataset. For workbooks only the first sheet is read. The first row
// is the header and becomes the keys of every following row.
func (e *Extractor) ReadRows(fileName string, content []byte) ([]models.Row, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		return readExcelRows(content)
	case ".csv":
		return readCSVRows(content)
	default:
		return nil, fmt.Errorf("%s: %w", fileName, ErrUnsupportedReference)
	}
}
