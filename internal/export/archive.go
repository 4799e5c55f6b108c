package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"time"

	"github.com/hyperjump/ticktie/internal/models"
)

// Defaults for the archive layout.
const (
	DefaultArchiveName  = "tick_and_tie_export.zip"
	DefaultWorkbookName = "audit_results.xlsx"
	DefaultDocumentsDir = "documents"
)

// Options controls the archive layout.
type Options struct {
	ArchiveName  string
	WorkbookName string
	DocumentsDir string
	// AllTables puts every Markdown table of the report on the reconciliation table sheet
	// instead of only the first.
	AllTables bool
}

// DefaultOptions returns the default archive layout.
func DefaultOptions() Options {
	return Options{
		ArchiveName:  DefaultArchiveName,
		WorkbookName: DefaultWorkbookName,
		DocumentsDir: DefaultDocumentsDir,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ArchiveName == "" {
		o.ArchiveName = d.ArchiveName
	}
	if o.WorkbookName == "" {
		o.WorkbookName = d.WorkbookName
	}
	if o.DocumentsDir == "" {
		o.DocumentsDir = d.DocumentsDir
	}
	return o
}

// Archive is a finished export.
type Archive struct {
	Name  string
	Data  []byte
	Files []string
}

// Export builds the archive from the current session. result may be nil. Nothing is returned
// unless the whole archive was built.
func Export(opts Options, fields []models.FieldDefinition, docs []*models.Document, result *models.ReconcileResult) (*Archive, error) {
	opts = opts.withDefaults()

	fileNames := make([]string, len(docs))
	for i, d := range docs {
		fileNames[i] = d.FileName
	}
	names := UniqueNames(fileNames)

	wb, err := buildWorkbook(opts, fields, docs, names, result)
	if err != nil {
		return nil, fmt.Errorf("build workbook: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	now := time.Now()
	files := make([]string, 0, len(docs)+1)
	add := func(name string, data []byte) error {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: now})
		if err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		files = append(files, name)
		return nil
	}

	if err := add(opts.WorkbookName, wb); err != nil {
		return nil, err
	}
	for i, d := range docs {
		if err := add(path.Join(opts.DocumentsDir, names[i]), d.Content); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish archive: %w", err)
	}
	return &Archive{Name: opts.ArchiveName, Data: buf.Bytes(), Files: files}, nil
}
