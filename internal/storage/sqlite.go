package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/ticktie/internal/models"
)

// SQLiteStorage implements Storage on a scratch SQLite file. Documents do not outlive the
// session: the table is emptied when the database is opened.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath, initializes the schema and
// clears any documents left from an earlier session. Parent directories are created if needed.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serialises writers so UpdateDocument transactions never race.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(`DELETE FROM documents`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to clear previous session: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		file_name TEXT NOT NULL,
		file_type TEXT,
		size INTEGER NOT NULL DEFAULT 0,
		content BLOB,
		preview_url TEXT,
		status TEXT NOT NULL,
		error_msg TEXT,
		data TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
	`
	_, err := db.Exec(schema)
	return err
}

const selectColumns = `id, file_name, file_type, size, content, preview_url, status, error_msg, data, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document
	var fileType, previewURL, errorMsg, dataJSON sql.NullString
	var status string
	if err := row.Scan(&doc.ID, &doc.FileName, &fileType, &doc.Size, &doc.Content, &previewURL,
		&status, &errorMsg, &dataJSON, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	st, err := models.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	doc.Status = st
	doc.FileType = fileType.String
	doc.PreviewURL = previewURL.String
	doc.ErrorMsg = errorMsg.String
	doc.Data = map[string]models.ExtractedValue{}
	if dataJSON.String != "" {
		if err := json.Unmarshal([]byte(dataJSON.String), &doc.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal data: %w", err)
		}
	}
	return &doc, nil
}

func marshalData(data map[string]models.ExtractedValue) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal data: %w", err)
	}
	return string(b), nil
}

// CreateDocument inserts a document at the end of the upload order.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	dataJSON, err := marshalData(doc.Data)
	if err != nil {
		return err
	}
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, file_name, file_type, size, content, preview_url, status, error_msg, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.FileName, doc.FileType, doc.Size, doc.Content, doc.PreviewURL,
		string(doc.Status), doc.ErrorMsg, dataJSON, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		if _, getErr := s.GetDocument(ctx, doc.ID); getErr == nil {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, doc.ID)
		}
		return err
	}
	return nil
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return doc, err
}

// UpdateDocument reads, transforms and rewrites the record for id inside one transaction.
func (s *SQLiteStorage) UpdateDocument(ctx context.Context, id string, fn UpdateFunc) (*models.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	cur, err := scanDocument(tx.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	next, err := fn(cur)
	if err != nil {
		return nil, err
	}
	next.ID = id
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = time.Now()
	dataJSON, err := marshalData(next.Data)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET file_name = ?, file_type = ?, size = ?, content = ?, preview_url = ?,
		 status = ?, error_msg = ?, data = ?, updated_at = ? WHERE id = ?`,
		next.FileName, next.FileType, next.Size, next.Content, next.PreviewURL,
		string(next.Status), next.ErrorMsg, dataJSON, next.UpdatedAt, id,
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return next, nil
}

// DeleteDocument removes a document by ID.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

// ListDocuments returns every document in upload order.
func (s *SQLiteStorage) ListDocuments(ctx context.Context) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM documents ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountByStatus returns the number of documents per status.
func (s *SQLiteStorage) CountByStatus(ctx context.Context) (map[models.Status]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[models.Status]int64, 4)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[models.Status(status)] = n
	}
	return counts, rows.Err()
}

// Reset removes every document.
func (s *SQLiteStorage) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents`)
	return err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
