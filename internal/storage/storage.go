// Package storage defines the document set: the single owner of per-document state.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/ticktie/internal/models"
)

var (
	// ErrNotFound is returned when no document has the requested id.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists is returned when creating a document whose id is taken.
	ErrAlreadyExists = errors.New("document already exists")
)

// UpdateFunc receives a copy of the current record and returns its full replacement.
type UpdateFunc func(current *models.Document) (*models.Document, error)

// Storage keeps documents in upload order. Every mutation after creation goes through
// UpdateDocument, which replaces the whole record for the id atomically.
type Storage interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	UpdateDocument(ctx context.Context, id string, fn UpdateFunc) (*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context) ([]*models.Document, error)

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context) (map[models.Status]int64, error)

	Reset(ctx context.Context) error
	Close() error
}

// Driver selects a Storage implementation.
type Driver string

const (
	// DriverMemory keeps documents in process memory.
	DriverMemory Driver = "memory"
	// DriverSQLite keeps documents in a scratch SQLite file that is truncated on open.
	DriverSQLite Driver = "sqlite"
)

// New creates the storage for driver. dbPath is only used by DriverSQLite.
func New(driver string, dbPath string) (Storage, error) {
	switch Driver(driver) {
	case DriverMemory, "":
		return NewMemoryStorage(), nil
	case DriverSQLite:
		return NewSQLiteStorage(dbPath)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s (supported: memory, sqlite)", driver)
	}
}

// Transition moves the document to next, enforcing the status state machine.
// data replaces the extracted values when non-nil; errMsg is kept only for the error state.
func Transition(ctx context.Context, s Storage, id string, next models.Status, errMsg string, data map[string]models.ExtractedValue) (*models.Document, error) {
	return s.UpdateDocument(ctx, id, func(cur *models.Document) (*models.Document, error) {
		if !cur.Status.CanTransition(next) {
			return nil, fmt.Errorf("document %s: illegal transition %s -> %s", id, cur.Status, next)
		}
		return cur.WithStatus(next, errMsg, data), nil
	})
}
