package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/ticktie/internal/models"
)

// MemoryStorage implements Storage in process memory.
type MemoryStorage struct {
	mu   sync.RWMutex
	docs []*models.Document
}

// NewMemoryStorage returns an empty in-memory document set.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) indexLocked(id string) int {
	for i, d := range m.docs {
		if d.ID == id {
			return i
		}
	}
	return -1
}

// CreateDocument appends a copy of doc.
func (m *MemoryStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexLocked(doc.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, doc.ID)
	}
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	m.docs = append(m.docs, doc.Clone())
	return nil
}

// GetDocument returns a copy of the document with id.
func (m *MemoryStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.indexLocked(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m.docs[i].Clone(), nil
}

// UpdateDocument replaces the record for id with the result of fn, holding the write lock throughout.
func (m *MemoryStorage) UpdateDocument(ctx context.Context, id string, fn UpdateFunc) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexLocked(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next, err := fn(m.docs[i].Clone())
	if err != nil {
		return nil, err
	}
	next.ID = id
	next.CreatedAt = m.docs[i].CreatedAt
	next.UpdatedAt = time.Now()
	m.docs[i] = next.Clone()
	return next, nil
}

// DeleteDocument removes the document with id; unknown ids are ignored.
func (m *MemoryStorage) DeleteDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.indexLocked(id); i >= 0 {
		m.docs = append(m.docs[:i], m.docs[i+1:]...)
	}
	return nil
}

// ListDocuments returns copies of all documents in upload order.
func (m *MemoryStorage) ListDocuments(ctx context.Context) ([]*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Document, len(m.docs))
	for i, d := range m.docs {
		out[i] = d.Clone()
	}
	return out, nil
}

// CountDocuments returns the number of documents.
func (m *MemoryStorage) CountDocuments(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.docs)), nil
}

// CountByStatus returns the number of documents per status.
func (m *MemoryStorage) CountByStatus(ctx context.Context) (map[models.Status]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[models.Status]int64, 4)
	for _, d := range m.docs {
		counts[d.Status]++
	}
	return counts, nil
}

// Reset removes every document.
func (m *MemoryStorage) Reset(ctx context.Context) error {
	m.mu.Lock()
	m.docs = nil
	m.mu.Unlock()
	return nil
}

// Close is a no-op.
func (m *MemoryStorage) Close() error {
	return nil
}
