// Package fields implements the field registry: named extraction targets with stable keys and colours.
package fields

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hyperjump/ticktie/internal/models"
)

// ErrEmptyName is returned when a field name trims to the empty string.
var ErrEmptyName = errors.New("field name cannot be empty")

// DefaultPalette is the colour cycle used when none is configured.
var DefaultPalette = []string{
	"#ef4444", "#3b82f6", "#22c55e", "#eab308", "#a855f7", "#ec4899", "#14b8a6", "#f97316",
}

// Registry holds the ordered field list. Insertion order drives result and export column order.
type Registry struct {
	mu      sync.RWMutex
	fields  []models.FieldDefinition
	palette []string
	newID   func() string
}

// NewRegistry returns an empty registry. An empty palette falls back to DefaultPalette.
func NewRegistry(palette []string) *Registry {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	return &Registry{
		palette: append([]string(nil), palette...),
		newID:   uuid.NewString,
	}
}

// Add appends a field named name and returns it.
func (r *Registry) Add(name string) (models.FieldDefinition, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.FieldDefinition{}, ErrEmptyName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	f := models.FieldDefinition{
		ID:    r.newID(),
		Name:  name,
		Key:   r.uniqueKeyLocked(Sanitize(name)),
		Color: r.palette[len(r.fields)%len(r.palette)],
	}
	r.fields = append(r.fields, f)
	return f, nil
}

// uniqueKeyLocked suffixes key with _2, _3, ... while it collides with a registered key.
func (r *Registry) uniqueKeyLocked(key string) string {
	taken := make(map[string]struct{}, len(r.fields))
	for _, f := range r.fields {
		taken[f.Key] = struct{}{}
	}
	if _, ok := taken[key]; !ok {
		return key
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d", key, n)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

// Remove deletes the field with id. Unknown ids are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, f := range r.fields {
		if f.ID == id {
			r.fields = append(r.fields[:i], r.fields[i+1:]...)
			return
		}
	}
}

// List returns a snapshot of the fields in insertion order.
func (r *Registry) List() []models.FieldDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.FieldDefinition(nil), r.fields...)
}

// Len returns the number of registered fields.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.fields)
}

// Reset removes every field.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.fields = nil
	r.mu.Unlock()
}
