package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/hyperjump/ticktie/internal/fileid"
	"github.com/hyperjump/ticktie/internal/models"
	"github.com/hyperjump/ticktie/internal/storage"
	"go.uber.org/zap"
)

// Uploader is the part of the session a drop folder feeds.
type Uploader interface {
	Upload(ctx context.Context, in models.DocumentInput) (*models.Document, error)
	RemoveDocument(ctx context.Context, id string) error
}

// Ingest uploads drop-folder files under ids derived from their paths.
type Ingest struct {
	uploader Uploader
	logger   *zap.Logger
}

// NewIngest creates a Handler that feeds uploader.
func NewIngest(uploader Uploader, logger *zap.Logger) *Ingest {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingest{uploader: uploader, logger: logger}
}

// FileChanged uploads the file, replacing any document previously uploaded from the same path.
func (i *Ingest) FileChanged(ctx context.Context, path string) {
	id, err := fileid.FromPath(path)
	if err != nil {
		i.logger.Warn("drop folder: bad path", zap.String("path", path), zap.Error(err))
		return
	}
	content, err := os.ReadFile(path)
	if err != nil {
		i.logger.Warn("drop folder: read failed", zap.String("path", path), zap.Error(err))
		return
	}
	if len(content) == 0 {
		return
	}
	doc, err := i.uploader.Upload(ctx, models.DocumentInput{ID: id, FileName: filepath.Base(path), Content: content})
	if err != nil {
		i.logger.Warn("drop folder: upload failed", zap.String("path", path), zap.Error(err))
		return
	}
	i.logger.Info("drop folder: uploaded", zap.String("path", path), zap.String("document_id", doc.ID), zap.String("status", string(doc.Status)))
}

// FileRemoved removes the document uploaded from path, if any.
func (i *Ingest) FileRemoved(ctx context.Context, path string) {
	id, err := fileid.FromPath(path)
	if err != nil {
		return
	}
	if err := i.uploader.RemoveDocument(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		i.logger.Warn("drop folder: remove failed", zap.String("path", path), zap.Error(err))
		return
	}
	i.logger.Info("drop folder: removed", zap.String("path", path), zap.String("document_id", id))
}
