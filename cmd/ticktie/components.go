package main

import (
	"context"
	"fmt"

	"github.com/hyperjump/ticktie/internal/config"
	"github.com/hyperjump/ticktie/internal/export"
	"github.com/hyperjump/ticktie/internal/keyword"
	"github.com/hyperjump/ticktie/internal/llm"
	"github.com/hyperjump/ticktie/internal/llm/gemini"
	"github.com/hyperjump/ticktie/internal/session"
	"github.com/hyperjump/ticktie/internal/storage"
	"go.uber.org/zap"
)

// Components holds the initialized session and everything it owns.
type Components struct {
	Session *session.Session
	Storage storage.Storage
	Index   keyword.KeywordIndex
}

// Close releases the index and the store.
func (c *Components) Close() {
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

// newModel builds the remote model client. Tests replace it with a fake.
var newModel = func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (llm.Model, error) {
	return gemini.New(ctx, gemini.Config{
		Backend:         cfg.Model.Backend,
		APIKey:          cfg.Model.APIKey,
		Project:         cfg.Model.Project,
		Location:        cfg.Model.Location,
		ExtractionModel: cfg.Model.ExtractionModel,
		ReconcileModel:  cfg.Model.ReconcileModel,
		Temperature:     cfg.Model.Temperature,
		Timeout:         cfg.Model.Timeout,
	}, gemini.WithLogger(logger))
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	model, err := newModel(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize model: %w", err)
	}

	store, err := storage.New(cfg.Storage.Driver, cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Storage: store}

	opts := []session.Option{
		session.WithLogger(logger),
		session.WithConcurrency(cfg.Extraction.Concurrency),
		session.WithMaxUploadBytes(cfg.Extraction.MaxUploadBytes()),
		session.WithPalette(cfg.Extraction.Palette),
		session.WithExportOptions(export.Options{
			ArchiveName:  cfg.Export.ArchiveName,
			WorkbookName: cfg.Export.WorkbookName,
			DocumentsDir: cfg.Export.DocumentsDir,
			AllTables:    cfg.Export.AllTables,
		}),
		session.WithSearchLimits(cfg.Search.DefaultLimit, cfg.Search.MaxLimit, cfg.Search.Fuzziness),
	}
	if cfg.Search.EnabledOrDefault() {
		idx, err := keyword.NewBleveIndex()
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
		}
		c.Index = idx
		opts = append(opts, session.WithIndex(idx))
	}
	c.Session = session.New(model, store, opts...)

	logger.Info("components initialized",
		zap.String("backend", cfg.Model.Backend),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.Int("concurrency", cfg.Extraction.Concurrency),
		zap.Bool("search_enabled", c.Index != nil),
	)
	return c, nil
}
