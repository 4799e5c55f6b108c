package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/ticktie/internal/cli"
	"github.com/hyperjump/ticktie/internal/config"
	"github.com/hyperjump/ticktie/internal/models"
	"github.com/hyperjump/ticktie/internal/pipeline"
	"github.com/hyperjump/ticktie/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runOptions struct {
	fields       []string
	reference    string
	instructions string
	outDir       string
	output       string
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [flags] <file>...",
		Short: "Extract, reconcile and export a batch of documents without a server",
		Long: `Runs the whole pipeline locally: every file is uploaded, each --field is extracted
from every document, the results are reconciled against --reference when given, and the export
archive is written to --out.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return runBatch(cmd, cfg, logger, opts, args)
		},
	}
	cmd.Flags().StringArrayVarP(&opts.fields, "field", "f", nil, "Field to extract (repeatable)")
	cmd.Flags().StringVarP(&opts.reference, "reference", "r", "", "Reference dataset (.xlsx, .xlsm or .csv)")
	cmd.Flags().StringVarP(&opts.instructions, "instructions", "i", "", "Reconciliation instructions")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", ".", "Directory the export archive is written to")
	cmd.Flags().StringVar(&opts.output, "output", "text", "Output format: text or json")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

func runBatch(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger, opts *runOptions, files []string) error {
	format, err := cli.ParseFormat(opts.output)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()
	sess := components.Session

	for _, name := range opts.fields {
		if _, err := sess.AddField(name); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
	}
	for _, path := range files {
		if err := uploadFile(ctx, sess, path); err != nil {
			return err
		}
	}

	summary, err := sess.RunExtraction(ctx)
	if err != nil {
		return err
	}
	if format == cli.OutputText {
		if err := cli.WriteRunSummary(out, summary, format); err != nil {
			return err
		}
	}
	docs, err := sess.Documents(ctx)
	if err != nil {
		return err
	}
	if format == cli.OutputText {
		if err := cli.WriteDocuments(out, docs, sess.Fields(), format); err != nil {
			return err
		}
	}

	var result *models.ReconcileResult
	if opts.reference != "" {
		content, err := os.ReadFile(opts.reference)
		if err != nil {
			return fmt.Errorf("read reference: %w", err)
		}
		if _, err := sess.SetReference(filepath.Base(opts.reference), content); err != nil {
			return err
		}
		r, err := sess.Reconcile(ctx, opts.instructions)
		var pe *pipeline.PreconditionError
		switch {
		case errors.As(err, &pe):
			logger.Warn("reconciliation skipped", zap.String("reason", pe.Message))
		case err != nil:
			return err
		default:
			result = &r
			if format == cli.OutputText {
				if err := cli.WriteReconcileResult(out, result, format); err != nil {
					return err
				}
			}
		}
	}

	arc, err := sess.Export(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	archivePath := filepath.Join(opts.outDir, arc.Name)
	if err := os.WriteFile(archivePath, arc.Data, 0o644); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}

	if format == cli.OutputJSON {
		return cli.WriteJSON(out, map[string]any{
			"summary":   summary,
			"fields":    sess.Fields(),
			"documents": docs,
			"result":    result,
			"archive":   archivePath,
		})
	}
	_, err = fmt.Fprintf(out, "Wrote %s\n", archivePath)
	return err
}

func uploadFile(ctx context.Context, sess *session.Session, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if _, err := sess.Upload(ctx, models.DocumentInput{FileName: filepath.Base(path), Content: content}); err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	return nil
}
