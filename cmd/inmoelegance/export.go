package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"inmoelegance/internal/adapters/exports"
)

func (c *cli) exportCmd() *cobra.Command {
	var (
		email   string
		kind    string
		formats []string
		outDir  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export an admin's listings or the leads to CSV and JSON files",
		Long: `Runs an export through the background worker, stores the artifacts in the
configured blob store under exports/ and copies them to --out.

Example:
  inmoelegance export --admin admin@inmoelegance.example --kind listings --format csv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			input := exports.Input{Kind: exports.Kind(kind)}
			for _, f := range formats {
				input.Formats = append(input.Formats, exports.Format(f))
			}
			return c.export(ctx, email, input, outDir)
		},
	}
	cmd.Flags().StringVar(&email, "admin", "", "e-mail of the requesting admin (required)")
	cmd.Flags().StringVar(&kind, "kind", string(exports.KindListings), "listings or leads")
	cmd.Flags().StringSliceVar(&formats, "format", []string{string(exports.FormatCSV), string(exports.FormatJSON)}, "artifact formats")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "directory receiving the artifacts")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "give up after this long")
	_ = cmd.MarkFlagRequired("admin")
	return cmd
}

func (c *cli) export(ctx context.Context, email string, input exports.Input, outDir string) error {
	a, err := openApp(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer a.Close()
	admin, err := a.svc.FindAdminByEmail(ctx, email)
	if err != nil {
		return err
	}
	store, err := openBlob(ctx, c.cfg)
	if err != nil {
		return err
	}

	worker := exports.NewWorker(a.svc, store, c.logger)
	worker.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := worker.Stop(stopCtx); err != nil {
			c.logger.Warn("stop export worker", zap.Error(err))
		}
	}()

	input.RequestedBy = admin.ID
	record, err := worker.Enqueue(ctx, input)
	if err != nil {
		return err
	}
	record, err = waitForExport(ctx, worker, record.ID)
	if err != nil {
		return err
	}
	if record.Status == exports.StatusFailed {
		return fmt.Errorf("export %s failed: %s", record.ID, record.Error)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	for _, artifact := range record.Artifacts {
		path := filepath.Join(outDir, fmt.Sprintf("%s-%s.%s", input.Kind, record.ID, artifact.Format))
		if err := copyArtifact(ctx, worker, record.ID, artifact.Format, path); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s\t%d rows\t%s\n", path, artifact.Rows, artifact.Key)
	}
	return nil
}

func waitForExport(ctx context.Context, worker *exports.Worker, id string) (exports.Record, error) {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		record, ok := worker.Get(id)
		if !ok {
			return exports.Record{}, exports.ErrNotFound
		}
		if record.Status == exports.StatusSucceeded || record.Status == exports.StatusFailed {
			return record, nil
		}
		select {
		case <-ctx.Done():
			return exports.Record{}, errors.Join(fmt.Errorf("export %s still %s", id, record.Status), ctx.Err())
		case <-ticker.C:
		}
	}
}

func copyArtifact(ctx context.Context, worker *exports.Worker, id string, format exports.Format, path string) error {
	_, body, err := worker.Open(ctx, id, format)
	if err != nil {
		return err
	}
	defer body.Close()
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
