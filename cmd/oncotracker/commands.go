package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/oncotracker/oncotracker/internal/config"
	"github.com/oncotracker/oncotracker/internal/domain/ingestion"
	"github.com/oncotracker/oncotracker/internal/domain/timeline"
	"github.com/oncotracker/oncotracker/internal/platform/canonical"
	"github.com/oncotracker/oncotracker/internal/platform/db"
	"github.com/oncotracker/oncotracker/internal/platform/mapping"
	"github.com/oncotracker/oncotracker/internal/platform/metric"
	"github.com/oncotracker/oncotracker/internal/platform/sheet"
	"github.com/oncotracker/oncotracker/migrations"
)

// withApp loads config, builds the store-backed services and runs fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// CLI output goes to stdout; logs go to stderr.
	logger := newLogger(cfg).Output(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()})
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func patientFlag(cmd *cobra.Command) (uuid.UUID, error) {
	raw, _ := cmd.Flags().GetString("patient")
	if raw == "" {
		return uuid.Nil, fmt.Errorf("--patient is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --patient %q: %w", raw, err)
	}
	return id, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run PostgreSQL migrations for the observation store",
	}

	source := func(cmd *cobra.Command) fs.FS {
		if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
			return os.DirFS(dir)
		}
		return migrations.FS
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, source(cmd)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, source(cmd)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest FILE",
		Short: "Ingest a spreadsheet as a patient's dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, err := patientFlag(cmd)
			if err != nil {
				return err
			}
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			up := ingestion.Upload{FileName: filepath.Base(args[0]), Content: content}
			up.PatientName, _ = cmd.Flags().GetString("name")
			up.AssumeCanonical, _ = cmd.Flags().GetBool("canonical")
			if path, _ := cmd.Flags().GetString("mapping"); path != "" {
				raw, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				var m mapping.Manual
				if err := json.Unmarshal(raw, &m); err != nil {
					return fmt.Errorf("parse mapping %s: %w", path, err)
				}
				up.Mapping = &m
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.ingestion.Ingest(ctx, patientID, up)
				if res != nil {
					if werr := writeJSON(cmd.OutOrStdout(), res); werr != nil {
						return werr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().String("patient", "", "Patient UUID")
	cmd.Flags().String("name", "", "Patient name for the sheet title")
	cmd.Flags().String("mapping", "", "Path to a JSON column mapping")
	cmd.Flags().Bool("canonical", false, "Treat the file as canonical without detection")
	return cmd
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild a patient's observations from the stored dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, err := patientFlag(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				n, err := a.ingestion.Reconcile(ctx, patientID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt %d observation(s) for %s.\n", n, patientID)
				return nil
			})
		},
	}
	cmd.Flags().String("patient", "", "Patient UUID")
	return cmd
}

// detectResult is one line of `detect` output.
type detectResult struct {
	File   string            `json:"file"`
	Report *canonical.Report `json:"report,omitempty"`
	Error  string            `json:"error,omitempty"`
}

func detectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect FILE...",
		Short: "Report whether spreadsheets are in canonical layout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := detectFiles(cmd.Context(), args)
			return writeJSON(cmd.OutOrStdout(), results)
		},
	}
	return cmd
}

// detectFiles inspects files concurrently; results keep argument order and
// per-file failures are reported inline.
func detectFiles(ctx context.Context, paths []string) []detectResult {
	if ctx == nil {
		ctx = context.Background()
	}
	results := make([]detectResult, len(paths))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			results[i] = detectResult{File: path}
			content, err := os.ReadFile(path)
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}
			m, err := sheet.Decode(filepath.Base(path), content)
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}
			report := canonical.DetectMatrix(m)
			results[i].Report = &report
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func timelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeline [FILE]",
		Short: "Segment a canonical dataset into treatment phases and metric series",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				dictPath, _ := cmd.Flags().GetString("dictionary")
				dict, err := metric.Load(dictPath)
				if err != nil {
					return err
				}
				content, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				m, err := sheet.Decode(filepath.Base(args[0]), content)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), timeline.Build(m, dict))
			}

			patientID, err := patientFlag(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				tl, err := a.timeline.ForPatient(ctx, patientID)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), tl)
			})
		},
	}
	cmd.Flags().String("patient", "", "Patient UUID (reads the stored dataset)")
	cmd.Flags().String("dictionary", "", "Metric dictionary YAML for FILE mode")
	return cmd
}

func templateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Create an empty canonical workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			out, _ := cmd.Flags().GetString("out")
			if out != "" {
				dictPath, _ := cmd.Flags().GetString("dictionary")
				dict, err := metric.Load(dictPath)
				if err != nil {
					return err
				}
				content, err := sheet.WriteXLSX(canonical.Template(name, dict), "Sheet1")
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, content, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote template to %s.\n", out)
				return nil
			}

			patientID, err := patientFlag(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.ingestion.CreateTemplate(ctx, patientID, name)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().String("patient", "", "Patient UUID (stores the template as the patient's dataset)")
	cmd.Flags().String("name", "", "Patient name for the sheet title")
	cmd.Flags().String("out", "", "Write the template to this path instead of the store")
	cmd.Flags().String("dictionary", "", "Metric dictionary YAML for --out mode")
	return cmd
}
