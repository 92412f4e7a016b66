package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kirillkom/course-rag-assistant/internal/bootstrap"
	"github.com/kirillkom/course-rag-assistant/internal/config"
	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
	"github.com/kirillkom/course-rag-assistant/internal/observability/logging"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ingest",
		Short: "Index course partitions into the search backend",
		Long: `Index course material into the configured search backend.

Examples:
  ingest run
  ingest run --partition discourse
  ingest enqueue discourse ./posts.json --format discourse
  ingest status 5f0c...`,
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newEnqueueCmd(), newStatusCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var partition string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Ingest manifest partitions synchronously",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, false, func(ctx context.Context, app *bootstrap.App) error {
				sources, err := selectPartitions(app.Partitions, partition)
				if err != nil {
					return err
				}
				for _, src := range sources {
					report, err := app.Pipeline.Run(ctx, src)
					if err != nil {
						return fmt.Errorf("ingest partition %s: %w", src.Name, err)
					}
					if err := printJSON(cmd.OutOrStdout(), report); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&partition, "partition", "p", "", "Ingest only this partition")
	return cmd
}

func newEnqueueCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "enqueue <partition> <file>",
		Short: "Upload a source file and queue it for the worker",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(ctx context.Context, app *bootstrap.App) error {
				partition, path := args[0], args[1]
				if format == "" {
					src, ok := app.Partition(partition)
					if !ok {
						return fmt.Errorf("partition %q is not in the manifest; pass --format", partition)
					}
					format = src.Format
				}

				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("open source: %w", err)
				}
				defer f.Close()

				run, err := app.EnqueueUC.Enqueue(ctx, partition, format, filepath.Base(path), f)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), run)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Source format (defaults to the manifest entry)")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show an ingestion run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(ctx context.Context, app *bootstrap.App) error {
				run, err := app.EnqueueUC.GetByID(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), run)
			})
		},
	}
}

func withApp(cmd *cobra.Command, runs bool, fn func(context.Context, *bootstrap.App) error) error {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewLogger(cmd.ErrOrStderr(), "ingest", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: "ingest", Runs: runs})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()
	return fn(ctx, app)
}

// selectPartitions returns every manifest entry, or only the named one.
func selectPartitions(all []domain.PartitionSource, name string) ([]domain.PartitionSource, error) {
	if name == "" {
		return all, nil
	}
	for _, p := range all {
		if p.Name == name {
			return []domain.PartitionSource{p}, nil
		}
	}
	return nil, fmt.Errorf("partition %q is not in the manifest", name)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
