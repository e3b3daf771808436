package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/techsheet/internal/bootstrap"
	"github.com/kirillkom/techsheet/internal/config"
	"github.com/kirillkom/techsheet/internal/core/domain"
	"github.com/kirillkom/techsheet/internal/core/sketch"
	"github.com/kirillkom/techsheet/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/techsheet/internal/observability/logging"
)

const service = "techsheet-cli"

type rootOptions struct {
	configFile string
	logLevel   string
}

// appFactory is swapped in tests.
type appFactory func(ctx context.Context, opts rootOptions) (*bootstrap.App, error)

func newRootCmd() *cobra.Command {
	return newRootCmdWith(openApp)
}

func newRootCmdWith(open appFactory) *cobra.Command {
	opts := rootOptions{}
	root := &cobra.Command{
		Use:           "specctl",
		Short:         "Maintenance CLI for garment technical specifications",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "YAML config file (overrides TECHSHEET_CONFIG)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug|info|warn|error)")

	root.AddCommand(
		newProcessCmd(&opts, open),
		newPromptCmd(&opts, open),
		newMigrateCmd(&opts, open),
		newThumbnailsCmd(&opts, open),
		newExportCmd(&opts, open),
	)
	return root
}

func openApp(ctx context.Context, opts rootOptions) (*bootstrap.App, error) {
	if opts.configFile != "" {
		if err := os.Setenv("TECHSHEET_CONFIG", opts.configFile); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	logger := logging.New(os.Stderr, service, cfg.LogLevel, "text")
	return bootstrap.New(ctx, cfg, logger, bootstrap.Options{Service: service})
}

func newProcessCmd(opts *rootOptions, open appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "process <spec-id>",
		Short: "Run the extraction pipeline for one specification and print the run report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := open(cmd.Context(), *opts)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.ProcessUC.ProcessByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newPromptCmd(opts *rootOptions, open appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "prompt <spec-id>",
		Short: "Print the flat-sketch instruction composed from the stored fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := open(cmd.Context(), *opts)
			if err != nil {
				return err
			}
			defer app.Close()

			spec, err := app.Repo.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			prompt := sketch.Compose(spec, domain.NoAnalysis())
			fmt.Fprintf(cmd.OutOrStdout(), "# template: %s\n%s\n", prompt.Template, prompt.Text)
			return nil
		},
	}
}

func newMigrateCmd(opts *rootOptions, open appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-drawings",
		Short: "Copy locally stored technical drawings to the configured object store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := open(cmd.Context(), *opts)
			if err != nil {
				return err
			}
			defer app.Close()

			if app.Config.DrawingStore == "local" {
				return fmt.Errorf("DRAWING_STORE is local; set gcs or s3 to migrate")
			}
			report, err := app.MigrateUC.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total=%d migrated=%d skipped=%d errors=%d\n",
				report.Total, report.Migrated, report.Skipped, report.Errors)
			if report.Errors > 0 {
				return fmt.Errorf("%d drawings failed to migrate", report.Errors)
			}
			return nil
		},
	}
}

func newThumbnailsCmd(opts *rootOptions, open appFactory) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "thumbnails",
		Short: "Render first-page thumbnails for PDF specifications that lack one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := open(cmd.Context(), *opts)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.ThumbnailUC.Backfill(cmd.Context(), concurrency)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total=%d processed=%d errors=%d\n",
				report.Total, report.Processed, report.Errors)
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "parallel renders")
	return cmd
}

func newExportCmd(opts *rootOptions, open appFactory) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <spec-id>",
		Short: "Write the specification as an .xlsx technical sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := open(cmd.Context(), *opts)
			if err != nil {
				return err
			}
			defer app.Close()

			spec, err := app.Repo.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output == "" {
				output = spec.ID + ".xlsx"
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			if err := xlsx.Write(f, spec); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default <spec-id>.xlsx)")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
