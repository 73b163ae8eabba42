package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"newsdesk/internal/app"
	"newsdesk/internal/config"
	"newsdesk/internal/domain"
)

func newRootCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "newsdesk",
		Short:         "Bilingual AI-news aggregation pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(cfg, logger),
		newIngestCmd(cfg, logger),
		newQueueStatusCmd(cfg, logger),
		newBackfillCmd(cfg, logger),
		newImportSourcesCmd(cfg, logger),
	)
	return root
}

// withApp builds the application, runs fn and tears everything down.
func withApp(cfg config.Config, logger *slog.Logger, fn func(ctx context.Context, a *app.Application) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func newServeCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline: scheduled jobs, queue workers and the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, logger, func(ctx context.Context, a *app.Application) error {
				return a.Serve(ctx)
			})
		},
	}
}

func newIngestCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion pass over all active sources and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, logger, func(ctx context.Context, a *app.Application) error {
				stats, err := a.IngestOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"sources=%d failed=%d fetched=%d created=%d skipped=%d pending_review=%d\n",
					stats.Sources, stats.SourcesFailed, stats.Fetched,
					stats.Created, stats.Skipped, stats.PendingReview)
				return nil
			})
		},
	}
}

func newQueueStatusCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "queue-status",
		Short: "Print per-job queue counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, logger, func(ctx context.Context, a *app.Application) error {
				for _, job := range cfg.Monitoring.TrackedJobs {
					snap, err := a.Queue.Counts(ctx, job)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(),
						"%-20s waiting=%d active=%d completed=%d failed=%d\n",
						snap.Job, snap.Waiting, snap.Active, snap.Completed, snap.Failed)
				}
				return nil
			})
		},
	}
}

func newBackfillCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "backfill-translations",
		Short: "Translate the missing language side of pending articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, logger, func(ctx context.Context, a *app.Application) error {
				stats, err := a.Translator.Backfill(ctx, limit)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"translated=%d fallback=%d queued=%d skipped=%d failed=%d\n",
					stats.Translated, stats.Fallback, stats.Queued, stats.Skipped, stats.Failed)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of articles to process")
	return cmd
}

// sourceSpec is the YAML shape of one source in an import file.
type sourceSpec struct {
	Name      string `yaml:"name"`
	Homepage  string `yaml:"homepage"`
	RSSURL    string `yaml:"rss_url"`
	ScrapeURL string `yaml:"scrape_url"`
	Language  string `yaml:"language"`
	Trusted   bool   `yaml:"trusted"`
	Priority  int    `yaml:"priority"`
}

func newImportSourcesCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "import-sources <file>",
		Short: "Import sources from a YAML file, skipping known homepages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read sources file: %w", err)
			}
			var specs []sourceSpec
			if err := yaml.Unmarshal(raw, &specs); err != nil {
				return fmt.Errorf("parse sources file: %w", err)
			}

			return withApp(cfg, logger, func(ctx context.Context, a *app.Application) error {
				imported, skipped := 0, 0
				for _, spec := range specs {
					src := domain.Source{
						Name:      spec.Name,
						Homepage:  spec.Homepage,
						RSSURL:    spec.RSSURL,
						ScrapeURL: spec.ScrapeURL,
						Language:  domain.Language(spec.Language),
						Trusted:   spec.Trusted,
						Enabled:   true,
						Priority:  spec.Priority,
					}
					created, err := a.Store.ImportSource(ctx, &src)
					if err != nil {
						return fmt.Errorf("import %s: %w", spec.Name, err)
					}
					if created {
						imported++
					} else {
						skipped++
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported=%d skipped=%d\n", imported, skipped)
				return nil
			})
		},
	}
}
