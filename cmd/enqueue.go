package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/og-worker/internal/config"
	"github.com/JakeFAU/og-worker/internal/dispatcher"
	"github.com/JakeFAU/og-worker/internal/id/uuid"
	"github.com/JakeFAU/og-worker/internal/og"
)

func newEnqueueCmd() *cobra.Command {
	var (
		url     string
		jobType string
		update  bool
	)
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Publishes one job to the configured queue",
		Long: `Publishes a single job to the configured queue backend. Useful for
backfills and for checking a deployment end to end.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			services, err := newApp(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return fmt.Errorf("init services: %w", err)
			}
			defer func() {
				if cerr := services.Close(); cerr != nil {
					e.logger.Warn("failed to close services", zap.Error(cerr))
				}
			}()

			if e.cfg.Queue.Backend == config.BackendMemory {
				e.logger.Warn("memory queue is process-local; the job is dropped when this command exits")
			}
			d := dispatcher.New(services.Queue(), nil, uuid.New())
			job, err := d.Enqueue(cmd.Context(), og.Job{URL: url, Type: og.JobType(jobType), Update: update})
			if err != nil {
				return fmt.Errorf("enqueue job: %w", err)
			}
			e.logger.Info("job enqueued",
				zap.String("job_id", job.ID),
				zap.String("url", job.URL),
				zap.String("type", string(job.Type)),
				zap.Bool("update", job.Update),
			)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), job.ID)
			return err
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "content URL to enrich (required)")
	cmd.Flags().StringVar(&jobType, "type", string(og.JobTypeArticle), "job type: article, episode or podcast")
	cmd.Flags().BoolVar(&update, "update", false, "replace an existing og image")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}
