package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/track-enrichment/internal/api/http"
	"github.com/i474232898/track-enrichment/internal/logging"
	"github.com/i474232898/track-enrichment/internal/scheduler"
	"github.com/i474232898/track-enrichment/internal/supervisor"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline every interval and serve the status API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			// Wait for termination signal
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApplication(runCtx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			tree := supervisor.NewTree("track-enrichment", supervisor.TreeConfig{})
			tree.AddPipelineService(scheduler.New(scheduler.Config{
				Interval:          cfg.Schedule.Interval,
				RetryDelay:        cfg.Schedule.RetryDelay,
				MissingInputDelay: cfg.Schedule.MissingInputDelay,
			}, a.driver))

			if cfg.Server.Enabled {
				app := httpapi.NewApp(httpapi.Sources{
					State:   a.driver,
					Reports: a.history,
					Tracks:  a.sql,
				})
				tree.AddAPIService(httpapi.NewServer(app, cfg.Server.Port))
			}

			logging.Info().Msg("starting supervisor tree")
			err = tree.Serve(runCtx)
			if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
				logging.Warn().Int("count", len(unstopped)).Msg("services did not stop in time")
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logging.Info().Msg("shutdown complete")
			return nil
		},
	}
}
