package main

import (
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/i474232898/track-enrichment/internal/enrich"
)

func newOnceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single pipeline cycle and print the batch report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApplication(runCtx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			batch, err := a.driver.RunCycle(runCtx)
			if batch != nil {
				fmt.Fprintln(cmd.OutOrStdout(), renderBatch(batch))
			}
			return err
		},
	}
}

func renderBatch(batch *enrich.BatchReport) string {
	rows := make([][]string, 0, len(batch.Outcomes))
	for _, o := range batch.Outcomes {
		stages := make([]string, 0, len(o.Failures))
		for _, f := range o.Failures {
			stages = append(stages, f.Stage+": "+f.Reason)
		}
		rows = append(rows, []string{o.TrackID, string(o.Status), strconv.Itoa(o.Rows), strings.Join(stages, "; ")})
	}
	table := renderTable(
		[]string{"Track", "Status", "Rows", "Failures"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	)
	return fmt.Sprintf("%s\n%d succeeded, %d failed", table, batch.Succeeded(), len(batch.Failed()))
}
