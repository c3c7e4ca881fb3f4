// Package enrich derives weather, region, step and terrain columns for
// parsed tracks.
package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/i474232898/track-enrichment/internal/logging"
	"github.com/i474232898/track-enrichment/internal/metrics"
	"github.com/i474232898/track-enrichment/internal/track"
)

// Service applies stages to a batch of tracks. Every stage runs over all
// tracks before the next stage starts. A failure on one track is recorded in
// that track's outcome and never stops the others.
type Service struct {
	stages  []Stage
	onStage func(stage string)
}

// Option configures a Service.
type Option func(*Service)

// WithStageHook registers fn to be called before each stage starts.
func WithStageHook(fn func(stage string)) Option {
	return func(s *Service) { s.onStage = fn }
}

// NewService creates a new Service.
func NewService(stages []Stage, opts ...Option) *Service {
	s := &Service{stages: stages}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run enriches tracks and returns the per-track outcomes. The only error
// returned is a context error; per-track failures live in the report.
func (s *Service) Run(ctx context.Context, tracks []track.Track) (*BatchReport, error) {
	report := &BatchReport{
		StartedAt: time.Now().UTC(),
		Outcomes:  make([]Outcome, len(tracks)),
	}
	for i, t := range tracks {
		report.Outcomes[i] = Outcome{
			TrackID: t.ID,
			Status:  StatusSuccess,
			Rows:    t.Len(),
			Track:   track.NewEnriched(t),
		}
	}

	for _, stage := range s.stages {
		if s.onStage != nil {
			s.onStage(stage.Name())
		}
		logging.Info().Str("stage", stage.Name()).Int("tracks", len(tracks)).Msg("enrichment stage started")

		for i := range report.Outcomes {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			o := &report.Outcomes[i]
			err := applyStage(ctx, stage, o.Track)
			if err != nil {
				if ctx.Err() != nil {
					return report, ctx.Err()
				}
				o.fail(stage.Name(), err)
				metrics.TrackOutcomes.WithLabelValues(stage.Name(), string(StatusFailed)).Inc()
				logging.Warn().Err(err).Str("stage", stage.Name()).Str("track_id", o.TrackID).
					Msg("track enrichment degraded")
				continue
			}
			metrics.TrackOutcomes.WithLabelValues(stage.Name(), string(StatusSuccess)).Inc()
			logging.Info().Str("stage", stage.Name()).Str("track_id", o.TrackID).Msg("track enriched")
		}
	}

	report.FinishedAt = time.Now().UTC()
	return report, nil
}

func applyStage(ctx context.Context, stage Stage, t *track.Enriched) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", stage.Name(), r)
		}
	}()
	return stage.Apply(ctx, t)
}
