// Package pipeline runs one download, enrich, persist and visualize cycle
// over the tracks listed in the links file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/i474232898/track-enrichment/internal/analysis"
	"github.com/i474232898/track-enrichment/internal/common"
	"github.com/i474232898/track-enrichment/internal/enrich"
	"github.com/i474232898/track-enrichment/internal/ingest"
	"github.com/i474232898/track-enrichment/internal/logging"
	"github.com/i474232898/track-enrichment/internal/metrics"
	"github.com/i474232898/track-enrichment/internal/render"
	"github.com/i474232898/track-enrichment/internal/store"
	"github.com/i474232898/track-enrichment/internal/track"
)

// Downloader fetches the GPX files named by links.
type Downloader interface {
	Download(ctx context.Context, links []string) (ingest.Result, error)
}

// MapRenderer draws a track over map tiles into a PNG file.
type MapRenderer interface {
	RenderFile(ctx context.Context, points []track.Point, path string) error
}

// TableWriter replaces the relational tables written each cycle.
type TableWriter interface {
	ReplaceTracks(ctx context.Context, rows []track.Row) error
	ReplaceEncoded(ctx context.Context, rows []analysis.EncodedRow) error
	ReplaceClasses(ctx context.Context, enc analysis.Encoding) error
	ReplaceReport(ctx context.Context, r store.CycleReport) error
}

// ImageAugmenter writes variants of the base images in a directory.
type ImageAugmenter interface {
	AugmentDir(dir string) ([]string, error)
}

// ReportSaver keeps cycle reports for the status API.
type ReportSaver interface {
	SaveReport(r store.CycleReport)
}

// Config holds the paths and limits used by a cycle.
type Config struct {
	LinksFile     string
	ImageDir      string
	GraphDir      string
	MaxTracks     int
	ExcludeFailed bool
}

// Deps are the collaborators of a Driver. Renderer, Augmenter and History
// are optional.
type Deps struct {
	Downloader Downloader
	Renderer   MapRenderer
	Stages     []enrich.Stage
	Writer     TableWriter
	Augmenter  ImageAugmenter
	History    ReportSaver
}

// Driver runs pipeline cycles and tracks the current state.
type Driver struct {
	cfg       Config
	deps      Deps
	enricher  *enrich.Service
	readLinks func(path string) ([]string, error)
	plot      func(dir string, ds analysis.Dataset) error

	mu    sync.RWMutex
	state State
	log   zerolog.Logger
}

// NewDriver creates a Driver in the idle state.
func NewDriver(cfg Config, deps Deps) *Driver {
	d := &Driver{
		cfg:       cfg,
		deps:      deps,
		readLinks: ingest.ReadLinks,
		plot:      writePlots,
		state:     Idle,
		log:       logging.Logger(),
	}
	d.enricher = enrich.NewService(deps.Stages, enrich.WithStageHook(d.enterStage))
	metrics.SetState(string(Idle), stateNames)
	return d
}

// State returns the current driver state.
func (d *Driver) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
	metrics.SetState(string(s), stateNames)
}

// SetSleeping marks the driver as waiting for its next cycle.
func (d *Driver) SetSleeping() { d.setState(Sleeping) }

func (d *Driver) enterStage(stage string) {
	s, ok := stageStates[stage]
	if !ok {
		return
	}
	d.setState(s)
	d.mu.RLock()
	log := d.log
	d.mu.RUnlock()
	log.Info().Str("state", string(s)).Msg("state entered")
}

// RunCycle runs one full cycle and returns its batch report. A missing links
// file yields ErrMissingInput. Other whole-cycle failures are StageErrors.
// The report is also recorded in the history and the report table.
func (d *Driver) RunCycle(ctx context.Context) (*enrich.BatchReport, error) {
	report := store.CycleReport{ID: uuid.NewString(), StartedAt: time.Now().UTC()}
	log := logging.With().Str("run_id", report.ID).Logger()
	d.mu.Lock()
	d.log = log
	d.mu.Unlock()
	log.Info().Msg("cycle started")

	batch, err := d.runCycle(ctx, log, &report)

	report.FinishedAt = time.Now().UTC()
	switch {
	case err == nil:
		report.Result = store.ResultSuccess
	case errors.Is(err, ErrMissingInput):
		report.Result = store.ResultMissingInput
		report.Error = err.Error()
	default:
		report.Result = store.ResultFailed
		report.Error = err.Error()
	}

	if batch != nil {
		report.Tracks = batch.Outcomes
		if ctx.Err() == nil {
			if werr := d.deps.Writer.ReplaceReport(ctx, report); werr != nil {
				log.Error().Err(werr).Msg("persist cycle report failed")
			}
		}
	}
	if d.deps.History != nil {
		d.deps.History.SaveReport(report)
	}

	metrics.CyclesTotal.WithLabelValues(report.Result).Inc()
	metrics.CycleDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	d.setState(Idle)

	event := log.Info()
	if err != nil {
		event = log.Warn().Err(err)
	}
	event.Str("result", report.Result).
		Int("tracks", len(report.Tracks)).
		Int("rows", report.RowsPersisted).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("cycle finished")

	return batch, err
}

func (d *Driver) runCycle(ctx context.Context, log zerolog.Logger, report *store.CycleReport) (*enrich.BatchReport, error) {
	// downloading
	var tracks []track.Track
	err := d.stage(log, Downloading, func() error {
		links, err := d.readLinks(d.cfg.LinksFile)
		if err != nil {
			return err
		}
		report.Links = len(links)

		res, err := d.deps.Downloader.Download(ctx, links)
		if err != nil {
			return err
		}
		report.Downloaded = len(res.Files)
		for _, f := range res.Failed {
			report.DownloadFailures = append(report.DownloadFailures, f.Error())
		}

		tracks = track.GroupByTrack(ingest.LoadFiles(res.Files))
		if d.cfg.MaxTracks > 0 && len(tracks) > d.cfg.MaxTracks {
			tracks = tracks[:d.cfg.MaxTracks]
		}
		if len(tracks) == 0 {
			return errors.New("no track could be parsed")
		}
		log.Info().Int("links", len(links)).Int("tracks", len(tracks)).Msg("tracks loaded")
		return nil
	})
	if err != nil {
		return nil, err
	}

	// rendering
	if d.deps.Renderer != nil {
		err = d.stage(log, Rendering, func() error {
			if err := common.EnsureDir(d.cfg.ImageDir); err != nil {
				return err
			}
			for _, t := range tracks {
				path := filepath.Join(d.cfg.ImageDir, ImageName(t.ID))
				if err := d.deps.Renderer.RenderFile(ctx, t.Points, path); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					log.Warn().Err(err).Str("track_id", t.ID).Msg("map render failed")
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	// enriching_*: the stage hook moves the state per enrichment stage
	started := time.Now()
	batch, err := d.enricher.Run(ctx, tracks)
	metrics.StageDuration.WithLabelValues("enriching").Observe(time.Since(started).Seconds())
	if err != nil {
		return batch, &StageError{State: d.State(), Err: err}
	}
	log.Info().Int("succeeded", batch.Succeeded()).Int("failed", len(batch.Failed())).Msg("enrichment finished")

	// persisting
	var encoded []analysis.EncodedRow
	err = d.stage(log, Persisting, func() error {
		rows := batch.Rows(d.cfg.ExcludeFailed)
		if err := d.deps.Writer.ReplaceTracks(ctx, rows); err != nil {
			return err
		}
		var enc analysis.Encoding
		encoded, enc = analysis.Encode(rows)
		if err := d.deps.Writer.ReplaceEncoded(ctx, encoded); err != nil {
			return err
		}
		if err := d.deps.Writer.ReplaceClasses(ctx, enc); err != nil {
			return err
		}
		report.Encoding = &enc
		report.RowsPersisted = len(rows)
		metrics.RowsPersisted.Set(float64(len(rows)))
		return nil
	})
	if err != nil {
		return batch, err
	}

	// visualizing
	if len(encoded) > 0 {
		err = d.stage(log, Visualizing, func() error {
			return d.plot(d.cfg.GraphDir, analysis.Features(encoded))
		})
		if err != nil {
			return batch, err
		}
	}

	// augmenting
	if d.deps.Augmenter != nil && d.deps.Renderer != nil {
		err = d.stage(log, Augmenting, func() error {
			written, err := d.deps.Augmenter.AugmentDir(d.cfg.ImageDir)
			log.Info().Int("images", len(written)).Msg("augmented images written")
			return err
		})
		if err != nil {
			return batch, err
		}
	}
	return batch, nil
}

// stage runs fn in state s. Errors other than ErrMissingInput and context
// errors are wrapped in a StageError.
func (d *Driver) stage(log zerolog.Logger, s State, fn func() error) error {
	d.setState(s)
	log.Info().Str("state", string(s)).Msg("state entered")

	started := time.Now()
	err := fn()
	metrics.StageDuration.WithLabelValues(string(s)).Observe(time.Since(started).Seconds())

	if err == nil || errors.Is(err, ErrMissingInput) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &StageError{State: s, Err: err}
}

// ImageName returns the map image file name for a track id.
func ImageName(trackID string) string {
	return common.BaseName(trackID) + ".png"
}

func writePlots(dir string, ds analysis.Dataset) error {
	if err := common.EnsureDir(dir); err != nil {
		return err
	}
	corr := analysis.Correlation(ds)
	if err := render.Heatmap(ds.Names, corr, filepath.Join(dir, render.HeatmapFile)); err != nil {
		return fmt.Errorf("heatmap: %w", err)
	}
	if err := render.DensityGrid(ds.Names, ds.Columns, filepath.Join(dir, render.DensityFile)); err != nil {
		return fmt.Errorf("density plots: %w", err)
	}
	return nil
}
