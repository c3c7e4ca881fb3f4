package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/i474232898/track-enrichment/internal/cache"
	"github.com/i474232898/track-enrichment/internal/common"
	"github.com/i474232898/track-enrichment/internal/config"
	"github.com/i474232898/track-enrichment/internal/enrich"
	"github.com/i474232898/track-enrichment/internal/geodata"
	"github.com/i474232898/track-enrichment/internal/ingest"
	"github.com/i474232898/track-enrichment/internal/logging"
	"github.com/i474232898/track-enrichment/internal/pipeline"
	"github.com/i474232898/track-enrichment/internal/render"
	"github.com/i474232898/track-enrichment/internal/store"
)

const lockFile = ".track-enrichment.lock"

// application holds the wired pipeline and the resources it owns.
type application struct {
	cfg     *config.AppConfig
	driver  *pipeline.Driver
	history *store.ReportHistory
	sql     *store.SQLStore
	cache   cache.Cache
	lock    *flock.Flock
}

// newApplication takes the data directory lock and wires every pipeline
// component from cfg.
func newApplication(ctx context.Context, cfg *config.AppConfig) (*application, error) {
	for _, dir := range []string{cfg.DataDir, cfg.GPXDir(), cfg.ImageDir(), cfg.GraphDir()} {
		if err := common.EnsureDir(dir); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	lock := flock.New(filepath.Join(cfg.DataDir, lockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, errors.New("another track-enrichment instance is using " + cfg.DataDir)
	}
	a := &application{cfg: cfg, lock: lock}

	if a.cache, err = cache.Open(cfg.Cache.Dir, cfg.Cache.TTL); err != nil {
		a.Close()
		return nil, err
	}

	if !store.IsPostgresDSN(cfg.Database.DSN) {
		if err := common.EnsureDir(filepath.Dir(cfg.Database.DSN)); err != nil {
			a.Close()
			return nil, err
		}
	}
	a.sql, err = store.OpenSQL(ctx, cfg.Database.DSN, store.Tables{
		Track:   cfg.Database.TrackTable,
		Encoded: cfg.Database.EncodedTable,
		Classes: cfg.Database.ClassesTable,
		Report:  cfg.Database.ReportTable,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.history = store.NewReportHistory(cfg.Server.HistorySize, cfg.Server.HistoryAge)

	// Shared HTTP client for outbound geodata calls.
	httpClient := &http.Client{Timeout: cfg.HTTP.Timeout}
	geoOpts := []geodata.Option{geodata.WithCache(a.cache), geodata.WithUserAgent(cfg.UserAgent)}

	resolvers := []enrich.RegionResolver{
		geodata.NewNominatim(httpClient, cfg.Geocoder.NominatimURL, cfg.Geocoder.MinInterval, geoOpts...),
	}
	if cfg.Geocoder.GoogleAPIKey != "" {
		resolvers = append(resolvers, geodata.NewGoogleGeocoder(cfg.Geocoder.GoogleAPIKey, geodata.WithCache(a.cache)))
	}

	overpass := geodata.NewOverpass(&http.Client{Timeout: cfg.Overpass.Timeout},
		cfg.Overpass.Endpoints, cfg.Overpass.Radius, cfg.Overpass.Timeout, geoOpts...)

	stages := []enrich.Stage{
		enrich.NewWeatherStage(geodata.NewOpenMeteoArchive(httpClient, cfg.Weather.ArchiveURL, cfg.Weather.Hour, geoOpts...)),
		enrich.NewRegionStage(resolvers...),
		enrich.NewStepsStage(cfg.Enrich.StepLength),
		enrich.NewTerrainStage(enrich.NewTerrainClassifier(overpass, cfg.Overpass.Pause)),
	}

	tiles := geodata.NewTileServer(httpClient, cfg.Render.TileURL, geoOpts...)
	renderer := render.NewMapRenderer(tiles, render.MapConfig{
		Width:     cfg.Render.Width,
		Height:    cfg.Render.Height,
		MarginDeg: cfg.Render.MarginDeg,
		LineWidth: cfg.Render.LineWidth,
	})

	a.driver = pipeline.NewDriver(pipeline.Config{
		LinksFile:     cfg.LinksFile,
		ImageDir:      cfg.ImageDir(),
		GraphDir:      cfg.GraphDir(),
		MaxTracks:     cfg.Enrich.MaxTracks,
		ExcludeFailed: cfg.Enrich.ExcludeFailed,
	}, pipeline.Deps{
		Downloader: ingest.NewDownloader(httpClient, cfg.GPXDir(), cfg.UserAgent),
		Renderer:   renderer,
		Stages:     stages,
		Writer:     a.sql,
		Augmenter:  render.NewAugmenter(rand.NewSource(time.Now().UnixNano())),
		History:    a.history,
	})

	logging.Info().
		Str("data_dir", cfg.DataDir).
		Str("links_file", cfg.LinksFile).
		Bool("postgres", store.IsPostgresDSN(cfg.Database.DSN)).
		Bool("cache", cfg.Cache.Dir != "").
		Int("region_resolvers", len(resolvers)).
		Msg("pipeline wired")
	return a, nil
}

// Close releases the stores and the data directory lock.
func (a *application) Close() {
	if a.sql != nil {
		if err := a.sql.Close(); err != nil {
			logging.Warn().Err(err).Msg("close database")
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			logging.Warn().Err(err).Msg("close cache")
		}
	}
	if err := a.lock.Unlock(); err != nil {
		logging.Warn().Err(err).Msg("failed to release data directory lock")
	}
}
