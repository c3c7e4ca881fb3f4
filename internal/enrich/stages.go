package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/i474232898/track-enrichment/internal/logging"
	"github.com/i474232898/track-enrichment/internal/track"
)

// Stage names, in the order the pipeline applies them.
const (
	StageWeather = "weather"
	StageRegion  = "region"
	StageSteps   = "steps"
	StageTerrain = "terrain"
)

// Stage derives one group of columns for a track in place. A stage that
// returns an error must still leave the track's rows in a usable, possibly
// degraded, state.
type Stage interface {
	Name() string
	Apply(ctx context.Context, t *track.Enriched) error
}

// TemperatureSource returns the daily temperature at a location.
type TemperatureSource interface {
	Temperature(ctx context.Context, lat, lon float64, day time.Time) (*float64, error)
}

// RegionResolver maps a coordinate to an administrative region name.
type RegionResolver interface {
	Name() string
	Region(ctx context.Context, lat, lon float64) (*string, error)
}

// WeatherStage samples temperature at the key indices and interpolates the
// remaining rows.
type WeatherStage struct {
	source TemperatureSource
}

func NewWeatherStage(source TemperatureSource) *WeatherStage {
	return &WeatherStage{source: source}
}

func (s *WeatherStage) Name() string { return StageWeather }

func (s *WeatherStage) Apply(ctx context.Context, t *track.Enriched) error {
	n := len(t.Rows)
	samples := make(map[int]*float64, 5)
	var errs []error
	for _, idx := range KeyIndices(n) {
		if _, done := samples[idx]; done {
			continue
		}
		p := t.Rows[idx].Point
		if p.Time == nil {
			samples[idx] = nil
			continue
		}
		v, err := s.source.Temperature(ctx, p.Lat, p.Lon, *p.Time)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = append(errs, fmt.Errorf("row %d: %w", idx, err))
		}
		samples[idx] = v
	}

	temps := Interpolate(n, samples)
	for i := range t.Rows {
		t.Rows[i].Temperature = temps[i]
	}
	return errors.Join(errs...)
}

// RegionStage resolves the region of a track's first point and applies it
// to every row. Resolvers are tried in order until one returns a region.
type RegionStage struct {
	resolvers []RegionResolver
}

func NewRegionStage(resolvers ...RegionResolver) *RegionStage {
	return &RegionStage{resolvers: resolvers}
}

func (s *RegionStage) Name() string { return StageRegion }

func (s *RegionStage) Apply(ctx context.Context, t *track.Enriched) error {
	if len(t.Rows) == 0 {
		return nil
	}
	first := t.Rows[0].Point

	var (
		region *string
		errs   []error
	)
	for _, r := range s.resolvers {
		v, err := r.Region(ctx, first.Lat, first.Lon)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Debug().Err(err).Str("resolver", r.Name()).Str("track_id", t.ID).Msg("region lookup failed")
			errs = append(errs, err)
			continue
		}
		if v != nil {
			region = v
			break
		}
	}

	for i := range t.Rows {
		t.Rows[i].Region = region
	}
	if region == nil {
		return errors.Join(errs...)
	}
	return nil
}

// StepsStage derives synthetic step counts from point spacing.
type StepsStage struct {
	stepLength float64
}

func NewStepsStage(stepLength float64) *StepsStage {
	return &StepsStage{stepLength: stepLength}
}

func (s *StepsStage) Name() string { return StageSteps }

func (s *StepsStage) Apply(_ context.Context, t *track.Enriched) error {
	steps := track.StepCounts(t.Track().Points, s.stepLength)
	for i := range t.Rows {
		t.Rows[i].Steps = steps[i]
	}
	return nil
}

// TerrainStage broadcasts the track's terrain label and key objects.
type TerrainStage struct {
	classifier *TerrainClassifier
}

func NewTerrainStage(classifier *TerrainClassifier) *TerrainStage {
	return &TerrainStage{classifier: classifier}
}

func (s *TerrainStage) Name() string { return StageTerrain }

func (s *TerrainStage) Apply(ctx context.Context, t *track.Enriched) error {
	terrain, objects, err := s.classifier.Classify(ctx, t.Track())
	for i := range t.Rows {
		t.Rows[i].TerrainType = terrain
		t.Rows[i].KeyObjects = objects
	}
	return err
}
