package enrich

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/i474232898/track-enrichment/internal/geodata"
	"github.com/i474232898/track-enrichment/internal/track"
)

// UnknownTerrain is the label used when no land-use or natural tag is found.
const UnknownTerrain = "unknown"

// FeatureSource returns tagged OSM elements around a coordinate.
type FeatureSource interface {
	Query(ctx context.Context, lat, lon float64) ([]geodata.Element, error)
}

// Evidence accumulates tag observations across the sampled points of one
// track. Tag values are kept in observation order.
type Evidence struct {
	Landuse   []string
	Natural   []string
	Landmarks map[string]struct{}
}

// NewEvidence returns empty evidence.
func NewEvidence() *Evidence {
	return &Evidence{Landmarks: make(map[string]struct{})}
}

// Add records the tags of elements returned for one point.
func (e *Evidence) Add(elements []geodata.Element) {
	for _, el := range elements {
		tags := el.Tags
		name, named := tags["name"]
		named = named && name != ""

		if lu, ok := tags["landuse"]; ok {
			e.Landuse = append(e.Landuse, lu)
		} else if nat, ok := tags["natural"]; ok {
			e.Natural = append(e.Natural, nat)
			if (nat == "peak" || nat == "mountain") && named {
				e.Landmarks["Mountain: "+name] = struct{}{}
			}
		}

		if ww := tags["waterway"]; (ww == "river" || ww == "stream") && named {
			e.Landmarks["River: "+name] = struct{}{}
		}
		if place := tags["place"]; (place == "city" || place == "town" || place == "village") && named {
			e.Landmarks[fmt.Sprintf("Settlement: %s (%s)", name, place)] = struct{}{}
		}
		if el.Type == "way" && tags["natural"] == "water" && named {
			e.Landmarks["Lake: "+name] = struct{}{}
		}
	}
}

// Classify returns the majority land-use value, else the majority natural
// value, else "unknown", together with the sorted landmarks joined by "; "
// (nil when there are none).
func (e *Evidence) Classify() (string, *string) {
	terrain := UnknownTerrain
	switch {
	case len(e.Landuse) > 0:
		terrain = majority(e.Landuse)
	case len(e.Natural) > 0:
		terrain = majority(e.Natural)
	}

	if len(e.Landmarks) == 0 {
		return terrain, nil
	}
	names := make([]string, 0, len(e.Landmarks))
	for k := range e.Landmarks {
		names = append(names, k)
	}
	sort.Strings(names)
	joined := strings.Join(names, "; ")
	return terrain, &joined
}

// majority returns the most frequent value. Ties go to the value seen first.
func majority(values []string) string {
	counts := make(map[string]int, len(values))
	var order []string
	for _, v := range values {
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}

	best, bestCount := "", 0
	for _, v := range order {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best
}

// RepresentativePoints returns the first, middle (n/2) and last point.
func RepresentativePoints(points []track.Point) []track.Point {
	n := len(points)
	if n == 0 {
		return nil
	}
	return []track.Point{points[0], points[n/2], points[n-1]}
}

// TerrainClassifier labels a track from the OSM features around its
// representative points.
type TerrainClassifier struct {
	source  FeatureSource
	limiter *rate.Limiter
}

// NewTerrainClassifier creates a classifier that spaces consecutive feature
// queries by at least pause, across tracks as well as within one.
func NewTerrainClassifier(source FeatureSource, pause time.Duration) *TerrainClassifier {
	limit := rate.Inf
	if pause > 0 {
		limit = rate.Every(pause)
	}
	return &TerrainClassifier{source: source, limiter: rate.NewLimiter(limit, 1)}
}

// Classify returns the terrain label and key objects of t. If any query
// fails the result is ("unknown", nil) together with the error.
func (c *TerrainClassifier) Classify(ctx context.Context, t track.Track) (string, *string, error) {
	ev := NewEvidence()
	for _, p := range RepresentativePoints(t.Points) {
		if err := c.limiter.Wait(ctx); err != nil {
			return UnknownTerrain, nil, err
		}
		elements, err := c.source.Query(ctx, p.Lat, p.Lon)
		if err != nil {
			return UnknownTerrain, nil, err
		}
		ev.Add(elements)
	}
	terrain, objects := ev.Classify()
	return terrain, objects, nil
}
