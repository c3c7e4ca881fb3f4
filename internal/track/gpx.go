package track

import (
	"errors"
	"fmt"
	"os"

	"github.com/tkrajina/gpxgo/gpx"
)

// ErrNoPoints is returned for GPX files without any track point.
var ErrNoPoints = errors.New("gpx file has no track points")

// ParseGPX parses GPX bytes into points tagged with trackID. Points from all
// tracks and segments of the file are returned in document order.
func ParseGPX(trackID string, data []byte) ([]Point, error) {
	g, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse gpx %s: %w", trackID, err)
	}

	var points []Point
	for _, trk := range g.Tracks {
		for _, seg := range trk.Segments {
			for _, p := range seg.Points {
				pt := Point{
					TrackID: trackID,
					Lat:     p.Latitude,
					Lon:     p.Longitude,
				}
				if !p.Timestamp.IsZero() {
					ts := p.Timestamp
					pt.Time = &ts
				}
				if p.Elevation.NotNull() {
					alt := p.Elevation.Value()
					pt.Altitude = &alt
				}
				points = append(points, pt)
			}
		}
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%s: %w", trackID, ErrNoPoints)
	}
	return points, nil
}

// ParseGPXFile reads and parses a GPX file.
func ParseGPXFile(trackID, path string) ([]Point, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseGPX(trackID, data)
}
