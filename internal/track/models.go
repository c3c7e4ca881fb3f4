package track

import "time"

// Point is one recorded GPS fix. Points are not modified after parsing.
type Point struct {
	TrackID  string     `json:"trackId"`
	Time     *time.Time `json:"time,omitempty"`
	Lat      float64    `json:"latitude"`
	Lon      float64    `json:"longitude"`
	Altitude *float64   `json:"altitude,omitempty"`
}

// Track is the ordered sequence of points sharing a track id, in file order.
type Track struct {
	ID     string
	Points []Point
}

// Len returns the number of points.
func (t Track) Len() int { return len(t.Points) }

// Row is one point together with every derived column. A table is a []Row
// with the rows of each track contiguous and in file order.
type Row struct {
	Point

	Temperature *float64 `json:"temperature,omitempty"`
	Region      *string  `json:"region,omitempty"`
	Steps       float64  `json:"steps"`
	TerrainType string   `json:"terrainType"`
	KeyObjects  *string  `json:"keyObjects,omitempty"`
}

// Enriched is a track's rows as they pass through the enrichment stages.
type Enriched struct {
	ID   string
	Rows []Row
}

// NewEnriched seeds the rows of an enriched track from its points.
func NewEnriched(t Track) *Enriched {
	rows := make([]Row, len(t.Points))
	for i, p := range t.Points {
		rows[i] = Row{Point: p}
	}
	return &Enriched{ID: t.ID, Rows: rows}
}

// Track returns the underlying point sequence.
func (e *Enriched) Track() Track {
	pts := make([]Point, len(e.Rows))
	for i, r := range e.Rows {
		pts[i] = r.Point
	}
	return Track{ID: e.ID, Points: pts}
}

// GroupByTrack splits points into tracks, keeping the first-seen order of
// track ids and the original order of points within each track.
func GroupByTrack(points []Point) []Track {
	var (
		order []string
		byID  = make(map[string][]Point)
	)
	for _, p := range points {
		if _, ok := byID[p.TrackID]; !ok {
			order = append(order, p.TrackID)
		}
		byID[p.TrackID] = append(byID[p.TrackID], p)
	}

	tracks := make([]Track, 0, len(order))
	for _, id := range order {
		tracks = append(tracks, Track{ID: id, Points: byID[id]})
	}
	return tracks
}

// Concat flattens enriched tracks into a single table, preserving track
// order and row order within each track.
func Concat(tracks []*Enriched) []Row {
	n := 0
	for _, t := range tracks {
		n += len(t.Rows)
	}
	rows := make([]Row, 0, n)
	for _, t := range tracks {
		rows = append(rows, t.Rows...)
	}
	return rows
}
