// Package analysis prepares the enriched table for exploratory statistics:
// label encoding, season derivation and correlation.
package analysis

import (
	"math"
	"sort"
	"time"

	"github.com/i474232898/track-enrichment/internal/track"
)

// MissingLabel is the code given to absent categorical values.
const MissingLabel = -1

// EncodedRow is a track row with categorical columns replaced by integer
// codes and a season column added.
type EncodedRow struct {
	TrackID     string     `json:"trackId"`
	TrackTime   *time.Time `json:"trackTime,omitempty"`
	Lat         float64    `json:"latitude"`
	Lon         float64    `json:"longitude"`
	Altitude    *float64   `json:"altitude,omitempty"`
	Temperature *float64   `json:"temperature,omitempty"`
	Region      int        `json:"region"`
	Steps       float64    `json:"steps"`
	TerrainType int        `json:"terrainType"`
	KeyObjects  int        `json:"keyObjects"`
	Season      *int       `json:"season,omitempty"`
}

// Encoding lists the classes of each categorical column; a code is the
// index of its value in the list.
type Encoding struct {
	Regions      []string `json:"regions"`
	TerrainTypes []string `json:"terrainTypes"`
	KeyObjects   []string `json:"keyObjects"`
}

// Season maps a month to 1 (winter) .. 4 (autumn).
func Season(t time.Time) int {
	return int(t.Month())%12/3 + 1
}

// Encode label-encodes rows. Codes are assigned over the sorted distinct
// values, so they do not depend on row order and are stable across cycles
// with the same value set.
func Encode(rows []track.Row) ([]EncodedRow, Encoding) {
	regions := make([]*string, len(rows))
	terrains := make([]*string, len(rows))
	objects := make([]*string, len(rows))
	for i := range rows {
		regions[i] = rows[i].Region
		tt := rows[i].TerrainType
		terrains[i] = &tt
		objects[i] = rows[i].KeyObjects
	}

	regionCodes, regionClasses := labelEncode(regions)
	terrainCodes, terrainClasses := labelEncode(terrains)
	objectCodes, objectClasses := labelEncode(objects)

	out := make([]EncodedRow, len(rows))
	for i, r := range rows {
		e := EncodedRow{
			TrackID:     r.TrackID,
			TrackTime:   r.Time,
			Lat:         r.Lat,
			Lon:         r.Lon,
			Altitude:    r.Altitude,
			Temperature: r.Temperature,
			Region:      regionCodes[i],
			Steps:       r.Steps,
			TerrainType: terrainCodes[i],
			KeyObjects:  objectCodes[i],
		}
		if r.Time != nil {
			s := Season(*r.Time)
			e.Season = &s
		}
		out[i] = e
	}
	return out, Encoding{Regions: regionClasses, TerrainTypes: terrainClasses, KeyObjects: objectClasses}
}

func labelEncode(values []*string) ([]int, []string) {
	seen := make(map[string]struct{})
	for _, v := range values {
		if v != nil {
			seen[*v] = struct{}{}
		}
	}
	classes := make([]string, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Strings(classes)

	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	codes := make([]int, len(values))
	for i, v := range values {
		if v == nil {
			codes[i] = MissingLabel
			continue
		}
		codes[i] = index[*v]
	}
	return codes, classes
}

// Dataset is a column-major numeric table. Missing values are NaN.
type Dataset struct {
	Names   []string
	Columns [][]float64
}

// FeatureNames are the columns used for correlation and density plots.
// Identifiers, timestamps and the region code are left out.
var FeatureNames = []string{
	"latitude", "longitude", "altitude", "temperature",
	"steps", "terrain_type", "key_objects_str", "season",
}

// Features extracts FeatureNames from encoded rows.
func Features(rows []EncodedRow) Dataset {
	cols := make([][]float64, len(FeatureNames))
	for i := range cols {
		cols[i] = make([]float64, len(rows))
	}
	for r, row := range rows {
		cols[0][r] = row.Lat
		cols[1][r] = row.Lon
		cols[2][r] = orNaN(row.Altitude)
		cols[3][r] = orNaN(row.Temperature)
		cols[4][r] = row.Steps
		cols[5][r] = float64(row.TerrainType)
		cols[6][r] = float64(row.KeyObjects)
		if row.Season != nil {
			cols[7][r] = float64(*row.Season)
		} else {
			cols[7][r] = math.NaN()
		}
	}
	return Dataset{Names: append([]string(nil), FeatureNames...), Columns: cols}
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
