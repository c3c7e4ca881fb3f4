package enrich

import (
	"time"

	"github.com/i474232898/track-enrichment/internal/track"
)

// Status is the per-track result of an enrichment run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// StageFailure records a stage that could not fully enrich a track.
type StageFailure struct {
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
	err    error
}

// Err returns the underlying error.
func (f StageFailure) Err() error { return f.err }

// Outcome is the tagged result for one track: Success carries the enriched
// track, Failed additionally carries the stage failures. A failed track still
// holds rows with degraded values for the stages that failed.
type Outcome struct {
	TrackID  string          `json:"trackId"`
	Status   Status          `json:"status"`
	Rows     int             `json:"rows"`
	Failures []StageFailure  `json:"failures,omitempty"`
	Track    *track.Enriched `json:"-"`
}

// BatchReport collects the outcomes of one enrichment run, in track order.
type BatchReport struct {
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Succeeded returns the number of tracks without failures.
func (r *BatchReport) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == StatusSuccess {
			n++
		}
	}
	return n
}

// Failed returns the outcomes flagged as failed.
func (r *BatchReport) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			failed = append(failed, o)
		}
	}
	return failed
}

// Tracks returns the enriched tracks in order. Failed tracks are skipped when
// excludeFailed is set.
func (r *BatchReport) Tracks(excludeFailed bool) []*track.Enriched {
	tracks := make([]*track.Enriched, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if excludeFailed && o.Status == StatusFailed {
			continue
		}
		tracks = append(tracks, o.Track)
	}
	return tracks
}

// Rows concatenates the rows of Tracks(excludeFailed).
func (r *BatchReport) Rows(excludeFailed bool) []track.Row {
	return track.Concat(r.Tracks(excludeFailed))
}

func (o *Outcome) fail(stage string, err error) {
	o.Status = StatusFailed
	o.Failures = append(o.Failures, StageFailure{Stage: stage, Reason: err.Error(), err: err})
}
