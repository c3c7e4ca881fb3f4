package store

import (
	"errors"
	"sync"
	"time"

	"github.com/i474232898/track-enrichment/internal/analysis"
	"github.com/i474232898/track-enrichment/internal/enrich"
)

var (
	// ErrNotFound is returned when no cycle report matches.
	ErrNotFound = errors.New("no cycle report found")
)

// Cycle results.
const (
	ResultSuccess      = "success"
	ResultMissingInput = "missing_input"
	ResultFailed       = "failed"
)

// CycleReport summarises one pipeline cycle.
type CycleReport struct {
	ID               string           `json:"id"`
	StartedAt        time.Time        `json:"startedAt"`
	FinishedAt       time.Time        `json:"finishedAt"`
	Result           string           `json:"result"`
	Error            string           `json:"error,omitempty"`
	Links            int              `json:"links"`
	Downloaded       int              `json:"downloaded"`
	DownloadFailures []string         `json:"downloadFailures,omitempty"`
	Tracks           []enrich.Outcome `json:"tracks"`
	RowsPersisted    int              `json:"rowsPersisted"`

	// Encoding maps the integer codes of the encoded table back to labels.
	Encoding *analysis.Encoding `json:"encoding,omitempty"`
}

// ReportHistory is a concurrency-safe in-memory history of cycle reports.
type ReportHistory struct {
	mu      sync.RWMutex
	reports []CycleReport

	// retention configuration
	maxHistory int           // max number of reports kept
	maxAge     time.Duration // optional max age for reports
}

// NewReportHistory creates a new ReportHistory with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewReportHistory(maxHistory int, maxAge time.Duration) *ReportHistory {
	return &ReportHistory{
		maxHistory: maxHistory,
		maxAge:     maxAge,
	}
}

// SaveReport appends a report and enforces retention.
func (s *ReportHistory) SaveReport(r CycleReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reports = append(s.reports, r)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(s.reports) > s.maxHistory {
		over := len(s.reports) - s.maxHistory
		s.reports = append([]CycleReport(nil), s.reports[over:]...)
	}

	// Enforce retention by age. The newest report is always kept.
	if s.maxAge > 0 {
		cutoff := time.Now().Add(-s.maxAge)
		i := 0
		for ; i < len(s.reports)-1; i++ {
			if !s.reports[i].StartedAt.Before(cutoff) {
				break
			}
		}
		if i > 0 {
			s.reports = append([]CycleReport(nil), s.reports[i:]...)
		}
	}
}

// GetLatest returns the most recent report.
func (s *ReportHistory) GetLatest() (CycleReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.reports) == 0 {
		return CycleReport{}, ErrNotFound
	}
	return s.reports[len(s.reports)-1], nil
}

// GetRange returns all reports started between from and to (inclusive).
func (s *ReportHistory) GetRange(from, to time.Time) ([]CycleReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []CycleReport
	for _, r := range s.reports {
		if !r.StartedAt.Before(from) && !r.StartedAt.After(to) {
			result = append(result, r)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}
