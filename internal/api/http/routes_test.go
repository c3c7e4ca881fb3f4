package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/track-enrichment/internal/pipeline"
	"github.com/i474232898/track-enrichment/internal/store"
	"github.com/i474232898/track-enrichment/internal/track"
)

type fixedState pipeline.State

func (s fixedState) State() pipeline.State { return pipeline.State(s) }

type fakeTracks struct {
	rows     []track.Row
	gotID    string
	gotLimit int
}

func (f *fakeTracks) Tracks(_ context.Context, trackID string, limit int) ([]track.Row, error) {
	f.gotID, f.gotLimit = trackID, limit
	return f.rows, nil
}

func newTestApp(t *testing.T) (*fiber.App, *store.ReportHistory, *fakeTracks) {
	t.Helper()
	history := store.NewReportHistory(10, 0)
	tracks := &fakeTracks{}
	app := NewApp(Sources{
		State:   fixedState(pipeline.EnrichingTerrain),
		Reports: history,
		Tracks:  tracks,
	})
	return app, history, tracks
}

func get(t *testing.T, app *fiber.App, target string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestHealthAndStatus(t *testing.T) {
	app, history, _ := newTestApp(t)

	if code, _ := get(t, app, "/health"); code != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", code)
	}

	code, body := get(t, app, "/api/v1/status")
	if code != http.StatusOK || !strings.Contains(body, `"state":"enriching_terrain"`) {
		t.Fatalf("unexpected status response %d %s", code, body)
	}
	if strings.Contains(body, "lastCycle") {
		t.Errorf("no cycle has run yet: %s", body)
	}

	history.SaveReport(store.CycleReport{ID: "c1", Result: store.ResultSuccess, StartedAt: time.Now()})
	_, body = get(t, app, "/api/v1/status")
	if !strings.Contains(body, `"id":"c1"`) {
		t.Errorf("expected last cycle in status: %s", body)
	}
}

func TestLatestReport(t *testing.T) {
	app, history, _ := newTestApp(t)

	if code, _ := get(t, app, "/api/v1/reports/latest"); code != http.StatusNotFound {
		t.Fatalf("expected 404 before any cycle, got %d", code)
	}

	history.SaveReport(store.CycleReport{ID: "c1", Result: store.ResultFailed, Error: "downloading: boom", StartedAt: time.Now()})
	code, body := get(t, app, "/api/v1/reports/latest")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var got store.CycleReport
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "c1" || got.Result != store.ResultFailed {
		t.Errorf("unexpected report %+v", got)
	}
}

func TestReportsRangeValidation(t *testing.T) {
	app, history, _ := newTestApp(t)
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	history.SaveReport(store.CycleReport{ID: "c1", StartedAt: started})

	// Missing to parameter.
	if code, _ := get(t, app, "/api/v1/reports?from=2024-05-01T00:00:00Z"); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	// to before from.
	if code, _ := get(t, app, "/api/v1/reports?from=2024-05-02T00:00:00Z&to=2024-05-01T00:00:00Z"); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	// Garbage time.
	if code, _ := get(t, app, "/api/v1/reports?from=yesterday&to=today"); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}

	code, body := get(t, app, "/api/v1/reports?from=2024-05-01T00:00:00Z&to=2024-05-02T00:00:00Z")
	if code != http.StatusOK || !strings.Contains(body, `"id":"c1"`) {
		t.Fatalf("unexpected range response %d %s", code, body)
	}

	if code, _ := get(t, app, "/api/v1/reports?from=1000&to=2000"); code != http.StatusNotFound {
		t.Fatalf("expected 404 for empty range, got %d", code)
	}
}

func TestTracksQuery(t *testing.T) {
	app, _, tracks := newTestApp(t)

	if code, _ := get(t, app, "/api/v1/tracks?limit=0"); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for limit=0, got %d", code)
	}
	if code, _ := get(t, app, "/api/v1/tracks?limit=abc"); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric limit, got %d", code)
	}
	if code, _ := get(t, app, "/api/v1/tracks"); code != http.StatusNotFound {
		t.Fatalf("expected 404 for empty table, got %d", code)
	}
	if tracks.gotLimit != defaultTrackLimit {
		t.Errorf("expected default limit %d, got %d", defaultTrackLimit, tracks.gotLimit)
	}

	tracks.rows = []track.Row{{Point: track.Point{TrackID: "track0.gpx", Lat: 1, Lon: 2}, TerrainType: "forest"}}
	code, body := get(t, app, "/api/v1/tracks?track_id=track0.gpx&limit=5")
	if code != http.StatusOK || !strings.Contains(body, `"count":1`) || !strings.Contains(body, "forest") {
		t.Fatalf("unexpected tracks response %d %s", code, body)
	}
	if tracks.gotID != "track0.gpx" || tracks.gotLimit != 5 {
		t.Errorf("query not forwarded: %q %d", tracks.gotID, tracks.gotLimit)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app, _, _ := newTestApp(t)
	code, body := get(t, app, "/metrics")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if !strings.Contains(body, "track_enrichment_cycle_duration_seconds") {
		t.Errorf("expected pipeline metrics in output")
	}
}
