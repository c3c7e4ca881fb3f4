package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const gpxBody = `<?xml version="1.0"?>
<gpx version="1.1" creator="t" xmlns="http://www.topografix.com/GPX/1/1">
  <trk><trkseg>
    <trkpt lat="47.1" lon="11.1"><time>2024-03-01T10:00:00Z</time></trkpt>
    <trkpt lat="47.2" lon="11.2"><time>2024-03-01T10:10:00Z</time></trkpt>
  </trkseg></trk>
</gpx>`

func TestReadLinksMissingFile(t *testing.T) {
	_, err := ReadLinks(filepath.Join(t.TempDir(), "Links.txt"))
	if !errors.Is(err, ErrMissingInput) {
		t.Fatalf("expected ErrMissingInput, got %v", err)
	}
}

func TestParseLinksSkipsBlankAndComments(t *testing.T) {
	in := "https://a.example/1.gpx\n\n  # old link\n  https://b.example/2.gpx  \r\n"
	links, err := ParseLinks(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ParseLinks: %v", err)
	}
	if len(links) != 2 || links[0] != "https://a.example/1.gpx" || links[1] != "https://b.example/2.gpx" {
		t.Fatalf("unexpected links %q", links)
	}
}

func TestDownloadSkipsFailedLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.gpx" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, gpxBody)
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "gpx")
	d := NewDownloader(srv.Client(), dir, "test-agent")
	links := []string{srv.URL + "/a.gpx", srv.URL + "/missing.gpx", srv.URL + "/c.gpx"}

	res, err := d.Download(context.Background(), links)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(res.Files) != 2 {
		t.Fatalf("expected 2 files, got %v", res.Files)
	}
	if filepath.Base(res.Files[0]) != "track0.gpx" || filepath.Base(res.Files[1]) != "track2.gpx" {
		t.Errorf("files must be named after link position: %v", res.Files)
	}
	if len(res.Failed) != 1 || res.Failed[0].Index != 1 {
		t.Fatalf("expected link 1 to fail, got %+v", res.Failed)
	}
	if _, err := os.Stat(filepath.Join(dir, "track1.gpx")); !os.IsNotExist(err) {
		t.Errorf("failed link must not produce a file")
	}

	points := LoadFiles(append(res.Files, filepath.Join(dir, "nope.gpx")))
	if len(points) != 4 {
		t.Fatalf("expected 4 points, got %d", len(points))
	}
	if points[0].TrackID != "track0.gpx" || points[3].TrackID != "track2.gpx" {
		t.Errorf("unexpected track ids: %s, %s", points[0].TrackID, points[3].TrackID)
	}
}

func TestDownloadHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewDownloader(nil, t.TempDir(), "")
	if _, err := d.Download(ctx, []string{"http://127.0.0.1:1/x.gpx"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
