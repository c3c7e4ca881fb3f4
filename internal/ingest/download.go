package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/i474232898/track-enrichment/internal/common"
	"github.com/i474232898/track-enrichment/internal/logging"
	"github.com/i474232898/track-enrichment/internal/metrics"
	"github.com/i474232898/track-enrichment/internal/track"
)

// maxGPXSize caps a single download.
const maxGPXSize = 64 << 20

// DownloadError reports a link that could not be fetched. It never aborts a
// cycle; the link is logged and skipped.
type DownloadError struct {
	Index int
	URL   string
	Err   error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download link %d (%s): %v", e.Index, e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// TrackFileName is the file name of the GPX downloaded from link index i.
func TrackFileName(i int) string {
	return "track" + strconv.Itoa(i) + ".gpx"
}

// Downloader fetches GPX files into a directory.
type Downloader struct {
	client    *http.Client
	dir       string
	userAgent string
}

func NewDownloader(client *http.Client, dir, userAgent string) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{client: client, dir: dir, userAgent: userAgent}
}

// Result lists the files written and the links that failed.
type Result struct {
	Files  []string
	Failed []*DownloadError
}

// Download fetches every link to <dir>/track<i>.gpx, where i is the link's
// position in links. Failed links are collected, not returned as an error;
// only a context cancellation or an unusable directory stops the run.
func (d *Downloader) Download(ctx context.Context, links []string) (Result, error) {
	var res Result
	if err := common.EnsureDir(d.dir); err != nil {
		return res, fmt.Errorf("create gpx dir: %w", err)
	}

	for i, link := range links {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		path := filepath.Join(d.dir, TrackFileName(i))
		if err := d.fetch(ctx, link, path); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			derr := &DownloadError{Index: i, URL: link, Err: err}
			metrics.DownloadFailures.Inc()
			logging.Warn().Err(err).Int("index", i).Str("url", link).Msg("gpx download failed, skipping")
			res.Failed = append(res.Failed, derr)
			continue
		}
		logging.Debug().Str("file", path).Msg("gpx downloaded")
		res.Files = append(res.Files, path)
	}
	return res, nil
}

func (d *Downloader) fetch(ctx context.Context, link, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return err
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxGPXSize))
	if err != nil {
		return err
	}
	return common.WriteFileAtomic(path, data)
}

// LoadFiles parses the given GPX files in order and returns the points of
// all of them. The track id of each point is its file name. Files that fail
// to parse are logged and skipped.
func LoadFiles(paths []string) []track.Point {
	var points []track.Point
	for _, path := range paths {
		name := filepath.Base(path)
		pts, err := track.ParseGPXFile(name, path)
		if err != nil {
			logging.Warn().Err(err).Str("file", name).Msg("skipping unreadable gpx file")
			continue
		}
		points = append(points, pts...)
	}
	return points
}
