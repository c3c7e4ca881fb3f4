// Package ingest reads the link list and downloads the GPX files it names.
package ingest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// ErrMissingInput is returned when the links file does not exist.
var ErrMissingInput = errors.New("links file not found")

// ReadLinks returns the URLs listed in path, one per line. Blank lines and
// lines starting with '#' are skipped.
func ReadLinks(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, path)
		}
		return nil, err
	}
	defer f.Close()
	return ParseLinks(f)
}

// ParseLinks reads newline-delimited links from r.
func ParseLinks(r io.Reader) ([]string, error) {
	var links []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		links = append(links, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read links: %w", err)
	}
	return links, nil
}
