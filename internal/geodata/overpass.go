package geodata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/track-enrichment/internal/logging"
)

// DefaultOverpassEndpoints are equivalent public interpreters, tried in order.
var DefaultOverpassEndpoints = []string{
	"https://overpass-api.de/api/interpreter",
	"https://overpass.kumi.systems/api/interpreter",
	"https://overpass.openstreetmap.ru/cgi/interpreter",
}

const overpassServerTimeout = 45

// Element is one tagged OSM node or way.
type Element struct {
	Type string            `json:"type"`
	ID   int64             `json:"id"`
	Tags map[string]string `json:"tags"`
}

type overpassEndpoint struct {
	url     string
	circuit *gobreaker.CircuitBreaker
}

// Overpass queries OSM features around a point.
type Overpass struct {
	endpoints []overpassEndpoint
	radius    int
	timeout   time.Duration
	httpCfg   HTTPClientConfig
}

// NewOverpass creates a client over an ordered endpoint list. The endpoint
// list is the retry policy: each endpoint is tried once per query.
func NewOverpass(client *http.Client, endpoints []string, radius int, timeout time.Duration, opts ...Option) *Overpass {
	if len(endpoints) == 0 {
		endpoints = DefaultOverpassEndpoints
	}
	o := applyOptions(opts)
	cfg := newHTTPConfig("overpass", client, o)
	if o.backoff == nil {
		cfg.Backoff = BackoffConfig{}
	}

	eps := make([]overpassEndpoint, 0, len(endpoints))
	for _, u := range endpoints {
		eps = append(eps, overpassEndpoint{url: u, circuit: newBreaker("overpass " + u)})
	}
	return &Overpass{
		endpoints: eps,
		radius:    radius,
		timeout:   timeout,
		httpCfg:   cfg,
	}
}

// BuildQuery returns the Overpass QL query for features within radius meters
// of (lat, lon).
func BuildQuery(lat, lon float64, radius int) string {
	around := fmt.Sprintf("(around:%d,%s,%s)", radius,
		strconv.FormatFloat(lat, 'f', -1, 64),
		strconv.FormatFloat(lon, 'f', -1, 64))

	selectors := []string{
		"way" + around + `["landuse"]`,
		"way" + around + `["natural"]`,
		"way" + around + `["leisure"]`,
		"way" + around + `["waterway"="river"]`,
		"way" + around + `["waterway"="stream"]`,
		"way" + around + `["natural"="water"]`,
		"node" + around + `["place"="city"]`,
		"node" + around + `["place"="town"]`,
		"node" + around + `["place"="village"]`,
		"node" + around + `["natural"="peak"]`,
		"node" + around + `["natural"="mountain"]`,
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n(\n", overpassServerTimeout)
	for _, s := range selectors {
		b.WriteString("  ")
		b.WriteString(s)
		b.WriteString(";\n")
	}
	b.WriteString(");\nout tags center;\n")
	return b.String()
}

// Query returns the elements around (lat, lon) from the first endpoint that
// answers successfully. If every endpoint fails the error is an
// *ExternalServiceError joining the per-endpoint failures.
func (o *Overpass) Query(ctx context.Context, lat, lon float64) ([]Element, error) {
	query := BuildQuery(lat, lon, o.radius)

	var errs []error
	for _, ep := range o.endpoints {
		elements, err := o.queryEndpoint(ctx, ep, query)
		if err == nil {
			return elements, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.Warn().Err(err).Str("endpoint", ep.url).Msg("overpass endpoint failed, trying next")
		errs = append(errs, fmt.Errorf("%s: %w", ep.url, err))
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("no endpoints configured"))
	}
	return nil, serviceError("overpass", errors.Join(errs...))
}

func (o *Overpass) queryEndpoint(ctx context.Context, ep overpassEndpoint, query string) ([]Element, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	buildRequest := func() (*http.Request, error) {
		u := ep.url + "?" + url.Values{"data": {query}}.Encode()
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, o.httpCfg, ep.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Elements []Element `json:"elements"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode overpass response: %w", err)
	}
	return payload.Elements, nil
}
