package geodata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// DefaultNominatimURL is the public OSM reverse geocoding endpoint.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org/reverse"

// Address holds the administrative levels returned by reverse geocoding.
type Address struct {
	County  string `json:"county"`
	State   string `json:"state"`
	Country string `json:"country"`
}

// Region picks the most specific non-empty level: county, then state, then
// country. It returns nil when none is known.
func (a Address) Region() *string {
	for _, v := range []string{a.County, a.State, a.Country} {
		if v != "" {
			r := v
			return &r
		}
	}
	return nil
}

// Nominatim resolves coordinates to a region name. Requests are spaced by at
// least the configured interval to respect the public usage policy.
type Nominatim struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	cache   Cache
}

func NewNominatim(client *http.Client, baseURL string, minInterval time.Duration, opts ...Option) *Nominatim {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	o := applyOptions(opts)
	return &Nominatim{
		name:    "nominatim",
		baseURL: baseURL,
		httpCfg: newHTTPConfig("nominatim", client, o),
		circuit: newBreaker("nominatim"),
		limiter: rate.NewLimiter(limit, 1),
		cache:   o.cache,
	}
}

func (n *Nominatim) Name() string {
	return n.name
}

// Region returns the region of (lat, lon), or nil if the point is outside
// any addressed area.
func (n *Nominatim) Region(ctx context.Context, lat, lon float64) (*string, error) {
	key := cacheKey(n.name, lat, lon)
	if n.cache != nil {
		if raw, ok := n.cache.Get(key); ok {
			r := string(raw)
			return &r, nil
		}
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("format", "json")
		values.Set("lat", fmt.Sprintf("%f", lat))
		values.Set("lon", fmt.Sprintf("%f", lon))
		values.Set("zoom", "10")
		values.Set("addressdetails", "1")

		u := fmt.Sprintf("%s?%s", n.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, n.httpCfg, n.circuit, buildRequest)
	if err != nil {
		return nil, serviceError(n.name, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Address *Address `json:"address"`
		Error   string   `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, serviceError(n.name, fmt.Errorf("decode reverse response: %w", err))
	}
	if payload.Address == nil {
		return nil, nil
	}

	region := payload.Address.Region()
	if region != nil && n.cache != nil {
		n.cache.Set(key, []byte(*region))
	}
	return region, nil
}
