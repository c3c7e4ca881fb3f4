package geodata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
)

// DefaultArchiveURL is the Open-Meteo historical weather endpoint.
const DefaultArchiveURL = "https://archive-api.open-meteo.com/v1/archive"

// OpenMeteoArchive looks up historical hourly air temperature.
type OpenMeteoArchive struct {
	name    string
	baseURL string
	hour    int
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	cache   Cache
}

// NewOpenMeteoArchive creates an archive client that reports the
// temperature_2m value of the given local hour of the day.
func NewOpenMeteoArchive(client *http.Client, baseURL string, hour int, opts ...Option) *OpenMeteoArchive {
	if baseURL == "" {
		baseURL = DefaultArchiveURL
	}
	o := applyOptions(opts)
	return &OpenMeteoArchive{
		name:    "openmeteo",
		baseURL: baseURL,
		hour:    hour,
		httpCfg: newHTTPConfig("openmeteo", client, o),
		circuit: newBreaker("openmeteo"),
		cache:   o.cache,
	}
}

func (p *OpenMeteoArchive) Name() string {
	return p.name
}

// Temperature returns the temperature in °C at (lat, lon) on the calendar day
// of day. A nil value with a nil error means the archive has no reading.
func (p *OpenMeteoArchive) Temperature(ctx context.Context, lat, lon float64, day time.Time) (*float64, error) {
	date := day.Format("2006-01-02")
	key := fmt.Sprintf("openmeteo/%.5f/%.5f/%s/%d", lat, lon, date, p.hour)
	if v, ok := p.cachedValue(key); ok {
		return &v, nil
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", lat))
		values.Set("longitude", fmt.Sprintf("%f", lon))
		values.Set("start_date", date)
		values.Set("end_date", date)
		values.Set("hourly", "temperature_2m")
		values.Set("timezone", "auto")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, serviceError(p.name, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Hourly struct {
			Time          []string   `json:"time"`
			Temperature2m []*float64 `json:"temperature_2m"`
		} `json:"hourly"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, serviceError(p.name, fmt.Errorf("decode archive response: %w", err))
	}

	temps := payload.Hourly.Temperature2m
	if p.hour < 0 || p.hour >= len(temps) {
		return nil, serviceError(p.name, fmt.Errorf("archive returned %d hourly values, need hour %d", len(temps), p.hour))
	}
	v := temps[p.hour]
	if v == nil {
		return nil, nil
	}
	if p.cache != nil {
		p.cache.Set(key, []byte(strconv.FormatFloat(*v, 'g', -1, 64)))
	}
	return v, nil
}

func (p *OpenMeteoArchive) cachedValue(key string) (float64, bool) {
	if p.cache == nil {
		return 0, false
	}
	raw, ok := p.cache.Get(key)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
