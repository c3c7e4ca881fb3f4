package geodata

import (
	"context"
	"errors"
	"sync"

	"github.com/kelvins/geocoder"
	"golang.org/x/time/rate"
)

// reverseGeocode is swapped out in tests.
var reverseGeocode = geocoder.GeocodingReverse

// the geocoder package keeps its key in a global.
var googleKeyMu sync.Mutex

// GoogleGeocoder resolves regions through the Google Geocoding API. It is
// used as a fallback when Nominatim has no answer.
type GoogleGeocoder struct {
	apiKey  string
	limiter *rate.Limiter
	cache   Cache
}

func NewGoogleGeocoder(apiKey string, opts ...Option) *GoogleGeocoder {
	o := applyOptions(opts)
	return &GoogleGeocoder{
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Limit(10), 1),
		cache:   o.cache,
	}
}

func (g *GoogleGeocoder) Name() string {
	return "google"
}

// Region returns the county, state, or country of the first reverse geocoding
// result. The underlying client does not take a context, so cancellation is
// only observed before the call.
func (g *GoogleGeocoder) Region(ctx context.Context, lat, lon float64) (*string, error) {
	if g.apiKey == "" {
		return nil, serviceError(g.Name(), errors.New("api key not configured"))
	}
	key := cacheKey("google", lat, lon)
	if g.cache != nil {
		if raw, ok := g.cache.Get(key); ok {
			r := string(raw)
			return &r, nil
		}
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	googleKeyMu.Lock()
	geocoder.ApiKey = g.apiKey
	addresses, err := reverseGeocode(geocoder.Location{Latitude: lat, Longitude: lon})
	googleKeyMu.Unlock()
	if err != nil {
		return nil, serviceError(g.Name(), err)
	}
	if len(addresses) == 0 {
		return nil, nil
	}

	a := addresses[0]
	region := Address{County: a.County, State: a.State, Country: a.Country}.Region()
	if region != nil && g.cache != nil {
		g.cache.Set(key, []byte(*region))
	}
	return region, nil
}
