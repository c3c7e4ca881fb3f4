package geodata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/sony/gobreaker"
)

// DefaultTileURL is the OSM Mapnik raster tile template.
const DefaultTileURL = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"

// TileServer fetches raster map tiles from a {z}/{x}/{y} URL template.
type TileServer struct {
	template string
	httpCfg  HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker
	cache    Cache
}

func NewTileServer(client *http.Client, template string, opts ...Option) *TileServer {
	if template == "" {
		template = DefaultTileURL
	}
	o := applyOptions(opts)
	return &TileServer{
		template: template,
		httpCfg:  newHTTPConfig("tiles", client, o),
		circuit:  newBreaker("tiles"),
		cache:    o.cache,
	}
}

// TileURL expands the template for one tile.
func (s *TileServer) TileURL(z, x, y int) string {
	return strings.NewReplacer(
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
	).Replace(s.template)
}

// Tile returns the encoded image bytes of tile (z, x, y).
func (s *TileServer) Tile(ctx context.Context, z, x, y int) ([]byte, error) {
	key := fmt.Sprintf("tile/%d/%d/%d", z, x, y)
	if s.cache != nil {
		if raw, ok := s.cache.Get(key); ok {
			return raw, nil
		}
	}

	u := s.TileURL(z, x, y)
	resp, err := doRequestWithResilience(ctx, s.httpCfg, s.circuit, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, u, nil)
	})
	if err != nil {
		return nil, serviceError("tiles", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, serviceError("tiles", err)
	}
	if s.cache != nil {
		s.cache.Set(key, data)
	}
	return data, nil
}
