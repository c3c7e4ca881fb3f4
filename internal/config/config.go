package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/i474232898/track-enrichment/internal/logging"
)

// ConfigPathEnvVar overrides the YAML config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

// AppConfig is the full pipeline configuration.
type AppConfig struct {
	LinksFile string `koanf:"links_file" validate:"required"`
	DataDir   string `koanf:"data_dir" validate:"required"`
	UserAgent string `koanf:"user_agent" validate:"required"`

	HTTP     HTTPConfig     `koanf:"http"`
	Schedule ScheduleConfig `koanf:"schedule"`
	Enrich   EnrichConfig   `koanf:"enrich"`
	Weather  WeatherConfig  `koanf:"weather"`
	Geocoder GeocoderConfig `koanf:"geocoder"`
	Overpass OverpassConfig `koanf:"overpass"`
	Render   RenderConfig   `koanf:"render"`
	Database DatabaseConfig `koanf:"database"`
	Cache    CacheConfig    `koanf:"cache"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type HTTPConfig struct {
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// ScheduleConfig controls the polling loop.
type ScheduleConfig struct {
	Interval          time.Duration `koanf:"interval" validate:"gt=0"`
	RetryDelay        time.Duration `koanf:"retry_delay" validate:"gt=0"`
	MissingInputDelay time.Duration `koanf:"missing_input_delay" validate:"gt=0"`
}

type EnrichConfig struct {
	// MaxTracks caps how many tracks are enriched per cycle (0 = all).
	MaxTracks     int     `koanf:"max_tracks" validate:"gte=0"`
	ExcludeFailed bool    `koanf:"exclude_failed"`
	StepLength    float64 `koanf:"step_length" validate:"gt=0"`
}

type WeatherConfig struct {
	ArchiveURL string `koanf:"archive_url" validate:"required,url"`
	Hour       int    `koanf:"hour" validate:"gte=0,lte=23"`
}

type GeocoderConfig struct {
	NominatimURL string        `koanf:"nominatim_url" validate:"required,url"`
	MinInterval  time.Duration `koanf:"min_interval" validate:"gte=0"`
	GoogleAPIKey string        `koanf:"google_api_key"`
}

type OverpassConfig struct {
	Endpoints []string      `koanf:"endpoints" validate:"min=1,dive,url"`
	Radius    int           `koanf:"radius" validate:"gt=0"`
	Timeout   time.Duration `koanf:"timeout" validate:"gt=0"`
	Pause     time.Duration `koanf:"pause" validate:"gte=0"`
}

type RenderConfig struct {
	TileURL   string  `koanf:"tile_url" validate:"required"`
	Width     int     `koanf:"width" validate:"gte=256"`
	Height    int     `koanf:"height" validate:"gte=256"`
	MarginDeg float64 `koanf:"margin_deg" validate:"gte=0"`
	LineWidth float64 `koanf:"line_width" validate:"gt=0"`
}

// DatabaseConfig selects the relational store. A DSN starting with
// postgres:// or postgresql:// uses PostgreSQL, anything else is a SQLite path.
type DatabaseConfig struct {
	DSN          string `koanf:"dsn" validate:"required"`
	TrackTable   string `koanf:"track_table" validate:"required,sqlident"`
	EncodedTable string `koanf:"encoded_table" validate:"required,sqlident"`
	ClassesTable string `koanf:"classes_table" validate:"required,sqlident"`
	ReportTable  string `koanf:"report_table" validate:"required,sqlident"`
}

type CacheConfig struct {
	// Dir holds the badger response cache. Empty disables caching.
	Dir string        `koanf:"dir"`
	TTL time.Duration `koanf:"ttl" validate:"gte=0"`
}

type ServerConfig struct {
	Enabled bool   `koanf:"enabled"`
	Port    string `koanf:"port" validate:"required,numeric"`
	// HistorySize and HistoryAge bound the in-memory report history.
	HistorySize int           `koanf:"history_size" validate:"gte=0"`
	HistoryAge  time.Duration `koanf:"history_age" validate:"gte=0"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console auto"`
}

// GPXDir, ImageDir and GraphDir are the output locations under DataDir.
func (c *AppConfig) GPXDir() string   { return filepath.Join(c.DataDir, "gpx") }
func (c *AppConfig) ImageDir() string { return filepath.Join(c.DataDir, "image") }
func (c *AppConfig) GraphDir() string { return filepath.Join(c.DataDir, "graph") }

// Default returns the built-in configuration.
func Default() *AppConfig {
	return &AppConfig{
		LinksFile: "Links.txt",
		DataDir:   "data",
		UserAgent: "track-enrichment/1.0 (+https://github.com/i474232898/track-enrichment)",
		HTTP:      HTTPConfig{Timeout: 30 * time.Second},
		Schedule: ScheduleConfig{
			Interval:          time.Hour,
			RetryDelay:        5 * time.Minute,
			MissingInputDelay: time.Minute,
		},
		Enrich: EnrichConfig{
			MaxTracks:  0,
			StepLength: 0.75,
		},
		Weather: WeatherConfig{
			ArchiveURL: "https://archive-api.open-meteo.com/v1/archive",
			Hour:       12,
		},
		Geocoder: GeocoderConfig{
			NominatimURL: "https://nominatim.openstreetmap.org/reverse",
			MinInterval:  1500 * time.Millisecond,
		},
		Overpass: OverpassConfig{
			Endpoints: []string{
				"https://overpass-api.de/api/interpreter",
				"https://overpass.kumi.systems/api/interpreter",
				"https://overpass.openstreetmap.ru/cgi/interpreter",
			},
			Radius:  500,
			Timeout: 60 * time.Second,
			Pause:   1500 * time.Millisecond,
		},
		Render: RenderConfig{
			TileURL:   "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
			Width:     1500,
			Height:    1200,
			MarginDeg: 0.02,
			LineWidth: 2,
		},
		Database: DatabaseConfig{
			DSN:          "data/tracks.db",
			TrackTable:   "track",
			EncodedTable: "track_encoded",
			ClassesTable: "track_classes",
			ReportTable:  "cycle_report",
		},
		Cache: CacheConfig{Dir: "data/cache", TTL: 7 * 24 * time.Hour},
		Server: ServerConfig{
			Enabled:     true,
			Port:        "8080",
			HistorySize: 48,
			HistoryAge:  7 * 24 * time.Hour,
		},
		Logging: LoggingConfig{Level: "info", Format: "auto"},
	}
}

// Load reads configuration: defaults, then an optional YAML file, then the
// environment (a .env file is loaded into the environment first).
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		logging.Debug().Err(err).Msg("no .env file loaded")
	}
	return load(findConfigFile())
}

// LoadFile is Load with an explicit YAML path; an empty path skips the file layer.
func LoadFile(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		logging.Debug().Err(err).Msg("no .env file loaded")
	}
	return load(path)
}

func load(path string) (*AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &AppConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var (
	validate   = newValidator()
	identRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("sqlident", func(fl validator.FieldLevel) bool {
		return identRegex.MatchString(fl.Field().String())
	})
	return v
}

// Validate checks field constraints.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envMappings maps environment variable names to config keys. Variables not
// listed are ignored.
var envMappings = map[string]string{
	"links_file":              "links_file",
	"data_dir":                "data_dir",
	"user_agent":              "user_agent",
	"http_timeout":            "http.timeout",
	"schedule_interval":       "schedule.interval",
	"retry_delay":             "schedule.retry_delay",
	"missing_input_delay":     "schedule.missing_input_delay",
	"max_tracks":              "enrich.max_tracks",
	"exclude_failed_tracks":   "enrich.exclude_failed",
	"step_length":             "enrich.step_length",
	"weather_archive_url":     "weather.archive_url",
	"weather_hour":            "weather.hour",
	"nominatim_url":           "geocoder.nominatim_url",
	"geocoder_min_interval":   "geocoder.min_interval",
	"google_geocoder_api_key": "geocoder.google_api_key",
	"overpass_endpoints":      "overpass.endpoints",
	"overpass_radius":         "overpass.radius",
	"overpass_timeout":        "overpass.timeout",
	"overpass_pause":          "overpass.pause",
	"tile_url":                "render.tile_url",
	"render_width":            "render.width",
	"render_height":           "render.height",
	"database_dsn":            "database.dsn",
	"database_track_table":    "database.track_table",
	"database_encoded_table":  "database.encoded_table",
	"database_classes_table":  "database.classes_table",
	"database_report_table":   "database.report_table",
	"cache_dir":               "cache.dir",
	"cache_ttl":               "cache.ttl",
	"server_enabled":          "server.enabled",
	"port":                    "server.port",
	"report_history_size":     "server.history_size",
	"report_history_age":      "server.history_age",
	"log_level":               "logging.level",
	"log_format":              "logging.format",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

var sliceConfigPaths = []string{"overpass.endpoints"}

// processSliceFields splits comma-separated env values for slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}
