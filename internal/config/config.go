package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var validate = validator.New()

type Backend struct {
	AsyncURL string        `envconfig:"BACKEND_ASYNC_URL" default:"http://localhost:8080/api/weather/async" validate:"required,url"`
	SyncURL  string        `envconfig:"BACKEND_SYNC_URL" default:"http://localhost:8080/api/weather/sync" validate:"required,url"`
	Timeout  time.Duration `envconfig:"BACKEND_TIMEOUT" default:"10s" validate:"gt=0"`
}

type Breaker struct {
	Interval time.Duration `envconfig:"BREAKER_INTERVAL" default:"60s" validate:"gte=0"`
	Timeout  time.Duration `envconfig:"BREAKER_TIMEOUT" default:"30s" validate:"gt=0"`
	Failures uint32        `envconfig:"BREAKER_FAILURES" default:"5"` // 0 disables tripping
}

type Logos struct {
	// Providers maps provider identifiers to asset references, e.g.
	// WeatherBit=/static/logos/weatherbit.svg,WeatherAPI=https://cdn.example.com/wa.png.
	Providers   LogoMap `envconfig:"PROVIDER_LOGOS" default:"WeatherBit=/static/logos/weatherbit.svg,WeatherAPI=/static/logos/weatherapi.svg,OpenWeatherMap=/static/logos/openweather.svg"`
	Placeholder string  `envconfig:"PLACEHOLDER_LOGO" default:"/static/logos/placeholder.svg" validate:"required"`
}

// LogoMap decodes comma-separated provider=reference pairs. Only the first '='
// of a pair separates, so references may be absolute URLs with query strings.
type LogoMap map[string]string

// Decode implements envconfig.Decoder.
func (m *LogoMap) Decode(value string) error {
	out := LogoMap{}
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, ref, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return fmt.Errorf("invalid logo entry %q, want provider=reference", pair)
		}
		out[name] = strings.TrimSpace(ref)
	}
	*m = out
	return nil
}

type History struct {
	Size   int           `envconfig:"HISTORY_SIZE" default:"50" validate:"gte=0"`        // 0 = unlimited
	MaxAge time.Duration `envconfig:"HISTORY_MAX_AGE" default:"24h" validate:"gte=0"` // 0 = unlimited
}

type AppConfig struct {
	Port string `envconfig:"PORT" default:"3000" validate:"required,numeric"`

	// SyncDelay is how long the sync request is held back behind the async one.
	SyncDelay    time.Duration `envconfig:"SYNC_DELAY" default:"1s" validate:"gt=0"`
	CycleTimeout time.Duration `envconfig:"CYCLE_TIMEOUT" default:"30s" validate:"gt=0"`

	// RefreshInterval enables scheduled collection cycles (0 = off).
	RefreshInterval time.Duration `envconfig:"REFRESH_INTERVAL" default:"0s" validate:"gte=0"`

	DisplayTimeZone string `envconfig:"DISPLAY_TIMEZONE" default:"Local" validate:"required"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json console"`

	Backend Backend
	Breaker Breaker
	Logos   Logos
	History History
}

// Load reads configuration from the environment (and an optional .env file)
// with sensible defaults, then validates it.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and that the display time zone exists.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid DISPLAY_TIMEZONE: %w", err)
	}
	return nil
}

// Location resolves DisplayTimeZone.
func (c *AppConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.DisplayTimeZone)
}
