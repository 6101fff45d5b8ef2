package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Failure policies for upstream feed errors
const (
	FailureBatch   = "batch"
	FailureIsolate = "isolate"
)

// DefaultFeedBaseURL is the MTA GTFS-RT endpoint prefix
const DefaultFeedBaseURL = "https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2F"

// DefaultFeedTimeout bounds a feed request when no timeout is configured
const DefaultFeedTimeout = 10 * time.Second

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port            int      `yaml:"port" toml:"port" validate:"gt=0,lte=65535"`
	MetricsPort     int      `yaml:"metrics_port" toml:"metrics_port" validate:"gte=0,lte=65535"`
	RateLimit       int      `yaml:"rate_limit" toml:"rate_limit" validate:"gte=0"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// FeedsConfig contains upstream GTFS-RT settings
type FeedsConfig struct {
	BaseURL string   `yaml:"base_url" toml:"base_url" validate:"required,url"`
	APIKey  string   `yaml:"api_key" toml:"api_key"`
	Timeout Duration `yaml:"timeout" toml:"timeout" validate:"gt=0"`
}

// ArrivalsConfig tunes the arrival window and failure handling
type ArrivalsConfig struct {
	// Horizon caps how far ahead arrivals are accepted. Zero means unbounded.
	Horizon       Duration `yaml:"horizon" toml:"horizon" validate:"gte=0"`
	FailurePolicy string   `yaml:"failure_policy" toml:"failure_policy" validate:"oneof=batch isolate"`
}

// DataConfig points at static reference data
type DataConfig struct {
	StationsFile    string   `yaml:"stations_file" toml:"stations_file" validate:"required"`
	DefaultStations []string `yaml:"default_stations" toml:"default_stations"`
}

// LogConfig controls the diagnostic logger
type LogConfig struct {
	Level string `yaml:"level" toml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	File  string `yaml:"file" toml:"file"`
}

// Config is the root configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Feeds    FeedsConfig    `yaml:"feeds" toml:"feeds"`
	Arrivals ArrivalsConfig `yaml:"arrivals" toml:"arrivals"`
	Data     DataConfig     `yaml:"data" toml:"data"`
	Log      LogConfig      `yaml:"log" toml:"log"`
}

// Default returns the built-in configuration.
// The default station pair is 59 St / Lexington Av (4/5/6 and N/R/W platforms).
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			RateLimit:       10,
			ShutdownTimeout: Duration(30 * time.Second),
		},
		Feeds: FeedsConfig{
			BaseURL: DefaultFeedBaseURL,
			Timeout: Duration(DefaultFeedTimeout),
		},
		Arrivals: ArrivalsConfig{
			FailurePolicy: FailureBatch,
		},
		Data: DataConfig{
			StationsFile:    "data/mta_stations.json",
			DefaultStations: []string{"629", "R11"},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults. The decoder is chosen by extension:
// .toml uses TOML, anything else YAML. An empty path returns the defaults.
// MTA_API_KEY fills in a missing API key.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			if _, err := toml.Decode(string(data), &cfg); err != nil {
				return Config{}, fmt.Errorf("decode toml config: %w", err)
			}
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("decode yaml config: %w", err)
			}
		}
	}

	if cfg.Feeds.APIKey == "" {
		cfg.Feeds.APIKey = os.Getenv("MTA_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct tags on every section
func (c Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Duration is a time.Duration that decodes from strings like "10s" in both YAML and TOML
type Duration time.Duration

// Std returns d as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalText implements encoding.TextUnmarshaler, used by the TOML decoder
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
