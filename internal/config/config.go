// Package config loads massing settings from defaults, an optional YAML file
// and MASSING_* environment variables.
package config

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Overpass   OverpassConfig   `mapstructure:"overpass"`
	Valkey     ValkeyConfig     `mapstructure:"valkey"`
	Projection ProjectionConfig `mapstructure:"projection"`
	Height     HeightConfig     `mapstructure:"height"`
	Extrude    ExtrudeConfig    `mapstructure:"extrude"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// OverpassConfig configures the fetcher. Timeout accepts a Go duration
// ("30s") or a bare number of seconds ("30").
type OverpassConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Filters  []string      `mapstructure:"filters"`
	CacheTTL int           `mapstructure:"cache_ttl"`
}

type ValkeyConfig struct {
	Addr    string `mapstructure:"addr"`
	Enabled bool   `mapstructure:"enabled"`
}

type ProjectionConfig struct {
	Scale  float64 `mapstructure:"scale"`
	Center string  `mapstructure:"center"`
}

type HeightConfig struct {
	Story float64 `mapstructure:"story"`
}

type ExtrudeConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency"`
}

type PipelineConfig struct {
	ReplacePrevious bool `mapstructure:"replace_previous"`
}

type ArchiveConfig struct {
	// DataDir holds massing.duckdb. Empty keeps the archive in memory.
	DataDir string `mapstructure:"data_dir"`
	Enabled bool   `mapstructure:"enabled"`
}

// EngineConfig configures the in-memory engine. A zero site means no
// location is set.
type EngineConfig struct {
	SiteLat float64 `mapstructure:"site_lat"`
	SiteLon float64 `mapstructure:"site_lon"`
}

// HasSite reports whether a site location was configured.
func (e EngineConfig) HasSite() bool {
	return e.SiteLat != 0 || e.SiteLon != 0
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration. path names an explicit config file; when empty,
// massing.yaml is looked up in . and ./configs and may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8086)
	v.SetDefault("overpass.endpoint", "http://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.timeout", 25*time.Second)
	v.SetDefault("overpass.filters", []string{"building"})
	v.SetDefault("overpass.cache_ttl", 3600)
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.enabled", false)
	v.SetDefault("projection.scale", 2.407454667562122)
	v.SetDefault("projection.center", "bbox")
	v.SetDefault("height.story", 4.0)
	v.SetDefault("extrude.max_concurrency", 8)
	v.SetDefault("pipeline.replace_previous", true)
	v.SetDefault("archive.data_dir", "")
	v.SetDefault("archive.enabled", true)
	v.SetDefault("engine.site_lat", 0.0)
	v.SetDefault("engine.site_lon", 0.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("massing")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	// MASSING_OVERPASS_ENDPOINT → overpass.endpoint
	v.SetEnvPrefix("MASSING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		secondsToDuration,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsToDuration reads plain numbers as seconds when the target is a
// time.Duration. Anything else passes through unchanged.
func secondsToDuration(from, to reflect.Type, data any) (any, error) {
	if to != durationType || from == durationType {
		return data, nil
	}
	switch from.Kind() {
	case reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		secs, err := cast.ToFloat64E(data)
		if err != nil {
			return data, nil
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	return data, nil
}

// Validate checks that configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Overpass.Endpoint == "" {
		errs = append(errs, "overpass.endpoint is required")
	}
	if c.Overpass.Timeout <= 0 {
		errs = append(errs, "overpass.timeout must be positive")
	}
	if c.Overpass.CacheTTL < 0 {
		errs = append(errs, "overpass.cache_ttl must not be negative")
	}
	if c.Valkey.Enabled && c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required when valkey is enabled")
	}
	if !(c.Projection.Scale > 0) || math.IsInf(c.Projection.Scale, 0) {
		errs = append(errs, "projection.scale must be a positive number")
	}
	if c.Projection.Center != "bbox" && c.Projection.Center != "centroid" {
		errs = append(errs, fmt.Sprintf("projection.center must be bbox or centroid, got %q", c.Projection.Center))
	}
	if !(c.Height.Story > 0) {
		errs = append(errs, "height.story must be positive")
	}
	if c.Extrude.MaxConcurrency <= 0 {
		errs = append(errs, "extrude.max_concurrency must be positive")
	}
	if c.Engine.SiteLat < -90 || c.Engine.SiteLat > 90 {
		errs = append(errs, "engine.site_lat must be in [-90, 90]")
	}
	if c.Engine.SiteLon < -180 || c.Engine.SiteLon > 180 {
		errs = append(errs, "engine.site_lon must be in [-180, 180]")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
