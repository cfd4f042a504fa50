// Package config loads application configuration from file and environment.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Scrape    ScrapeConfig    `yaml:"scrape" mapstructure:"scrape"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Boundary  BoundaryConfig  `yaml:"boundary" mapstructure:"boundary"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ScrapeConfig configures the station source scrapers.
type ScrapeConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	NMDPRAURL   string `yaml:"nmdpra_url" mapstructure:"nmdpra_url"`
	PCNGIURL    string `yaml:"pcngi_url" mapstructure:"pcngi_url"`
	OverpassURL string `yaml:"overpass_url" mapstructure:"overpass_url"`
}

// GeocodeConfig configures the geocoding waterfall.
type GeocodeConfig struct {
	NominatimURL  string  `yaml:"nominatim_url" mapstructure:"nominatim_url"`
	NominatimRPS  float64 `yaml:"nominatim_rps" mapstructure:"nominatim_rps"`
	GoogleAPIKey  string  `yaml:"google_api_key" mapstructure:"google_api_key"`
	CacheTTLDays  int     `yaml:"cache_ttl_days" mapstructure:"cache_ttl_days"`
	MaxConcurrent int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// AnthropicConfig holds Anthropic API settings for page extraction.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// BoundaryConfig configures admin boundary shapefile loading. The GADM
// bundle carries every admin level in a single zip.
type BoundaryConfig struct {
	ShapefileURL string `yaml:"shapefile_url" mapstructure:"shapefile_url"`
	CacheDir     string `yaml:"cache_dir" mapstructure:"cache_dir"`
}

// ExportConfig configures the GeoJSON export.
type ExportConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the dashboard server.
type ServerConfig struct {
	Port             int    `yaml:"port" mapstructure:"port"`
	TileUpstream     string `yaml:"tile_upstream" mapstructure:"tile_upstream"`
	TileFormat       string `yaml:"tile_format" mapstructure:"tile_format"`
	TileCacheEntries int    `yaml:"tile_cache_entries" mapstructure:"tile_cache_entries"`
	TileCacheTTLMins int    `yaml:"tile_cache_ttl_mins" mapstructure:"tile_cache_ttl_mins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CNGATLAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "cng-atlas.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("scrape.user_agent", "cng-atlas/1.0")
	v.SetDefault("scrape.timeout_secs", 120)
	v.SetDefault("scrape.max_retries", 3)
	v.SetDefault("scrape.nmdpra_url", "https://nmdpra.gov.ng/downloads/gas-facilities-licences.xlsx")
	v.SetDefault("scrape.pcngi_url", "https://pcngi.gov.ng/conversion-centers-and-refueling-sites")
	v.SetDefault("scrape.overpass_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("geocode.nominatim_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.nominatim_rps", 1)
	v.SetDefault("geocode.cache_ttl_days", 90)
	v.SetDefault("geocode.max_concurrent", 4)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("boundary.shapefile_url", "https://geodata.ucdavis.edu/gadm/gadm4.1/shp/gadm41_NGA_shp.zip")
	v.SetDefault("boundary.cache_dir", ".cng-atlas/boundaries")
	v.SetDefault("export.path", "cng_locations_ng.geojson")
	v.SetDefault("server.port", 8501)
	v.SetDefault("server.tile_upstream", "https://tile.openstreetmap.org")
	v.SetDefault("server.tile_format", "png")
	v.SetDefault("server.tile_cache_entries", 2048)
	v.SetDefault("server.tile_cache_ttl_mins", 60)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings a command depends on are present.
func (c *Config) Validate(section string) error {
	switch section {
	case "store":
		if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
			return eris.Errorf("config: unknown store driver %q (valid: sqlite, postgres)", c.Store.Driver)
		}
		if c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required (CNGATLAS_STORE_DATABASE_URL)")
		}
	case "anthropic":
		if c.Anthropic.Key == "" {
			return eris.New("config: anthropic key is required for page extraction (CNGATLAS_ANTHROPIC_KEY)")
		}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
