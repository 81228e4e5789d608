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
	Log      LogConfig           `yaml:"log" mapstructure:"log"`
	Input    InputConfig         `yaml:"input" mapstructure:"input"`
	Counties CountiesConfig      `yaml:"counties" mapstructure:"counties"`
	Scoring  ScoringConfig       `yaml:"scoring" mapstructure:"scoring"`
	Export   ExportConfig        `yaml:"export" mapstructure:"export"`
	Validate ValidateConfig      `yaml:"validate" mapstructure:"validate"`
	Batch    BatchConfig         `yaml:"batch" mapstructure:"batch"`
	Regions  map[string][]string `yaml:"regions" mapstructure:"regions"`
	Fetch    FetchConfig         `yaml:"fetch" mapstructure:"fetch"`
	Store    StoreConfig         `yaml:"store" mapstructure:"store"`
	Metrics  MetricsConfig       `yaml:"metrics" mapstructure:"metrics"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// InputConfig locates the tile score table.
type InputConfig struct {
	Tiles     string `yaml:"tiles" mapstructure:"tiles"`
	SheetName string `yaml:"sheet_name" mapstructure:"sheet_name"`
}

// CountiesConfig locates the county boundary reference dataset.
type CountiesConfig struct {
	Path     string `yaml:"path" mapstructure:"path"`
	URL      string `yaml:"url" mapstructure:"url"`
	Year     int    `yaml:"year" mapstructure:"year"`
	CacheDir string `yaml:"cache_dir" mapstructure:"cache_dir"`
}

// ScoringConfig holds the weight tables and aggregation parameters.
type ScoringConfig struct {
	WeightsFile      string             `yaml:"weights_file" mapstructure:"weights_file"`
	Obsolescence     map[string]float64 `yaml:"obsolescence" mapstructure:"obsolescence"`
	Growth           map[string]float64 `yaml:"growth" mapstructure:"growth"`
	Percentile       float64            `yaml:"percentile" mapstructure:"percentile"`
	InvertVegetation bool               `yaml:"invert_vegetation" mapstructure:"invert_vegetation"`
	Precision        int                `yaml:"precision" mapstructure:"precision"`
	Confidence       ConfidenceConfig   `yaml:"confidence" mapstructure:"confidence"`
}

// ConfidenceConfig parameterizes the per-county confidence value.
type ConfidenceConfig struct {
	Base            float64 `yaml:"base" mapstructure:"base"`
	PerTile         float64 `yaml:"per_tile" mapstructure:"per_tile"`
	Max             float64 `yaml:"max" mapstructure:"max"`
	VariancePenalty float64 `yaml:"variance_penalty" mapstructure:"variance_penalty"`
}

// ExportConfig configures the GeoJSON output.
type ExportConfig struct {
	Output      string   `yaml:"output" mapstructure:"output"`
	OutputDir   string   `yaml:"output_dir" mapstructure:"output_dir"`
	Simplify    float64  `yaml:"simplify" mapstructure:"simplify"`
	LegendField string   `yaml:"legend_field" mapstructure:"legend_field"`
	ColorRamp   []string `yaml:"color_ramp" mapstructure:"color_ramp"`
	Visualize   bool     `yaml:"visualize" mapstructure:"visualize"`
	ImageWidth  int      `yaml:"image_width" mapstructure:"image_width"`
}

// ValidateConfig configures the advisory QA pass.
type ValidateConfig struct {
	WriteReport bool `yaml:"write_report" mapstructure:"write_report"`
}

// BatchConfig configures regional fan-out.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// FetchConfig configures remote input retrieval.
type FetchConfig struct {
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// StoreConfig configures optional persistence of runs and scores.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// MetricsConfig configures the prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COUNTYSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("input.tiles", "data/tile_scores.csv")
	v.SetDefault("counties.path", "")
	v.SetDefault("counties.year", 2024)
	v.SetDefault("counties.cache_dir", "data/tiger")
	v.SetDefault("scoring.obsolescence", map[string]float64{
		"built_up":    0.4,
		"veg_health":  0.4,
		"urban_index": 0.2,
	})
	v.SetDefault("scoring.growth", map[string]float64{
		"veg_health":         0.4,
		"built_up_potential": 0.4,
		"water_availability": 0.2,
	})
	v.SetDefault("scoring.percentile", 75)
	v.SetDefault("scoring.invert_vegetation", true)
	v.SetDefault("scoring.precision", 6)
	v.SetDefault("scoring.confidence.base", 0.5)
	v.SetDefault("scoring.confidence.per_tile", 0.05)
	v.SetDefault("scoring.confidence.max", 0.95)
	v.SetDefault("scoring.confidence.variance_penalty", 1.0)
	v.SetDefault("export.output", "data/final/county_scores.geojson")
	v.SetDefault("export.output_dir", "data/final/regions")
	v.SetDefault("export.legend_field", "obsolescence_score")
	v.SetDefault("export.color_ramp", []string{"#2c7bb6", "#ffffbf", "#d7191c"})
	v.SetDefault("export.image_width", 1600)
	v.SetDefault("validate.write_report", true)
	v.SetDefault("batch.concurrency", 3)
	v.SetDefault("fetch.timeout_secs", 600)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.rate_per_sec", 2)
	v.SetDefault("fetch.user_agent", "countyscore/1.0")
	v.SetDefault("store.driver", "none")

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
