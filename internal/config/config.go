package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	API      APIConfig      `yaml:"api" mapstructure:"api"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Metrics  MetricsConfig  `yaml:"metrics" mapstructure:"metrics"`
	MockAPI  MockAPIConfig  `yaml:"mockapi" mapstructure:"mockapi"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// APIConfig holds the remote assessment API settings.
type APIConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`
	Key         string `yaml:"key" mapstructure:"key"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gte=1"`
}

// FetchConfig holds the per-page retry schedule.
type FetchConfig struct {
	MaxAttempts    int `yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=1"`
	ThrottleBaseMs int `yaml:"throttle_base_ms" mapstructure:"throttle_base_ms" validate:"gte=0"`
	ThrottleStepMs int `yaml:"throttle_step_ms" mapstructure:"throttle_step_ms" validate:"gte=0"`
	FlatDelayMs    int `yaml:"flat_delay_ms" mapstructure:"flat_delay_ms" validate:"gte=0"`
	NetworkBaseMs  int `yaml:"network_base_ms" mapstructure:"network_base_ms" validate:"gte=0"`
	NetworkStepMs  int `yaml:"network_step_ms" mapstructure:"network_step_ms" validate:"gte=0"`
}

// PipelineConfig configures the page walk.
type PipelineConfig struct {
	PageSize         int `yaml:"page_size" mapstructure:"page_size" validate:"gte=1,lte=100"`
	CooldownMs       int `yaml:"cooldown_ms" mapstructure:"cooldown_ms" validate:"gte=0"`
	InterPageDelayMs int `yaml:"inter_page_delay_ms" mapstructure:"inter_page_delay_ms" validate:"gte=0"`
	// MaxRunSecs bounds the collection phase. 0 means no limit.
	MaxRunSecs int `yaml:"max_run_secs" mapstructure:"max_run_secs" validate:"gte=0"`
}

// MetricsConfig configures run metrics output.
type MetricsConfig struct {
	// Textfile is a path for a Prometheus textfile; empty disables it.
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// MockAPIConfig configures the local fake API server.
type MockAPIConfig struct {
	Port       int     `yaml:"port" mapstructure:"port" validate:"gte=0,lte=65535"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec" validate:"gte=0"`
	Burst      int     `yaml:"burst" mapstructure:"burst" validate:"gte=0"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ASSESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("api.base_url", "https://assessment.ksensetech.com/api")
	v.SetDefault("api.key", "")
	v.SetDefault("api.timeout_secs", 30)
	v.SetDefault("fetch.max_attempts", 8)
	v.SetDefault("fetch.throttle_base_ms", 600)
	v.SetDefault("fetch.throttle_step_ms", 250)
	v.SetDefault("fetch.flat_delay_ms", 400)
	v.SetDefault("fetch.network_base_ms", 500)
	v.SetDefault("fetch.network_step_ms", 200)
	v.SetDefault("pipeline.page_size", 5)
	v.SetDefault("pipeline.cooldown_ms", 2500)
	v.SetDefault("pipeline.inter_page_delay_ms", 300)
	v.SetDefault("pipeline.max_run_secs", 0)
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("mockapi.port", 8089)
	v.SetDefault("mockapi.rate_per_sec", 2.0)
	v.SetDefault("mockapi.burst", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks the config for the given command mode: "assess", "score"
// or "mockapi".
func (c *Config) Validate(mode string) error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return eris.Wrap(err, "config: validate")
		}
		for _, fe := range verrs {
			errs = append(errs, describe(fe))
		}
	}

	switch mode {
	case "assess":
		if c.API.Key == "" {
			errs = append(errs, "api.key is required")
		}
	case "score":
	case "mockapi":
		if c.MockAPI.Port == 0 {
			errs = append(errs, "mockapi.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// describe renders a field error as "section.key <rule>".
func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
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
