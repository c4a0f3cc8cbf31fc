// Package config loads the application configuration from defaults, an
// optional YAML file, a .env file and HEARTRISK_* environment variables,
// in increasing order of precedence.
package config

import (
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

// EnvPrefix prefixes every environment override, e.g. HEARTRISK_SERVER_PORT.
const EnvPrefix = "HEARTRISK"

// Config is the application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Training TrainingConfig `mapstructure:"training"`
}

// ServerConfig configures the prediction API.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// LogConfig configures the zerolog provider.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PathsConfig locates the files every command reads and writes.
type PathsConfig struct {
	RawData       string `mapstructure:"raw_data"`
	ProcessedData string `mapstructure:"processed_data"`
	SplitDir      string `mapstructure:"split_dir"`
	ReportDir     string `mapstructure:"report_dir"`
	// SelectionModel is written by the train command.
	SelectionModel string `mapstructure:"selection_model"`
	// TunedModel is written by the tune command and served by default.
	TunedModel string `mapstructure:"tuned_model"`
	// ServeModel is the artifact loaded by serve and predict.
	ServeModel string `mapstructure:"serve_model"`
}

// TrainingConfig holds the batch-job knobs.
type TrainingConfig struct {
	Seed     int     `mapstructure:"seed"`
	TestSize float64 `mapstructure:"test_size"`
	Folds    int     `mapstructure:"folds"`
	// NJobs bounds concurrent fits; 0 means all CPUs.
	NJobs int `mapstructure:"n_jobs"`
	// EDA renders exploratory figures during clean.
	EDA bool `mapstructure:"eda"`
}

var defaults = map[string]interface{}{
	"server.host":             "0.0.0.0",
	"server.port":             8000,
	"server.mode":             "release",
	"server.read_timeout":     "10s",
	"server.write_timeout":    "10s",
	"server.shutdown_timeout": "15s",
	"server.cors_origins": []string{
		"http://localhost:3000",
		"http://localhost:3001",
		"http://192.168.0.121:3000",
		"http://192.168.0.121:3001",
	},

	"log.level":  "info",
	"log.format": "console",

	"paths.raw_data":        "data/raw/heart_disease_uci.csv",
	"paths.processed_data":  "data/processed/processed.csv",
	"paths.split_dir":       "data/processed",
	"paths.report_dir":      "report",
	"paths.selection_model": "models/heart_disease_pipeline.gob",
	"paths.tuned_model":     "models/heart_disease_model_final.gob",
	"paths.serve_model":     "models/heart_disease_model_final.gob",

	"training.seed":      42,
	"training.test_size": 0.2,
	"training.folds":     5,
	"training.n_jobs":    0,
	"training.eda":       true,
}

// Load reads the configuration. With an empty path it looks for
// config.yaml in ./configs and the working directory and falls back to
// defaults when none exists; an explicit path must exist.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.NewConfigurationError(".env", err)
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.NewConfigurationError(path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.NewConfigurationError(v.ConfigFileUsed(), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.NewValidationError("server.port", "must be between 1 and 65535", c.Server.Port)
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" && c.Server.Mode != "test" {
		return errors.NewValidationError("server.mode", "must be debug, release or test", c.Server.Mode)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.NewValidationError("log.level", "must be debug, info, warn or error", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return errors.NewValidationError("log.format", "must be json or console", c.Log.Format)
	}
	required := []struct{ key, value string }{
		{"paths.raw_data", c.Paths.RawData},
		{"paths.processed_data", c.Paths.ProcessedData},
		{"paths.split_dir", c.Paths.SplitDir},
		{"paths.selection_model", c.Paths.SelectionModel},
		{"paths.tuned_model", c.Paths.TunedModel},
		{"paths.serve_model", c.Paths.ServeModel},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return errors.NewValidationError(r.key, "is required", nil)
		}
	}
	if c.Training.TestSize <= 0 || c.Training.TestSize >= 1 {
		return errors.NewValidationError("training.test_size", "must be in (0, 1)", c.Training.TestSize)
	}
	if c.Training.Folds < 2 {
		return errors.NewValidationError("training.folds", "must be at least 2", c.Training.Folds)
	}
	if c.Training.Seed < 0 {
		return errors.NewValidationError("training.seed", "must be non-negative", c.Training.Seed)
	}
	return nil
}

// Addr returns host:port.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Provider builds the zerolog provider described by c.
func (c LogConfig) Provider(w io.Writer) *log.ZerologProvider {
	level, _ := log.ParseLevel(c.Level)
	return log.NewZerologProviderWithWriter(w, level, c.Format)
}
