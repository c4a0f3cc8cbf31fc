package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{
		"http://localhost:3000",
		"http://localhost:3001",
		"http://192.168.0.121:3000",
		"http://192.168.0.121:3001",
	}, cfg.Server.CORSOrigins)
	assert.Equal(t, "models/heart_disease_model_final.gob", cfg.Paths.ServeModel)
	assert.Equal(t, 42, cfg.Training.Seed)
	assert.Equal(t, 0.2, cfg.Training.TestSize)
	assert.Equal(t, 5, cfg.Training.Folds)
	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartrisk.yaml")
	yaml := `server:
  port: 9090
  cors_origins:
    - http://example.test
log:
  level: debug
  format: json
paths:
  serve_model: /srv/model.gob
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("HEARTRISK_TRAINING_FOLDS", "3")
	t.Setenv("HEARTRISK_SERVER_MODE", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.Mode, "env overrides the default")
	assert.Equal(t, []string{"http://example.test"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/srv/model.gob", cfg.Paths.ServeModel)
	assert.Equal(t, "models/heart_disease_model_final.gob", cfg.Paths.TunedModel, "unset keys keep defaults")
	assert.Equal(t, 3, cfg.Training.Folds)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	var ce *errors.ConfigurationError
	assert.True(t, errors.As(err, &ce), "got %v", err)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		param  string
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"port too big", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"mode", func(c *Config) { c.Server.Mode = "prod" }, "server.mode"},
		{"level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"format", func(c *Config) { c.Log.Format = "text" }, "log.format"},
		{"serve model", func(c *Config) { c.Paths.ServeModel = " " }, "paths.serve_model"},
		{"test size", func(c *Config) { c.Training.TestSize = 1 }, "training.test_size"},
		{"folds", func(c *Config) { c.Training.Folds = 1 }, "training.folds"},
		{"seed", func(c *Config) { c.Training.Seed = -1 }, "training.seed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			var ve *errors.ValidationError
			err := c.Validate()
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.param, ve.ParamName)
		})
	}
}

func TestLogProvider(t *testing.T) {
	var buf testWriter
	p := LogConfig{Level: "warn", Format: "json"}.Provider(&buf)
	l := p.GetLoggerWithName("config")
	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, string(buf), "hidden")
	assert.Contains(t, string(buf), "shown")
}

type testWriter []byte

func (w *testWriter) Write(p []byte) (int, error) {
	*w = append(*w, p...)
	return len(p), nil
}
