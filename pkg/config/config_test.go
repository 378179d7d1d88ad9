package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/errors"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.55, cfg.Propensity.A)
	assert.Equal(t, 1.5, cfg.Propensity.B)
	assert.Equal(t, []int{1, 3, 5}, cfg.Evaluate.Ranks)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xmc.yaml")
	yml := `
logging:
  level: debug
propensity:
  mode: joint
  a: 0.6
tfidf:
  backend: streaming
dataset:
  indexBase: 1
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv("XMC_PROPENSITY_B", "2.5")
	t.Setenv("XMC_WORKERS", "8")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, ModeJoint, cfg.Propensity.Mode)
	assert.Equal(t, 0.6, cfg.Propensity.A)
	assert.Equal(t, 2.5, cfg.Propensity.B)
	assert.Equal(t, 8, cfg.Runtime.Workers)
	assert.Equal(t, BackendStreaming, cfg.TFIDF.Backend)
	assert.Equal(t, 1, cfg.Dataset.IndexBase)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("propensity: [unclosed"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, xerrors.ErrConfig)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Propensity.Mode = "magic" }, "unknown mode"},
		{"zero a", func(c *Config) { c.Propensity.A = 0 }, "Propensity.A"},
		{"bad backend", func(c *Config) { c.TFIDF.Backend = "gpu" }, "TFIDF.Backend"},
		{"bad index base", func(c *Config) { c.Dataset.IndexBase = 2 }, "Dataset.IndexBase"},
		{"no ranks", func(c *Config) { c.Evaluate.Ranks = nil }, "Evaluate.Ranks"},
		{"zero rank", func(c *Config) { c.Evaluate.Ranks = []int{0} }, "Evaluate.Ranks[0]"},
		{"pattern without kind", func(c *Config) { c.Propensity.WeightPattern = "w-{split}.txt" }, "weightPattern"},
		{"kafka without brokers", func(c *Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = nil
		}, "kafka.brokers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, xerrors.ErrConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestIsKnownModeCaseInsensitive(t *testing.T) {
	assert.True(t, IsKnownMode("Frequency"))
	assert.True(t, IsKnownMode("legacy"))
	assert.False(t, IsKnownMode(""))
}

func TestExampleConfigIsValid(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "xmc.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8, cfg.Runtime.Workers)
	assert.Equal(t, int64(4096), cfg.TFIDF.MemoryLimitMB)
	assert.Equal(t, "xmc.runs", cfg.Kafka.RunsTopic)
}
