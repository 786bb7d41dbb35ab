package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := NewDefault()
	cfg.Input.Root = "/in"
	cfg.Output.Path = "/out/data.parquet"
	return cfg
}

func TestDefaultsValidate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
	assert.Error(t, NewDefault().Validate(), "input and output are required")
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"format", func(c *Config) { c.Input.Format = "xml" }},
		{"chunk size", func(c *Config) { c.Read.ChunkSize = 0 }},
		{"delimiter", func(c *Config) { c.Read.Delimiter = "::" }},
		{"quote delimiter", func(c *Config) { c.Read.Delimiter = `"` }},
		{"malformed policy", func(c *Config) { c.Read.MalformedRowPolicy = "ignore" }},
		{"drift policy", func(c *Config) { c.Schema.DriftPolicy = "evolve" }},
		{"topology", func(c *Config) { c.Output.Topology = "sharded" }},
		{"mirrored without dir", func(c *Config) { c.Output.Topology = TopologyMirrored }},
		{"merged mirrored", func(c *Config) {
			c.Output.Topology = TopologyMirrored
			c.Output.Dir = "/out"
			c.Schema.Mode = SchemaModeMerged
		}},
		{"row group", func(c *Config) { c.Output.RowGroupSize = -1 }},
		{"workers", func(c *Config) { c.Run.Workers = -2 }},
		{"publish", func(c *Config) { c.Publish.URI = "ftp://bucket" }},
		{"no output", func(c *Config) { c.Output.Path = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDelimiterRune(t *testing.T) {
	for in, want := range map[string]rune{
		"":    ',',
		",":   ',',
		`\t`:  '\t',
		"tab": '\t',
		"|":   '|',
		";":   ';',
		"^":   '^',
	} {
		r := ReadConfig{Delimiter: in}
		got, err := r.DelimiterRune()
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestGetWorkers(t *testing.T) {
	r := RunConfig{}
	assert.GreaterOrEqual(t, r.GetWorkers(), 1)
	r.Workers = 3
	assert.Equal(t, 3, r.GetWorkers())
}

func TestLoadSubstitutesEnv(t *testing.T) {
	t.Setenv("PARQ_TEST_ROOT", "/mnt/raw")
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
input:
  root: ${PARQ_TEST_ROOT}
read:
  chunkSize: 500
output:
  path: /tmp/out.parquet
  compressionCodec: high-ratio
`), 0o644))

	cfg := NewDefault()
	require.NoError(t, Load(path, cfg))
	assert.Equal(t, "/mnt/raw", cfg.Input.Root)
	assert.Equal(t, 500, cfg.Read.ChunkSize)
	assert.Equal(t, "high-ratio", cfg.Output.CompressionCodec)
	// untouched keys keep defaults
	assert.Equal(t, 1_000_000, cfg.Output.RowGroupSize)
	assert.True(t, cfg.Coerce.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := validConfig()
	cfg.Input.Exclude = []string{"*.tmp"}
	require.NoError(t, Save(path, cfg))

	loaded := &Config{}
	require.NoError(t, Load(path, loaded))
	assert.Equal(t, cfg, loaded)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("A_VAR", "x")
	assert.Equal(t, "x-x-", substituteEnvVars("${A_VAR}-${A_VAR}-${MISSING_VAR_FOR_TEST}"))
	assert.Equal(t, "open ${", substituteEnvVars("open ${"))
}

func TestResolveLayersEnvAndFlags(t *testing.T) {
	t.Setenv("PARQ_READ_CHUNKSIZE", "42")
	t.Setenv("PARQ_SCHEMA_DRIFTPOLICY", "fail")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("output", "", "")
	flags.Int("workers", 0, "")
	require.NoError(t, flags.Parse([]string{"--output", "/x/y.parquet"}))

	cfg, err := Resolve(validConfig(), flags, map[string]string{
		"output.path": "output",
		"run.workers": "workers",
	})
	require.NoError(t, err)
	assert.Equal(t, "/x/y.parquet", cfg.Output.Path)
	assert.Equal(t, 42, cfg.Read.ChunkSize)
	assert.Equal(t, DriftFail, cfg.Schema.DriftPolicy)
	// unchanged flag does not override the base value
	assert.Equal(t, 0, cfg.Run.Workers)
	assert.Equal(t, "/in", cfg.Input.Root)
	assert.True(t, cfg.Output.Dictionary)
}

func TestResolveUnknownFlag(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	_, err := Resolve(validConfig(), flags, map[string]string{"output.path": "nope"})
	assert.Error(t, err)
}
