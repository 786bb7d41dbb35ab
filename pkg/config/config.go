// Package config defines the single configuration structure of a conversion
// job, its defaults and its validation.
//
// The configuration is organized into sections that follow the pipeline:
//   - Input: where candidate files come from and how their format is chosen
//   - Read: chunking, delimiter, header, encoding, malformed rows
//   - Coerce and Schema: type inference and schema reconciliation policy
//   - Output: destination topology, codec, row groups
//   - Run: worker count and failure policy
//   - Log, Metrics, Tracing, Publish: ambient concerns
//
// Example usage:
//
//	cfg := config.NewDefault()
//	cfg.Input.Root = "/data/raw"
//	cfg.Output.Path = "/data/out.parquet"
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"runtime"
	"strings"
	"unicode/utf8"
)

// Recognised enumeration values.
const (
	FormatAuto        = "auto"
	FormatDelimited   = "delimited"
	FormatLineRecords = "line-records"

	MalformedSkip  = "skip"
	MalformedAbort = "abort"

	DriftPad  = "pad"
	DriftFail = "fail"

	SchemaModeFirst  = "first"
	SchemaModeMerged = "merged"

	TopologySingle   = "single"
	TopologyMirrored = "mirrored"
)

// Config is the configuration of one conversion job.
type Config struct {
	Input   InputConfig   `yaml:"input" json:"input" mapstructure:"input"`
	Read    ReadConfig    `yaml:"read" json:"read" mapstructure:"read"`
	Coerce  CoerceConfig  `yaml:"coerce" json:"coerce" mapstructure:"coerce"`
	Schema  SchemaConfig  `yaml:"schema" json:"schema" mapstructure:"schema"`
	Output  OutputConfig  `yaml:"output" json:"output" mapstructure:"output"`
	Run     RunConfig     `yaml:"run" json:"run" mapstructure:"run"`
	Log     LogConfig     `yaml:"log" json:"log" mapstructure:"log"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics" mapstructure:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing" mapstructure:"tracing"`
	Publish PublishConfig `yaml:"publish" json:"publish" mapstructure:"publish"`
}

// InputConfig selects candidate files.
type InputConfig struct {
	// Root is the directory scanned for candidates
	Root string `yaml:"root" json:"root" mapstructure:"root"`
	// Paths is an explicit list of files or glob patterns; it replaces the directory scan
	Paths []string `yaml:"paths,omitempty" json:"paths,omitempty" mapstructure:"paths"`
	// Recursive descends into subdirectories of Root
	Recursive bool `yaml:"recursive" json:"recursive" mapstructure:"recursive"`
	// Format is auto, delimited or line-records
	Format string `yaml:"format" json:"format" mapstructure:"format"`
	// Include adds base-name glob patterns that always qualify as candidates
	Include []string `yaml:"include,omitempty" json:"include,omitempty" mapstructure:"include"`
	// Exclude removes base-name glob patterns from the candidates
	Exclude []string `yaml:"exclude,omitempty" json:"exclude,omitempty" mapstructure:"exclude"`
}

// ReadConfig controls the chunk reader.
type ReadConfig struct {
	ChunkSize          int    `yaml:"chunkSize" json:"chunkSize" mapstructure:"chunkSize"`
	Delimiter          string `yaml:"delimiter" json:"delimiter" mapstructure:"delimiter"`
	HasHeader          bool   `yaml:"hasHeader" json:"hasHeader" mapstructure:"hasHeader"`
	Encoding           string `yaml:"encoding" json:"encoding" mapstructure:"encoding"`
	MalformedRowPolicy string `yaml:"malformedRowPolicy" json:"malformedRowPolicy" mapstructure:"malformedRowPolicy"`
	MaxLineBytes       int    `yaml:"maxLineBytes" json:"maxLineBytes" mapstructure:"maxLineBytes"`
}

// CoerceConfig toggles type coercion.
type CoerceConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
}

// SchemaConfig controls schema reconciliation.
type SchemaConfig struct {
	// DriftPolicy is pad (first batch wins) or fail
	DriftPolicy string `yaml:"driftPolicy" json:"driftPolicy" mapstructure:"driftPolicy"`
	// Mode is first (latch on the first batch) or merged (probe every file first)
	Mode string `yaml:"mode" json:"mode" mapstructure:"mode"`
}

// OutputConfig controls the destination.
type OutputConfig struct {
	// Path is the output file for the single topology
	Path string `yaml:"path" json:"path" mapstructure:"path"`
	// Dir is the output root for the mirrored topology
	Dir               string `yaml:"dir" json:"dir" mapstructure:"dir"`
	Topology          string `yaml:"topology" json:"topology" mapstructure:"topology"`
	OverwriteExisting bool   `yaml:"overwriteExisting" json:"overwriteExisting" mapstructure:"overwriteExisting"`
	// CompressionCodec is none, fast, balanced, high-ratio or a raw codec name
	CompressionCodec string `yaml:"compressionCodec" json:"compressionCodec" mapstructure:"compressionCodec"`
	// CompressionLevel of 0 selects the codec default
	CompressionLevel int  `yaml:"compressionLevel" json:"compressionLevel" mapstructure:"compressionLevel"`
	RowGroupSize     int  `yaml:"rowGroupSize" json:"rowGroupSize" mapstructure:"rowGroupSize"`
	Dictionary       bool `yaml:"dictionary" json:"dictionary" mapstructure:"dictionary"`
}

// RunConfig controls execution.
type RunConfig struct {
	// Workers is the number of files read ahead concurrently; 0 means NumCPU
	Workers int `yaml:"workers" json:"workers" mapstructure:"workers"`
	// FailFast turns the first unreadable file into a fatal error
	FailFast bool `yaml:"failFast" json:"failFast" mapstructure:"failFast"`
}

// LogConfig configures pkg/logger.
type LogConfig struct {
	Level    string `yaml:"level" json:"level" mapstructure:"level"`
	Encoding string `yaml:"encoding" json:"encoding" mapstructure:"encoding"`
}

// MetricsConfig configures the optional Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address of /metrics; empty disables the endpoint
	Addr string `yaml:"addr" json:"addr" mapstructure:"addr"`
}

// TracingConfig configures OpenTelemetry spans.
type TracingConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
}

// PublishConfig configures upload of the finished output.
type PublishConfig struct {
	// URI is an s3:// or gs:// prefix; empty disables publishing
	URI string `yaml:"uri" json:"uri" mapstructure:"uri"`
	// Region overrides the AWS region from the environment
	Region string `yaml:"region,omitempty" json:"region,omitempty" mapstructure:"region"`
	// CredentialsFile is a Google service account key used for gs:// targets
	CredentialsFile string `yaml:"credentialsFile,omitempty" json:"credentialsFile,omitempty" mapstructure:"credentialsFile"`
}

// NewDefault returns a configuration with the converter defaults.
func NewDefault() *Config {
	return &Config{
		Input: InputConfig{
			Recursive: true,
			Format:    FormatAuto,
		},
		Read: ReadConfig{
			ChunkSize:          100_000,
			Delimiter:          ",",
			HasHeader:          true,
			Encoding:           "utf-8",
			MalformedRowPolicy: MalformedSkip,
			MaxLineBytes:       16 << 20,
		},
		Coerce: CoerceConfig{Enabled: true},
		Schema: SchemaConfig{
			DriftPolicy: DriftPad,
			Mode:        SchemaModeFirst,
		},
		Output: OutputConfig{
			Topology:         TopologySingle,
			CompressionCodec: "balanced",
			RowGroupSize:     1_000_000,
			Dictionary:       true,
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "console",
		},
	}
}

// Validate checks required fields and enumerations.
func (c *Config) Validate() error {
	if c.Input.Root == "" && len(c.Input.Paths) == 0 {
		return fmt.Errorf("input.root or input.paths is required")
	}
	if err := oneOf("input.format", c.Input.Format, FormatAuto, FormatDelimited, FormatLineRecords); err != nil {
		return err
	}
	if c.Read.ChunkSize <= 0 {
		return fmt.Errorf("read.chunkSize must be positive")
	}
	if _, err := c.Read.DelimiterRune(); err != nil {
		return err
	}
	if err := oneOf("read.malformedRowPolicy", c.Read.MalformedRowPolicy, MalformedSkip, MalformedAbort); err != nil {
		return err
	}
	if c.Read.MaxLineBytes < 0 {
		return fmt.Errorf("read.maxLineBytes cannot be negative")
	}
	if err := oneOf("schema.driftPolicy", c.Schema.DriftPolicy, DriftPad, DriftFail); err != nil {
		return err
	}
	if err := oneOf("schema.mode", c.Schema.Mode, SchemaModeFirst, SchemaModeMerged); err != nil {
		return err
	}
	if err := oneOf("output.topology", c.Output.Topology, TopologySingle, TopologyMirrored); err != nil {
		return err
	}
	switch c.Output.Topology {
	case TopologySingle:
		if c.Output.Path == "" {
			return fmt.Errorf("output.path is required for the single topology")
		}
	case TopologyMirrored:
		if c.Output.Dir == "" {
			return fmt.Errorf("output.dir is required for the mirrored topology")
		}
		if c.Schema.Mode == SchemaModeMerged {
			return fmt.Errorf("schema.mode=merged only applies to the single topology")
		}
	}
	if c.Output.RowGroupSize <= 0 {
		return fmt.Errorf("output.rowGroupSize must be positive")
	}
	if c.Output.CompressionLevel < 0 {
		return fmt.Errorf("output.compressionLevel cannot be negative")
	}
	if c.Run.Workers < 0 {
		return fmt.Errorf("run.workers cannot be negative")
	}
	if c.Publish.URI != "" && !strings.HasPrefix(c.Publish.URI, "s3://") && !strings.HasPrefix(c.Publish.URI, "gs://") {
		return fmt.Errorf("publish.uri must start with s3:// or gs://")
	}
	return nil
}

// GetWorkers returns the number of workers, ensuring it's at least 1
func (r *RunConfig) GetWorkers() int {
	if r.Workers <= 0 {
		return runtime.NumCPU()
	}
	return r.Workers
}

// DelimiterRune decodes the delimiter. Escapes \t and the words "tab",
// "pipe" and "semicolon" are accepted.
func (r *ReadConfig) DelimiterRune() (rune, error) {
	switch strings.ToLower(r.Delimiter) {
	case "", ",", "comma":
		return ',', nil
	case `\t`, "\t", "tab":
		return '\t', nil
	case "|", "pipe":
		return '|', nil
	case ";", "semicolon":
		return ';', nil
	}
	if utf8.RuneCountInString(r.Delimiter) != 1 {
		return 0, fmt.Errorf("read.delimiter must be a single character, got %q", r.Delimiter)
	}
	d, _ := utf8.DecodeRuneInString(r.Delimiter)
	if d == '"' || d == '\r' || d == '\n' || d == utf8.RuneError {
		return 0, fmt.Errorf("read.delimiter %q is not allowed", r.Delimiter)
	}
	return d, nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), value)
}
