package main

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/internal/pipeline"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/config"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/metrics"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/observability"
)

// flagBindings maps configuration keys to convert flags.
var flagBindings = map[string]string{
	"input.root":               "input",
	"input.paths":              "paths",
	"input.recursive":          "recursive",
	"input.format":             "format",
	"input.include":            "include",
	"input.exclude":            "exclude",
	"read.chunkSize":           "chunk-size",
	"read.delimiter":           "delimiter",
	"read.hasHeader":           "header",
	"read.encoding":            "encoding",
	"read.malformedRowPolicy":  "malformed",
	"read.maxLineBytes":        "max-line-bytes",
	"coerce.enabled":           "coerce",
	"schema.driftPolicy":       "drift-policy",
	"schema.mode":              "schema-mode",
	"output.path":              "output",
	"output.dir":               "output-dir",
	"output.topology":          "topology",
	"output.overwriteExisting": "overwrite",
	"output.compressionCodec":  "codec",
	"output.compressionLevel":  "level",
	"output.rowGroupSize":      "row-group-size",
	"output.dictionary":        "dictionary",
	"run.workers":              "workers",
	"run.failFast":             "fail-fast",
	"log.level":                "log-level",
	"log.encoding":             "log-encoding",
	"metrics.addr":             "metrics-addr",
	"tracing.enabled":          "trace",
	"publish.uri":              "publish",
	"publish.region":           "publish-region",
	"publish.credentialsFile":  "publish-credentials",
}

func newConvertCommand(g *globalFlags) *cobra.Command {
	var summaryJSON bool
	d := config.NewDefault()

	cmd := &cobra.Command{
		Use:   "convert [flags] [file or glob ...]",
		Short: "Convert input files to Parquet",
		Long: `Convert every candidate file under --input, or the files and globs given as
arguments, into Parquet.

Example:
  parq convert --input ./dumps --output comments.parquet --codec high-ratio
  parq convert --topology mirrored --input ./dumps --output-dir ./parquet 'extra/*.jsonl.zst'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 && !cmd.Flags().Changed("paths") {
				if err := cmd.Flags().Set("paths", strings.Join(args, ",")); err != nil {
					return err
				}
			}
			return runConvert(cmd, g, summaryJSON)
		},
	}

	f := cmd.Flags()
	f.StringP("input", "i", "", "Input directory scanned for candidate files")
	f.StringSlice("paths", nil, "Explicit input files or glob patterns; replaces the directory scan")
	f.Bool("recursive", d.Input.Recursive, "Descend into subdirectories of --input")
	f.String("format", d.Input.Format, "Input format: auto, delimited or line-records")
	f.StringSlice("include", nil, "Extra file name patterns treated as candidates")
	f.StringSlice("exclude", nil, "File name patterns removed from the candidates")

	f.Int("chunk-size", d.Read.ChunkSize, "Rows per batch")
	f.String("delimiter", d.Read.Delimiter, `Field delimiter (",", "tab", "|", ";" or any single character)`)
	f.Bool("header", d.Read.HasHeader, "First delimited row holds column names")
	f.String("encoding", d.Read.Encoding, "Text encoding of the input (e.g. utf-8, latin1, windows-1252)")
	f.String("malformed", d.Read.MalformedRowPolicy, "Malformed row policy: skip or abort")
	f.Int("max-line-bytes", d.Read.MaxLineBytes, "Longest accepted JSON line in bytes")
	f.Bool("coerce", d.Coerce.Enabled, "Infer integer, float and boolean columns from text")
	f.String("drift-policy", d.Schema.DriftPolicy, "Column set changes after the first batch: pad or fail")
	f.String("schema-mode", d.Schema.Mode, "Canonical schema source: first batch or merged probe of all files")

	f.StringP("output", "o", "", "Output file for the single topology")
	f.String("output-dir", "", "Output root for the mirrored topology")
	f.String("topology", d.Output.Topology, "Output topology: single or mirrored")
	f.Bool("overwrite", d.Output.OverwriteExisting, "Replace existing outputs")
	f.String("codec", d.Output.CompressionCodec, "Compression: none, fast, balanced, high-ratio, snappy, zstd, gzip, brotli, lz4")
	f.Int("level", d.Output.CompressionLevel, "Compression level; 0 selects the codec default")
	f.Int("row-group-size", d.Output.RowGroupSize, "Maximum rows per row group")
	f.Bool("dictionary", d.Output.Dictionary, "Dictionary-encode columns")

	f.Int("workers", d.Run.Workers, "Files read ahead concurrently; 0 uses every CPU")
	f.Bool("fail-fast", d.Run.FailFast, "Abort on the first unreadable file")

	f.String("metrics-addr", "", "Serve Prometheus metrics on this address while converting")
	f.Bool("trace", false, "Export OpenTelemetry spans to stderr")
	f.String("publish", "", "Upload outputs to an s3:// or gs:// prefix after a successful run")
	f.String("publish-region", "", "AWS region for s3:// publishing")
	f.String("publish-credentials", "", "Service account key file for gs:// publishing")

	f.BoolVar(&summaryJSON, "summary-json", false, "Print the run summary as JSON")
	return cmd
}

func runConvert(cmd *cobra.Command, g *globalFlags, summaryJSON bool) error {
	base, err := g.baseConfig()
	if err != nil {
		return &exitError{code: pipeline.ExitFatal, err: err}
	}
	cfg, err := config.Resolve(base, cmd.Flags(), flagBindings)
	if err != nil {
		return &exitError{code: pipeline.ExitFatal, err: err}
	}

	log, err := newLogger(cfg)
	if err != nil {
		return &exitError{code: pipeline.ExitFatal, err: err}
	}
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()
	opts := []pipeline.JobOption{pipeline.WithLogger(log)}

	tp, err := observability.NewProvider(observability.TracingConfig{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    "parq",
		ServiceVersion: version,
		Writer:         cmd.ErrOrStderr(),
	})
	if err != nil {
		return &exitError{code: pipeline.ExitFatal, err: err}
	}
	defer shutdown(log, "tracer", tp.Shutdown)
	opts = append(opts, pipeline.WithTracer(tp.Tracer()))

	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		srv, err := metrics.Serve(cfg.Metrics.Addr, reg, log)
		if err != nil {
			return &exitError{code: pipeline.ExitFatal, err: err}
		}
		defer shutdown(log, "metrics server", srv.Shutdown)
		opts = append(opts, pipeline.WithRegistry(reg))
	}

	job, err := pipeline.NewJob(cfg, opts...)
	if err != nil {
		return &exitError{code: pipeline.ExitFatal, err: err}
	}

	summary, runErr := job.Run(ctx)

	out := cmd.OutOrStdout()
	if summaryJSON {
		err = summary.WriteJSON(out)
	} else {
		err = summary.WriteTable(out)
	}
	if err != nil {
		log.Warn("failed to print summary", zap.Error(err))
	}

	if code := summary.ExitCode(); code != pipeline.ExitSuccess {
		// partial runs succeed with a distinct status; the summary names the skipped files
		if runErr == nil {
			return &exitError{code: code}
		}
		return &exitError{code: code, err: runErr}
	}
	return nil
}

func shutdown(log *zap.Logger, what string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warn("shutdown failed", zap.String("component", what), zap.Error(err))
	}
}
