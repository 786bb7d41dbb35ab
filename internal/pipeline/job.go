// Package pipeline drives one conversion job from candidate files to a
// finalized Parquet output.
//
// # Overview
//
// A Job owns everything a run needs: the configuration, the filesystem, the
// logger, a metrics registry and a tracer. Nothing is global, so several jobs
// can run in one process.
//
// # Architecture
//
// Run moves through these stages:
//   - Enumerating: list candidate files (directory scan or explicit paths)
//   - Probing: check the destination is writable, optionally pre-merge schemas
//   - Reading: workers decode and coerce later files ahead of the consumer
//   - Reconciling and Writing: a single consumer reshapes batches to the
//     canonical schema and appends them, strictly in file order
//   - Finalizing: the output replaces its destination atomically
//   - Publishing: the output is uploaded when publish.uri is set
//
// Workers never touch the schema or the writer. Batches reach the consumer
// through one bounded channel per file, and the consumer drains the channels
// in enumeration order, so output order is independent of the worker count.
//
// # Basic Usage
//
//	job, err := pipeline.NewJob(cfg, pipeline.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	summary, err := job.Run(ctx)
//	os.Exit(summary.ExitCode())
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/coerce"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/columnar"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/config"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/errors"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/logger"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/metrics"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/models"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/observability"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/publish"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/reader"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/schema"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/source"
)

// queueDepth is the number of batches a worker may read ahead per file.
const queueDepth = 2

// JobOption customizes a Job.
type JobOption func(*Job)

// WithFs sets the filesystem inputs are read from and outputs written to.
func WithFs(fs afero.Fs) JobOption {
	return func(j *Job) { j.fs = fs }
}

// WithLogger sets the base logger.
func WithLogger(l *zap.Logger) JobOption {
	return func(j *Job) { j.logger = l }
}

// WithRegistry registers the job collectors on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) JobOption {
	return func(j *Job) { j.registry = reg }
}

// WithTracer sets the tracer for job and file spans.
func WithTracer(t trace.Tracer) JobOption {
	return func(j *Job) { j.tracer = t }
}

// WithUploader replaces the S3 or GCS client used for publishing.
func WithUploader(u publish.Uploader) JobOption {
	return func(j *Job) { j.uploader = u }
}

// WithJobID fixes the job identifier instead of generating one.
func WithJobID(id string) JobOption {
	return func(j *Job) { j.id = id }
}

// Job is one conversion run. A Job runs once.
type Job struct {
	id       string
	cfg      *config.Config
	fs       afero.Fs
	logger   *zap.Logger
	registry *prometheus.Registry
	tracer   trace.Tracer
	uploader publish.Uploader

	readOpts   reader.Options
	writerOpts columnar.WriterOptions
	selector   source.Selector
	drift      schema.DriftPolicy
	engine     *coerce.Engine

	metrics    *metrics.Metrics
	resources  *metrics.ResourceMonitor
	throughput *metrics.ThroughputTracker

	state   stateMachine
	started bool
}

// NewJob validates cfg and prepares a job. Configuration problems are
// reported here, before any file is touched.
func NewJob(cfg *config.Config, opts ...JobOption) (*Job, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid configuration")
	}
	if err := columnar.ValidateCodec(cfg.Output.CompressionCodec, cfg.Output.CompressionLevel); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid output compression")
	}
	selector, err := source.ParseSelector(cfg.Input.Format)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid input format")
	}
	drift, err := schema.ParseDriftPolicy(cfg.Schema.DriftPolicy)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid drift policy")
	}
	delim, err := cfg.Read.DelimiterRune()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid delimiter")
	}

	j := &Job{cfg: cfg}
	for _, opt := range opts {
		opt(j)
	}
	if j.id == "" {
		j.id = uuid.NewString()
	}
	if j.fs == nil {
		j.fs = afero.NewOsFs()
	}
	if j.logger == nil {
		j.logger = logger.Get()
	}
	j.logger = j.logger.With(zap.String("job_id", j.id))
	if j.tracer == nil {
		j.tracer = observability.NoopTracer()
	}

	j.selector = selector
	j.drift = drift
	j.engine = coerce.NewEngine(coerce.Options{Enabled: cfg.Coerce.Enabled})
	j.readOpts = reader.Options{
		ChunkSize:          cfg.Read.ChunkSize,
		Delimiter:          delim,
		HasHeader:          cfg.Read.HasHeader,
		Encoding:           cfg.Read.Encoding,
		MalformedRowPolicy: reader.MalformedPolicy(cfg.Read.MalformedRowPolicy),
		MaxLineBytes:       cfg.Read.MaxLineBytes,
	}
	j.writerOpts = columnar.WriterOptions{
		Codec:        cfg.Output.CompressionCodec,
		Level:        cfg.Output.CompressionLevel,
		RowGroupSize: cfg.Output.RowGroupSize,
		Dictionary:   cfg.Output.Dictionary,
	}

	j.metrics = metrics.New(j.registry)
	j.resources = metrics.NewResourceMonitor(j.metrics.PeakRSS)
	j.throughput = metrics.NewThroughputTracker(j.metrics.Throughput)
	return j, nil
}

// ID returns the job identifier attached to logs and spans.
func (j *Job) ID() string { return j.id }

// State returns the current stage.
func (j *Job) State() State { return j.state.get() }

// Metrics returns the job collectors.
func (j *Job) Metrics() *metrics.Metrics { return j.metrics }

// Run executes the job. The returned Summary is never nil; its Outcome and
// ExitCode describe the run even when err is non-nil.
func (j *Job) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{
		JobID:    j.id,
		Topology: j.cfg.Output.Topology,
		Files:    []FileResult{},
	}
	if j.started {
		err := errors.New(errors.ErrorTypeInternal, "job already ran")
		return j.fail(summary, start, err)
	}
	j.started = true

	ctx = context.WithValue(ctx, logger.JobIDKey, j.id)
	ctx, span := observability.NewSpan(ctx, j.tracer, "parq.job")
	span.SetAttribute("job.id", j.id)
	span.SetAttribute("output.topology", j.cfg.Output.Topology)

	err := j.run(ctx, summary)
	summary.Elapsed = time.Since(start)
	summary.PeakRSS = j.resources.Peak()
	if err != nil {
		summary.Error = err.Error()
	}
	span.SetAttribute("rows.written", summary.RowsWritten)
	span.SetAttribute("outcome", string(summary.Outcome))
	span.End(err)

	fields := []zap.Field{
		zap.String("outcome", string(summary.Outcome)),
		zap.Int("files_seen", summary.FilesSeen),
		zap.Int("files_converted", summary.FilesConverted),
		zap.Int("files_skipped", summary.FilesSkipped),
		zap.Int64("rows_written", summary.RowsWritten),
		zap.Duration("elapsed", summary.Elapsed),
	}
	switch summary.Outcome {
	case OutcomeSuccess, OutcomePartial:
		j.logger.Info("job finished", fields...)
	default:
		j.logger.Error("job failed", append(fields, logger.ErrorFields(err)...)...)
	}
	return summary, err
}

func (j *Job) fail(summary *Summary, start time.Time, err error) (*Summary, error) {
	j.state.set(StateFailed)
	summary.Outcome = OutcomeFailed
	summary.Error = err.Error()
	summary.Elapsed = time.Since(start)
	return summary, err
}

func (j *Job) run(ctx context.Context, summary *Summary) error {
	files, err := j.enumerate(ctx)
	if err != nil {
		return j.abort(summary, err)
	}
	summary.FilesSeen = len(files)
	summary.EffectiveWorkers = j.effectiveWorkers(len(files))
	j.metrics.FilesSeen.Add(float64(len(files)))
	j.logger.Info("input files enumerated",
		zap.Int("files", len(files)),
		zap.Int("workers", summary.EffectiveWorkers))

	j.state.set(StateProbing)
	if err := j.probeDestination(); err != nil {
		return j.abort(summary, err)
	}

	var seed *models.CanonicalSchema
	if j.cfg.Schema.Mode == config.SchemaModeMerged {
		seed = j.probeSchema(ctx, files, summary.EffectiveWorkers)
	}

	out, tasks, err := j.newSink(files, seed)
	if err != nil {
		return j.abort(summary, err)
	}

	j.state.set(StateReading)
	cancelled, err := j.convert(ctx, tasks, out, summary)
	if err != nil {
		if abortErr := out.finish(false); abortErr != nil {
			j.logger.Warn("failed to remove partial output", logger.ErrorFields(abortErr)...)
		}
		return j.abort(summary, err)
	}

	j.state.set(StateFinalizing)
	timer := metrics.NewTimer(metrics.StageFinalize)
	if err := out.finish(true); err != nil {
		return j.abort(summary, err)
	}
	j.metrics.ObserveStage(timer)
	summary.Outputs = out.outputs()
	summary.Schema = out.schema()

	switch {
	case cancelled:
		j.state.set(StateFailed)
		summary.Outcome = OutcomeCancelled
		return errors.Wrap(context.Cause(ctx), errors.ErrorTypeCancelled, "run cancelled")
	case summary.RowsWritten == 0:
		j.state.set(StateFailed)
		summary.Outcome = OutcomeEmpty
		return errors.EmptyResult(summary.FilesSeen)
	case summary.FilesSkipped > 0:
		summary.Outcome = OutcomePartial
	default:
		summary.Outcome = OutcomeSuccess
	}

	if j.cfg.Publish.URI != "" {
		j.state.set(StatePublishing)
		published, err := j.publish(ctx, summary.Outputs)
		summary.Published = published
		if err != nil {
			return j.abort(summary, err)
		}
	}

	j.state.set(StateDone)
	return nil
}

func (j *Job) abort(summary *Summary, err error) error {
	j.state.set(StateFailed)
	if isCancellation(err) && !errors.IsType(err, errors.ErrorTypeCancelled) {
		summary.Outcome = OutcomeCancelled
		return errors.Wrap(err, errors.ErrorTypeCancelled, "run cancelled")
	}
	summary.Outcome = OutcomeFailed
	return err
}

func (j *Job) enumerate(ctx context.Context) ([]source.File, error) {
	j.state.set(StateEnumerating)
	timer := metrics.NewTimer(metrics.StageEnumerate)
	defer j.metrics.ObserveStage(timer)

	if len(j.cfg.Input.Paths) > 0 {
		return source.FromPaths(j.fs, j.cfg.Input.Paths, j.selector)
	}
	e := source.NewEnumerator(j.fs, source.Options{
		Root:      j.cfg.Input.Root,
		Selector:  j.selector,
		Recursive: j.cfg.Input.Recursive,
		Include:   j.cfg.Input.Include,
		Exclude:   j.cfg.Input.Exclude,
	})
	return e.Collect(ctx)
}

func (j *Job) effectiveWorkers(files int) int {
	n := j.cfg.Run.GetWorkers()
	if files < n {
		n = files
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (j *Job) publish(ctx context.Context, outputs []columnar.Stats) ([]publish.Result, error) {
	p, err := publish.New(ctx, j.fs, j.cfg.Publish.URI, publish.Options{
		Region:          j.cfg.Publish.Region,
		CredentialsFile: j.cfg.Publish.CredentialsFile,
		Logger:          j.logger,
		Uploader:        j.uploader,
	})
	if err != nil {
		return nil, err
	}

	results := make([]publish.Result, 0, len(outputs))
	for _, o := range outputs {
		timer := metrics.NewTimer(metrics.StagePublish)
		res, err := p.Publish(ctx, o.Path, j.publishKey(o.Path), o.Rows)
		j.metrics.ObserveStage(timer)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// publishKey is the object name of an output below the publish prefix: the
// base name for a single output, the mirrored relative path otherwise.
func (j *Job) publishKey(path string) string {
	if j.cfg.Output.Topology == config.TopologyMirrored {
		if rel, err := relPath(j.cfg.Output.Dir, path); err == nil {
			return rel
		}
	}
	return baseName(path)
}

func (j *Job) String() string {
	return fmt.Sprintf("job %s (%s)", j.id, j.state.get())
}
