package pipeline

import (
	"context"
	stderrors "errors"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/coerce"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/errors"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/logger"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/metrics"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/models"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/observability"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/reader"
)

// item is what a worker hands to the consumer: a coerced batch, or the
// final read outcome of the file.
type item struct {
	batch  *models.RowBatch
	report coerce.Report
	done   *readResult
}

type readResult struct {
	status   reader.Status
	err      error
	counters reader.Counters
}

// convert runs the workers and the consumer. It returns cancelled when ctx
// stopped the run, and a non-nil error only for fatal failures.
func (j *Job) convert(ctx context.Context, tasks []task, out sink, summary *Summary) (cancelled bool, err error) {
	wctx, stop := context.WithCancel(ctx)
	defer stop()

	queues := make([]chan item, len(tasks))
	for i := range queues {
		queues[i] = make(chan item, queueDepth)
	}

	var g errgroup.Group
	g.SetLimit(summary.EffectiveWorkers)
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		for i, t := range tasks {
			g.Go(func() error {
				j.readTask(wctx, t, queues[i])
				return nil
			})
		}
	}()
	defer func() {
		stop()
		<-dispatched
		_ = g.Wait()
	}()

	for i, t := range tasks {
		if ctx.Err() != nil {
			cancelled = true
			j.notRead(summary, tasks[i:])
			break
		}
		res, fileCancelled, err := j.consume(ctx, t, queues[i], out, summary)
		summary.add(res)
		if err != nil {
			return false, err
		}
		if fileCancelled {
			cancelled = true
			j.notRead(summary, tasks[i+1:])
			break
		}
	}
	return cancelled, nil
}

// readTask decodes and coerces one file into q, then sends the read
// outcome and closes q. It gives up as soon as ctx is done.
func (j *Job) readTask(ctx context.Context, t task, q chan<- item) {
	defer close(q)
	if t.skip != "" || ctx.Err() != nil {
		return
	}
	send := func(it item) bool {
		select {
		case q <- it:
			return true
		case <-ctx.Done():
			return false
		}
	}

	cr, err := reader.Open(j.fs, t.file, j.readOpts)
	if err != nil {
		send(item{done: &readResult{status: reader.StatusFailed, err: err}})
		return
	}
	defer cr.Close()

	var readErr error
	for {
		timer := metrics.NewTimer(metrics.StageRead)
		b, err := cr.Next(ctx)
		j.metrics.ObserveStage(timer)
		if err == io.EOF {
			break
		}
		if err != nil {
			readErr = err
			break
		}

		timer = metrics.NewTimer(metrics.StageCoerce)
		b, rep := j.engine.CoerceBatch(b)
		j.metrics.ObserveStage(timer)
		if !send(item{batch: b, report: rep}) {
			return
		}
	}
	send(item{done: &readResult{status: cr.Status(), err: readErr, counters: cr.Counters()}})
}

// consume drains one file's queue into the sink. The FileResult is always
// returned; err is fatal to the job.
func (j *Job) consume(ctx context.Context, t task, q <-chan item, out sink, summary *Summary) (FileResult, bool, error) {
	start := time.Now()
	res := FileResult{
		Path:        t.file.Path,
		Format:      string(t.file.Format),
		Compression: string(t.file.Compression),
	}
	ctx = logger.ContextWithFile(ctx, t.file.Path)
	log := logger.FromContext(ctx, j.logger)
	_, span := observability.NewSpan(ctx, j.tracer, "parq.file")
	span.SetAttribute("file.path", t.file.Path)
	span.SetAttribute("file.format", res.Format)

	finish := func(outcome FileOutcome, err error) {
		res.Outcome = outcome
		res.Elapsed = time.Since(start)
		span.SetAttribute("file.outcome", string(outcome))
		span.SetAttribute("file.rows", res.Rows)
		span.End(err)
		if outcome != FileNotRead {
			j.metrics.FilesProcessed.WithLabelValues(string(outcome)).Inc()
		}
		j.resources.Sample()
		j.throughput.GetAndReset()
	}

	if t.skip != "" {
		res.Reason = t.skip
		log.Info("output exists, skipping input", zap.String("reason", t.skip))
		finish(FileExists, nil)
		return res, false, nil
	}

	out.open(t)
	var done *readResult
	for it := range q {
		if it.done != nil {
			done = it.done
			continue
		}
		if err := j.write(it, out, &res, summary); err != nil {
			_, _ = out.closeFile(false)
			log.Error("aborting job", logger.ErrorFields(err)...)
			finish(FileSkipped, err)
			return res, false, err
		}
	}

	if done == nil {
		// The worker stopped without an outcome: only cancellation does that.
		_, _ = out.closeFile(false)
		finish(FileNotRead, ctx.Err())
		res.Reason = "cancelled"
		return res, true, nil
	}

	res.Rows = done.counters.RowsRead
	res.MalformedRows = done.counters.MalformedRows
	res.BytesRead = done.counters.BytesRead
	j.metrics.RowsRead.Add(float64(res.Rows))
	j.metrics.MalformedRows.Add(float64(res.MalformedRows))
	j.metrics.BytesRead.Add(float64(res.BytesRead))

	switch {
	case done.err != nil && isCancellation(done.err) && ctx.Err() != nil:
		_, _ = out.closeFile(false)
		res.Reason = "cancelled"
		log.Warn("run cancelled inside file", zap.Int64("rows_read", res.Rows))
		finish(FileNotRead, done.err)
		return res, true, nil

	case done.err != nil:
		res.Reason = errors.Reason(done.err)
		if errors.IsFatal(done.err) || j.cfg.Run.FailFast {
			_, _ = out.closeFile(false)
			log.Error("aborting job", logger.ErrorFields(done.err)...)
			finish(FileSkipped, done.err)
			return res, false, done.err
		}
		if _, err := out.closeFile(false); err != nil {
			finish(FileSkipped, err)
			return res, false, err
		}
		log.Warn("skipping unreadable file", logger.ErrorFields(done.err)...)
		finish(FileSkipped, done.err)
		return res, false, nil

	case done.status == reader.StatusEmpty:
		res.Reason = "empty"
		if _, err := out.closeFile(false); err != nil {
			finish(FileEmpty, err)
			return res, false, err
		}
		log.Warn("skipping empty input")
		finish(FileEmpty, nil)
		return res, false, nil
	}

	output, err := out.closeFile(true)
	if err != nil {
		log.Error("aborting job", logger.ErrorFields(err)...)
		finish(FileConverted, err)
		return res, false, err
	}
	res.Output = output
	log.Debug("input converted",
		zap.Int64("rows", res.Rows),
		zap.Int("batches", res.Batches),
		zap.Int64("malformed_rows", res.MalformedRows))
	finish(FileConverted, nil)
	return res, false, nil
}

// write reconciles and appends one batch.
func (j *Job) write(it item, out sink, res *FileResult, summary *Summary) error {
	res.Nulled += int64(it.report.Nulled)
	j.metrics.ValuesNulled.WithLabelValues(metrics.StageCoerce).Add(float64(it.report.Nulled))

	j.state.set(StateReconciling)
	timer := metrics.NewTimer(metrics.StageReconcile)
	b, rr, err := out.reconcile(it.batch)
	j.metrics.ObserveStage(timer)
	if err != nil {
		return err
	}
	res.CastNulled += int64(rr.Nulled)
	res.Discarded += int64(rr.Discarded)
	j.metrics.ValuesNulled.WithLabelValues(metrics.StageReconcile).Add(float64(rr.Nulled))

	j.state.set(StateWriting)
	timer = metrics.NewTimer(metrics.StageWrite)
	err = out.append(b)
	j.metrics.ObserveStage(timer)
	j.state.set(StateReading)
	if err != nil {
		return err
	}
	if b.Empty() {
		return nil
	}

	res.Batches++
	summary.RowsWritten += int64(b.NumRows)
	j.metrics.RowsWritten.Add(float64(b.NumRows))
	j.metrics.BatchesWritten.Inc()
	j.throughput.Increment(int64(b.NumRows))
	return nil
}

// notRead records the files the run never reached.
func (j *Job) notRead(summary *Summary, rest []task) {
	for _, t := range rest {
		summary.add(FileResult{
			Path:        t.file.Path,
			Format:      string(t.file.Format),
			Compression: string(t.file.Compression),
			Outcome:     FileNotRead,
			Reason:      "cancelled",
		})
	}
}

func isCancellation(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}
