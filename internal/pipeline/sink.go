package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/columnar"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/compression"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/config"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/errors"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/models"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/schema"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/source"
)

// OutputExt is the suffix of every output file.
const OutputExt = ".parquet"

// task is one input as scheduled by the dispatcher.
type task struct {
	index int
	file  source.File
	// dest is the mirrored output path; empty for the single topology.
	dest string
	// skip, when set, is the reason the file is not read at all.
	skip string
}

// sink receives reconciled batches in file order. All methods are called
// from the consumer goroutine only.
type sink interface {
	// open starts a new input file.
	open(t task)
	reconcile(b *models.RowBatch) (*models.RowBatch, schema.Result, error)
	append(b *models.RowBatch) error
	// closeFile ends the current input. keep is false when the file failed
	// or the run was cancelled inside it.
	closeFile(keep bool) (output string, err error)
	// finish ends the run, finalizing when keep is true and aborting otherwise.
	finish(keep bool) error
	outputs() []columnar.Stats
	schema() *models.CanonicalSchema
}

// newSink builds the sink for the configured topology and the task list the
// dispatcher works through.
func (j *Job) newSink(files []source.File, seed *models.CanonicalSchema) (sink, []task, error) {
	tasks := make([]task, len(files))
	for i, f := range files {
		tasks[i] = task{index: i, file: f}
	}

	if j.cfg.Output.Topology != config.TopologyMirrored {
		return &singleSink{
			job:  j,
			dest: j.cfg.Output.Path,
			rec: schema.NewReconciler(schema.Options{
				DriftPolicy: j.drift,
				Seed:        seed,
				Logger:      j.logger,
			}),
		}, tasks, nil
	}

	claimed := make(map[string]string, len(files))
	for i := range tasks {
		dest := filepath.Join(j.cfg.Output.Dir, mirrorRel(tasks[i].file.Rel))
		tasks[i].dest = dest
		if prev, dup := claimed[dest]; dup {
			tasks[i].skip = fmt.Sprintf("exists: output %s already claimed by %s", dest, prev)
			continue
		}
		claimed[dest] = tasks[i].file.Path
		if j.cfg.Output.OverwriteExisting {
			continue
		}
		exists, err := afero.Exists(j.fs, dest)
		if err != nil {
			return nil, nil, errors.DestinationWrite(dest, err)
		}
		if exists {
			tasks[i].skip = "exists: " + dest
		}
	}
	return &mirroredSink{job: j, seed: seed}, tasks, nil
}

// mirrorRel maps an input path relative to the root onto its output path:
// compression and data suffixes are replaced by .parquet.
func mirrorRel(rel string) string {
	rel = compression.StripExtension(rel)
	return strings.TrimSuffix(rel, filepath.Ext(rel)) + OutputExt
}

func relPath(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func baseName(path string) string { return filepath.Base(path) }

// probeDestination checks that outputs can be created before any input is
// read: directories are created and a throwaway file is written and removed.
func (j *Job) probeDestination() error {
	out := j.cfg.Output
	if out.Topology == config.TopologyMirrored {
		return probeWrite(j.fs, out.Dir, filepath.Join(out.Dir, ".parq-probe-"+j.id))
	}

	info, err := j.fs.Stat(out.Path)
	switch {
	case err == nil && info.IsDir():
		return errors.DestinationWrite(out.Path, fmt.Errorf("destination is a directory"))
	case err == nil && !out.OverwriteExisting:
		return errors.DestinationWrite(out.Path, fmt.Errorf("destination exists and overwriteExisting is false"))
	case err != nil && !os.IsNotExist(err):
		return errors.DestinationWrite(out.Path, err)
	}
	return probeWrite(j.fs, filepath.Dir(out.Path), out.Path+columnar.PartialSuffix)
}

func probeWrite(fs afero.Fs, dir, probe string) error {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return errors.DestinationWrite(dir, err)
	}
	f, err := fs.OpenFile(probe, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.DestinationWrite(dir, err)
	}
	if err := multierr.Append(f.Close(), fs.Remove(probe)); err != nil {
		return errors.DestinationWrite(dir, err)
	}
	return nil
}

// singleSink appends every file to one output. The writer is opened lazily
// once the canonical schema exists.
type singleSink struct {
	job    *Job
	dest   string
	rec    *schema.Reconciler
	writer *columnar.Writer
	stats  []columnar.Stats
}

func (s *singleSink) open(task) {}

func (s *singleSink) reconcile(b *models.RowBatch) (*models.RowBatch, schema.Result, error) {
	return s.rec.Reconcile(b)
}

func (s *singleSink) append(b *models.RowBatch) error {
	if b.Empty() {
		return nil
	}
	if s.writer == nil {
		canonical, ok := s.rec.Schema()
		if !ok {
			return errors.New(errors.ErrorTypeInternal, "batch reached the writer before the schema was established")
		}
		w, err := columnar.Open(s.job.fs, s.dest, canonical, s.job.writerOpts)
		if err != nil {
			return err
		}
		s.writer = w
		s.job.logger.Info("output opened",
			zap.String("path", s.dest),
			zap.Stringer("schema", canonical))
	}
	return s.writer.Append(b)
}

// closeFile keeps whatever the file already appended: batches cannot be
// taken back out of an open row group.
func (s *singleSink) closeFile(bool) (string, error) {
	if s.writer == nil {
		return "", nil
	}
	return s.dest, nil
}

func (s *singleSink) finish(keep bool) error {
	if s.writer == nil {
		return nil
	}
	w := s.writer
	s.writer = nil
	if !keep || w.Rows() == 0 {
		return w.Abort()
	}
	stats, err := w.Finalize()
	if err != nil {
		return multierr.Append(err, w.Abort())
	}
	s.stats = append(s.stats, stats)
	return nil
}

func (s *singleSink) outputs() []columnar.Stats { return s.stats }

func (s *singleSink) schema() *models.CanonicalSchema {
	canonical, _ := s.rec.Schema()
	return canonical
}

// mirroredSink writes one output per input. Every file gets its own
// reconciler, so drift is judged within a file only.
type mirroredSink struct {
	job    *Job
	seed   *models.CanonicalSchema
	cur    task
	rec    *schema.Reconciler
	writer *columnar.Writer
	stats  []columnar.Stats
}

func (s *mirroredSink) open(t task) {
	s.cur = t
	s.rec = schema.NewReconciler(schema.Options{
		DriftPolicy: s.job.drift,
		Seed:        s.seed,
		Logger:      s.job.logger.With(zap.String("file", t.file.Path)),
	})
}

func (s *mirroredSink) reconcile(b *models.RowBatch) (*models.RowBatch, schema.Result, error) {
	return s.rec.Reconcile(b)
}

func (s *mirroredSink) append(b *models.RowBatch) error {
	if b.Empty() {
		return nil
	}
	if s.writer == nil {
		canonical, ok := s.rec.Schema()
		if !ok {
			return errors.New(errors.ErrorTypeInternal, "batch reached the writer before the schema was established")
		}
		if err := s.job.fs.MkdirAll(filepath.Dir(s.cur.dest), 0o755); err != nil {
			return errors.DestinationWrite(s.cur.dest, err)
		}
		w, err := columnar.Open(s.job.fs, s.cur.dest, canonical, s.job.writerOpts)
		if err != nil {
			return err
		}
		s.writer = w
	}
	return s.writer.Append(b)
}

func (s *mirroredSink) closeFile(keep bool) (string, error) {
	w := s.writer
	s.writer = nil
	s.rec = nil
	if w == nil {
		return "", nil
	}
	if !keep || w.Rows() == 0 {
		return "", w.Abort()
	}
	stats, err := w.Finalize()
	if err != nil {
		return "", multierr.Append(err, w.Abort())
	}
	s.stats = append(s.stats, stats)
	return stats.Path, nil
}

// finish only has work to do when the run stopped inside a file.
func (s *mirroredSink) finish(bool) error {
	if s.writer == nil {
		return nil
	}
	w := s.writer
	s.writer = nil
	return w.Abort()
}

func (s *mirroredSink) outputs() []columnar.Stats { return s.stats }

func (s *mirroredSink) schema() *models.CanonicalSchema { return s.seed }
