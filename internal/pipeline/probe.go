package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/models"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/reader"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/schema"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/source"
)

// probeSchema reads and coerces the first batch of every file and returns
// the union of their columns in file order. Files that fail here are left
// for the main pass to report. It returns nil when no file yields a row.
func (j *Job) probeSchema(ctx context.Context, files []source.File, workers int) *models.CanonicalSchema {
	mergers := make([]*schema.Merger, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, f := range files {
		g.Go(func() error {
			m, err := j.probeFile(gctx, f)
			if err != nil {
				j.logger.Debug("schema probe failed",
					zap.String("file", f.Path),
					zap.Error(err))
				return nil
			}
			mergers[i] = m
			return nil
		})
	}
	_ = g.Wait()

	union := schema.NewMerger()
	for _, m := range mergers {
		union.AddMerger(m)
	}
	if union.Len() == 0 {
		return nil
	}
	merged := union.Schema()
	j.logger.Info("merged schema probed",
		zap.Int("files", len(files)),
		zap.Stringer("schema", merged))
	return merged
}

func (j *Job) probeFile(ctx context.Context, f source.File) (*schema.Merger, error) {
	cr, err := reader.Open(j.fs, f, j.readOpts)
	if err != nil {
		return nil, err
	}
	defer cr.Close()

	b, err := cr.Next(ctx)
	if err != nil {
		return nil, err
	}
	b, _ = j.engine.CoerceBatch(b)
	m := schema.NewMerger()
	m.AddBatch(b)
	return m, nil
}
