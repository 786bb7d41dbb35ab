// Package schema keeps every batch of a job on one canonical schema. The first
// non-empty batch establishes the schema; later batches are reshaped to it.
package schema

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/errors"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/models"
)

// DriftPolicy decides what happens when a later batch has a different column set.
type DriftPolicy string

const (
	// DriftPad pads missing columns with nulls and drops unexpected ones.
	DriftPad DriftPolicy = "pad"
	// DriftFail rejects the batch with a SchemaDrift error.
	DriftFail DriftPolicy = "fail"
)

// ParseDriftPolicy accepts pad and fail.
func ParseDriftPolicy(s string) (DriftPolicy, error) {
	switch DriftPolicy(s) {
	case "", DriftPad:
		return DriftPad, nil
	case DriftFail:
		return DriftFail, nil
	default:
		return DriftPad, fmt.Errorf("unknown drift policy %q", s)
	}
}

// Options configures a Reconciler.
type Options struct {
	DriftPolicy DriftPolicy
	// Seed, when set, is the canonical schema from the start and no batch
	// establishes one.
	Seed   *models.CanonicalSchema
	Logger *zap.Logger
}

// Result describes how one batch was reshaped.
type Result struct {
	// Established is true for the batch that set the canonical schema.
	Established bool
	// Dropped lists batch columns absent from the canonical schema.
	Dropped []string
	// Padded lists canonical columns absent from the batch.
	Padded []string
	// Cast lists columns converted to their canonical type.
	Cast []string
	// Nulled counts values that could not be represented after a cast.
	Nulled int
	// Discarded counts rows of a column-less batch seen before any schema
	// existed. Such rows have nothing to write.
	Discarded int
}

// Reconciler owns the canonical schema of one job.
type Reconciler struct {
	opts   Options
	logger *zap.Logger

	mu        sync.Mutex
	canonical *models.CanonicalSchema
	warned    map[string]struct{}
}

// NewReconciler creates a reconciler.
func NewReconciler(opts Options) *Reconciler {
	if opts.DriftPolicy == "" {
		opts.DriftPolicy = DriftPad
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reconciler{
		opts:   opts,
		logger: logger,
		warned: make(map[string]struct{}),
	}
	if opts.Seed != nil {
		r.canonical = opts.Seed.Clone()
	}
	return r
}

// Schema returns the canonical schema and whether it has been established.
func (r *Reconciler) Schema() (*models.CanonicalSchema, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.canonical == nil {
		return nil, false
	}
	return r.canonical, true
}

// Reconcile reshapes b to the canonical schema. Batches without rows pass
// through untouched and never establish the schema; neither do batches
// without columns, whose rows are discarded while no schema exists. The
// returned batch has exactly the canonical columns, in canonical order and
// canonical types.
func (r *Reconciler) Reconcile(b *models.RowBatch) (*models.RowBatch, Result, error) {
	var res Result
	if b.Empty() {
		return b, res, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.canonical == nil && len(b.Columns) == 0 {
		res.Discarded = b.NumRows
		r.logger.Warn("batch has no columns and no schema is established, discarding rows",
			zap.String("source", b.Source),
			zap.Int("rows", b.NumRows))
		return models.NewRowBatch(b.Source, b.Seq), res, nil
	}

	if r.canonical == nil {
		r.canonical = b.Schema()
		res.Established = true
		r.logger.Info("canonical schema established",
			zap.String("source", b.Source),
			zap.String("schema", r.canonical.String()))
		return b, res, nil
	}

	changes := detectChanges(r.canonical, b)
	if r.opts.DriftPolicy == DriftFail && hasColumnSetChange(changes) {
		return nil, res, errors.SchemaDrift(b.Source, columnSetChanges(changes))
	}

	out := models.NewRowBatch(b.Source, b.Seq)
	out.NumRows = b.NumRows
	out.Columns = make([]*models.Column, len(r.canonical.Fields))
	for i, f := range r.canonical.Fields {
		col := b.Column(f.Name)
		switch {
		case col == nil:
			out.Columns[i] = models.NewColumn(f.Name, f.Type, b.NumRows)
			res.Padded = append(res.Padded, f.Name)
		case col.Type != f.Type:
			cast, nulled := castColumn(col, f.Type)
			out.Columns[i] = cast
			res.Cast = append(res.Cast, f.Name)
			res.Nulled += nulled
		default:
			out.Columns[i] = col
		}
	}
	for _, c := range changes {
		if c.OldType == "" {
			res.Dropped = append(res.Dropped, c.Name)
			r.warnDropped(b.Source, c.Name)
		}
	}
	return out, res, nil
}

func (r *Reconciler) warnDropped(src, name string) {
	if _, done := r.warned[name]; done {
		return
	}
	r.warned[name] = struct{}{}
	r.logger.Warn("column not in canonical schema, dropping",
		zap.String("column", name),
		zap.String("source", src))
}

// detectChanges lists batch columns missing from the schema (OldType empty),
// schema columns missing from the batch (NewType empty) and type differences,
// in schema order then batch order.
func detectChanges(canonical *models.CanonicalSchema, b *models.RowBatch) []errors.ColumnChange {
	var changes []errors.ColumnChange
	for _, f := range canonical.Fields {
		col := b.Column(f.Name)
		switch {
		case col == nil:
			changes = append(changes, errors.ColumnChange{Name: f.Name, OldType: f.Type.String()})
		case col.Type != f.Type:
			changes = append(changes, errors.ColumnChange{Name: f.Name, OldType: f.Type.String(), NewType: col.Type.String()})
		}
	}
	for _, c := range b.Columns {
		if canonical.Index(c.Name) < 0 {
			changes = append(changes, errors.ColumnChange{Name: c.Name, NewType: c.Type.String()})
		}
	}
	return changes
}

func hasColumnSetChange(changes []errors.ColumnChange) bool {
	return len(columnSetChanges(changes)) > 0
}

func columnSetChanges(changes []errors.ColumnChange) []errors.ColumnChange {
	var out []errors.ColumnChange
	for _, c := range changes {
		if c.OldType == "" || c.NewType == "" {
			out = append(out, c)
		}
	}
	return out
}
