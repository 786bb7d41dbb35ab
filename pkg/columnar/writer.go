package columnar

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/errors"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/models"
)

// PartialSuffix is appended to the destination while a file is being written.
const PartialSuffix = ".partial"

// CreatedBy is recorded in the file footer.
const CreatedBy = "parq"

// WriterOptions configures a Writer.
type WriterOptions struct {
	Codec        string
	Level        int
	RowGroupSize int
	Dictionary   bool
	Allocator    memory.Allocator
}

// DefaultWriterOptions returns the defaults used by the converter.
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{
		Codec:        CodecBalanced,
		RowGroupSize: 1_000_000,
		Dictionary:   true,
	}
}

// Stats describes a finalized file.
type Stats struct {
	Path       string `json:"path"`
	Rows       int64  `json:"rows"`
	RowGroups  int    `json:"row_groups"`
	Batches    int    `json:"batches"`
	Bytes      int64  `json:"bytes"`
	Codec      string `json:"codec"`
	Level      int    `json:"level"`
	Dictionary bool   `json:"dictionary"`
}

type writerState int

const (
	stateOpen writerState = iota
	stateFinalized
	stateAborted
)

// Writer appends batches to one Parquet file.
type Writer struct {
	fs          afero.Fs
	dest        string
	partial     string
	file        afero.File
	sink        *countingWriter
	schema      *models.CanonicalSchema
	arrowSchema *arrow.Schema
	fileWriter  *pqarrow.FileWriter
	builder     *array.RecordBuilder
	opts        WriterOptions
	level       int

	mu          sync.Mutex
	state       writerState
	rows        int64
	batches     int
	rowGroups   int
	rowsInGroup int64
}

// Open creates the partial file next to destination and prepares a writer for
// schema. An existing destination is replaced only when Finalize succeeds.
func Open(fs afero.Fs, destination string, schema *models.CanonicalSchema, opts WriterOptions) (*Writer, error) {
	if schema.Len() == 0 {
		return nil, errors.New(errors.ErrorTypeInternal, "cannot open a writer without columns")
	}
	if opts.RowGroupSize <= 0 {
		opts.RowGroupSize = DefaultWriterOptions().RowGroupSize
	}
	spec, err := lookupCodec(opts.Codec)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid output codec")
	}
	level, err := EffectiveLevel(opts.Codec, opts.Level)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid output codec")
	}
	if opts.Allocator == nil {
		opts.Allocator = memory.NewGoAllocator()
	}

	arrowSchema, err := ToArrowSchema(schema)
	if err != nil {
		return nil, err
	}

	partial := destination + PartialSuffix
	f, err := fs.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.DestinationWrite(destination, err)
	}

	writerProps := []parquet.WriterProperty{
		parquet.WithCompression(spec.codec),
		parquet.WithDictionaryDefault(opts.Dictionary),
		parquet.WithStats(true),
		parquet.WithMaxRowGroupLength(int64(opts.RowGroupSize)),
		parquet.WithCreatedBy(CreatedBy),
		parquet.WithAllocator(opts.Allocator),
	}
	if spec.leveled() {
		writerProps = append(writerProps, parquet.WithCompressionLevel(level))
	}
	props := parquet.NewWriterProperties(writerProps...)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithAllocator(opts.Allocator),
		pqarrow.WithStoreSchema(),
	)

	sink := &countingWriter{w: f}
	fw, err := pqarrow.NewFileWriter(arrowSchema, sink, props, arrowProps)
	if err != nil {
		return nil, multierr.Append(
			errors.Wrap(err, errors.ErrorTypeInternal, "failed to create parquet writer"),
			removePartial(fs, f, partial))
	}

	return &Writer{
		fs:          fs,
		dest:        destination,
		partial:     partial,
		file:        f,
		sink:        sink,
		schema:      schema.Clone(),
		arrowSchema: arrowSchema,
		fileWriter:  fw,
		builder:     array.NewRecordBuilder(opts.Allocator, arrowSchema),
		opts:        opts,
		level:       level,
	}, nil
}

// Schema returns the schema the file is written against.
func (w *Writer) Schema() *models.CanonicalSchema { return w.schema }

// Path returns the destination path.
func (w *Writer) Path() string { return w.dest }

// Rows returns the number of rows appended so far.
func (w *Writer) Rows() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Append writes b. The batch must carry exactly the canonical columns in
// canonical order and types. Batches without rows are ignored.
func (w *Writer) Append(b *models.RowBatch) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != stateOpen {
		return errors.Newf(errors.ErrorTypeInternal, "append to closed writer for %s", w.dest)
	}
	if b.Empty() {
		return nil
	}
	if got := b.Schema(); !got.Equal(w.schema) {
		return errors.SchemaMismatch(w.schema.String(), got.String()).WithDetail("source", b.Source)
	}

	for i, col := range b.Columns {
		if err := appendColumn(w.builder.Field(i), col); err != nil {
			w.resetBuilder()
			return errors.Wrap(err, errors.ErrorTypeSchemaMismatch, "batch from "+b.Source).
				WithDetail("column", col.Name)
		}
	}

	rec := w.builder.NewRecord()
	defer rec.Release()

	if err := w.fileWriter.WriteBuffered(rec); err != nil {
		return errors.DestinationWrite(w.dest, err)
	}
	w.trackRowGroups(int64(b.NumRows))
	w.rows += int64(b.NumRows)
	w.batches++
	return nil
}

// resetBuilder drops partially appended values so every field builder is
// empty again.
func (w *Writer) resetBuilder() {
	for i := range w.arrowSchema.Fields() {
		w.builder.Field(i).NewArray().Release()
	}
}

// trackRowGroups mirrors how WriteBuffered splits records across row groups.
func (w *Writer) trackRowGroups(n int64) {
	limit := int64(w.opts.RowGroupSize)
	if w.rowGroups == 0 {
		w.rowGroups = 1
	}
	space := limit - w.rowsInGroup
	if n <= space {
		w.rowsInGroup += n
		return
	}
	n -= space
	extra := (n + limit - 1) / limit
	w.rowGroups += int(extra)
	w.rowsInGroup = n - (extra-1)*limit
}

// Finalize flushes the buffered row group, writes the footer and moves the
// file into place. It may be called once.
func (w *Writer) Finalize() (Stats, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case stateFinalized:
		return Stats{}, errors.Newf(errors.ErrorTypeInternal, "writer for %s already finalized", w.dest)
	case stateAborted:
		return Stats{}, errors.Newf(errors.ErrorTypeInternal, "writer for %s was aborted", w.dest)
	}
	w.state = stateFinalized
	w.builder.Release()

	err := multierr.Combine(w.fileWriter.Close(), w.file.Close())
	if err != nil {
		_ = w.fs.Remove(w.partial)
		return Stats{}, errors.DestinationWrite(w.dest, err)
	}
	if err := w.fs.Rename(w.partial, w.dest); err != nil {
		_ = w.fs.Remove(w.partial)
		return Stats{}, errors.DestinationWrite(w.dest, err)
	}

	return Stats{
		Path:       w.dest,
		Rows:       w.rows,
		RowGroups:  w.rowGroups,
		Batches:    w.batches,
		Bytes:      w.sink.n,
		Codec:      codecLabel(w.opts.Codec),
		Level:      w.level,
		Dictionary: w.opts.Dictionary,
	}, nil
}

// Abort discards the partial file. The destination is left untouched.
// Aborting a finalized writer does nothing.
func (w *Writer) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != stateOpen {
		return nil
	}
	w.state = stateAborted
	w.builder.Release()
	return removePartial(w.fs, w.file, w.partial)
}

func removePartial(fs afero.Fs, f afero.File, partial string) error {
	err := f.Close()
	if rmErr := fs.Remove(partial); rmErr != nil && !os.IsNotExist(rmErr) {
		err = multierr.Append(err, rmErr)
	}
	return err
}

func codecLabel(codec string) string {
	if codec == "" {
		return CodecBalanced
	}
	return codec
}

func appendColumn(builder array.Builder, col *models.Column) error {
	builder.Reserve(len(col.Values))
	switch b := builder.(type) {
	case *array.StringBuilder:
		for _, v := range col.Values {
			if v == nil {
				b.AppendNull()
				continue
			}
			s, ok := v.(string)
			if !ok {
				return valueError(col, v)
			}
			b.Append(s)
		}
	case *array.Int64Builder:
		for _, v := range col.Values {
			if v == nil {
				b.AppendNull()
				continue
			}
			n, ok := v.(int64)
			if !ok {
				return valueError(col, v)
			}
			b.Append(n)
		}
	case *array.Uint64Builder:
		for _, v := range col.Values {
			if v == nil {
				b.AppendNull()
				continue
			}
			n, ok := v.(uint64)
			if !ok {
				return valueError(col, v)
			}
			b.Append(n)
		}
	case *array.Float64Builder:
		for _, v := range col.Values {
			if v == nil {
				b.AppendNull()
				continue
			}
			f, ok := v.(float64)
			if !ok {
				return valueError(col, v)
			}
			b.Append(f)
		}
	case *array.BooleanBuilder:
		for _, v := range col.Values {
			if v == nil {
				b.AppendNull()
				continue
			}
			t, ok := v.(bool)
			if !ok {
				return valueError(col, v)
			}
			b.Append(t)
		}
	default:
		return fmt.Errorf("unsupported builder type: %T", builder)
	}
	return nil
}

func valueError(col *models.Column, v any) error {
	return fmt.Errorf("column %s: %T is not a %s value", col.Name, v, col.Type)
}

// ToArrowSchema maps a canonical schema to an Arrow schema with nullable fields.
func ToArrowSchema(schema *models.CanonicalSchema) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, schema.Len())
	for _, f := range schema.Fields {
		dt, err := toArrowType(f.Type)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to convert field "+f.Name)
		}
		fields = append(fields, arrow.Field{Name: f.Name, Type: dt, Nullable: true})
	}
	return arrow.NewSchema(fields, nil), nil
}

func toArrowType(t models.ColumnType) (arrow.DataType, error) {
	switch t {
	case models.String:
		return arrow.BinaryTypes.String, nil
	case models.Int64:
		return arrow.PrimitiveTypes.Int64, nil
	case models.UInt64:
		return arrow.PrimitiveTypes.Uint64, nil
	case models.Float64:
		return arrow.PrimitiveTypes.Float64, nil
	case models.Boolean:
		return arrow.FixedWidthTypes.Boolean, nil
	default:
		return nil, fmt.Errorf("unsupported column type: %s", t)
	}
}

// FromArrowSchema is the inverse of ToArrowSchema.
func FromArrowSchema(s *arrow.Schema) (*models.CanonicalSchema, error) {
	fields := make([]models.Field, s.NumFields())
	for i, f := range s.Fields() {
		var t models.ColumnType
		switch f.Type.ID() {
		case arrow.STRING, arrow.LARGE_STRING:
			t = models.String
		case arrow.INT64:
			t = models.Int64
		case arrow.UINT64:
			t = models.UInt64
		case arrow.FLOAT64:
			t = models.Float64
		case arrow.BOOL:
			t = models.Boolean
		default:
			return nil, fmt.Errorf("unsupported arrow type %s for column %s", f.Type, f.Name)
		}
		fields[i] = models.Field{Name: f.Name, Type: t}
	}
	return models.NewCanonicalSchema(fields...), nil
}

// countingWriter hides the file's Close from the parquet writer and counts
// the bytes written.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
