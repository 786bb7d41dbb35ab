package columnar

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/errors"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/models"
)

// DefaultReadBatchSize is the number of rows per batch handed out by ReadBatches.
const DefaultReadBatchSize = 64 * 1024

// Reader reads a Parquet file written by Writer.
type Reader struct {
	path        string
	file        afero.File
	parquet     *file.Reader
	arrowReader *pqarrow.FileReader
	schema      *models.CanonicalSchema
}

// ChunkInfo describes one column chunk of one row group.
type ChunkInfo struct {
	Codec          string `json:"codec"`
	Dictionary     bool   `json:"dictionary"`
	CompressedSize int64  `json:"compressed_size"`
}

// OpenReader opens path for reading.
func OpenReader(fs afero.Fs, path string) (*Reader, error) {
	return OpenReaderWithBatchSize(fs, path, DefaultReadBatchSize)
}

// OpenReaderWithBatchSize opens path, reading batchSize rows per batch.
func OpenReaderWithBatchSize(fs afero.Fs, path string, batchSize int) (*Reader, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.UnreadableFile(path, err)
	}

	pf, err := file.NewParquetReader(readAtSeeker{f, f})
	if err != nil {
		return nil, multierr.Append(errors.UnreadableFile(path, err), f.Close())
	}

	if batchSize <= 0 {
		batchSize = DefaultReadBatchSize
	}
	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: int64(batchSize)}, memory.NewGoAllocator())
	if err != nil {
		return nil, multierr.Combine(errors.UnreadableFile(path, err), pf.Close(), f.Close())
	}

	arrowSchema, err := fr.Schema()
	if err != nil {
		return nil, multierr.Combine(errors.UnreadableFile(path, err), pf.Close(), f.Close())
	}
	schema, err := FromArrowSchema(arrowSchema)
	if err != nil {
		return nil, multierr.Combine(errors.UnreadableFile(path, err), pf.Close(), f.Close())
	}

	return &Reader{
		path:        path,
		file:        f,
		parquet:     pf,
		arrowReader: fr,
		schema:      schema,
	}, nil
}

// Schema returns the file schema.
func (r *Reader) Schema() *models.CanonicalSchema { return r.schema }

// NumRows returns the total row count from the footer.
func (r *Reader) NumRows() int64 { return r.parquet.NumRows() }

// NumRowGroups returns the number of row groups.
func (r *Reader) NumRowGroups() int { return r.parquet.NumRowGroups() }

// RowGroupRows returns the row count of row group i.
func (r *Reader) RowGroupRows(i int) int64 { return r.parquet.RowGroup(i).NumRows() }

// ColumnChunk describes column col of row group rg.
func (r *Reader) ColumnChunk(rg, col int) (ChunkInfo, error) {
	cc, err := r.parquet.MetaData().RowGroup(rg).ColumnChunk(col)
	if err != nil {
		return ChunkInfo{}, err
	}
	return ChunkInfo{
		Codec:          cc.Compression().String(),
		Dictionary:     cc.HasDictionaryPage(),
		CompressedSize: cc.TotalCompressedSize(),
	}, nil
}

// ReadBatches calls fn with every row batch in file order. Iteration stops at
// the first error returned by fn or when ctx is done.
func (r *Reader) ReadBatches(ctx context.Context, fn func(*models.RowBatch) error) error {
	rr, err := r.arrowReader.GetRecordReader(ctx, nil, nil)
	if err != nil {
		return errors.UnreadableFile(r.path, err)
	}
	defer rr.Release()

	seq := 0
	for rr.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := recordToBatch(rr.Record(), r.path, seq)
		if err != nil {
			return errors.UnreadableFile(r.path, err)
		}
		if err := fn(b); err != nil {
			return err
		}
		seq++
	}
	// the record reader reports io.EOF once every row group is consumed
	if err := rr.Err(); err != nil && !stderrors.Is(err, io.EOF) {
		return errors.UnreadableFile(r.path, err)
	}
	return nil
}

// Close releases the file.
func (r *Reader) Close() error {
	return multierr.Append(r.parquet.Close(), r.file.Close())
}

func recordToBatch(rec arrow.Record, source string, seq int) (*models.RowBatch, error) {
	n := int(rec.NumRows())
	b := models.NewRowBatch(source, seq)
	b.NumRows = n
	b.Columns = make([]*models.Column, rec.NumCols())
	for i, field := range rec.Schema().Fields() {
		col, err := arrayToColumn(field.Name, rec.Column(i), n)
		if err != nil {
			return nil, err
		}
		b.Columns[i] = col
	}
	return b, nil
}

func arrayToColumn(name string, arr arrow.Array, n int) (*models.Column, error) {
	var col *models.Column
	switch a := arr.(type) {
	case *array.String:
		col = models.NewColumn(name, models.String, n)
		for i := 0; i < n; i++ {
			if !a.IsNull(i) {
				col.Values[i] = strings.Clone(a.Value(i))
			}
		}
	case *array.Int64:
		col = models.NewColumn(name, models.Int64, n)
		for i := 0; i < n; i++ {
			if !a.IsNull(i) {
				col.Values[i] = a.Value(i)
			}
		}
	case *array.Uint64:
		col = models.NewColumn(name, models.UInt64, n)
		for i := 0; i < n; i++ {
			if !a.IsNull(i) {
				col.Values[i] = a.Value(i)
			}
		}
	case *array.Float64:
		col = models.NewColumn(name, models.Float64, n)
		for i := 0; i < n; i++ {
			if !a.IsNull(i) {
				col.Values[i] = a.Value(i)
			}
		}
	case *array.Boolean:
		col = models.NewColumn(name, models.Boolean, n)
		for i := 0; i < n; i++ {
			if !a.IsNull(i) {
				col.Values[i] = a.Value(i)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported arrow array %T for column %s", arr, name)
	}
	return col, nil
}

// readAtSeeker keeps the file's Close away from the parquet reader so the
// file is closed exactly once.
type readAtSeeker struct {
	io.ReaderAt
	io.Seeker
}
