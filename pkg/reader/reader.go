// Package reader turns one input file into a lazy sequence of bounded
// RowBatches. It hides compression, text encoding and the content format
// (delimited text or one JSON object per line) behind ChunkReader.
package reader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync/atomic"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/compression"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/errors"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/models"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/source"
)

// MalformedPolicy decides what happens to a row that cannot be parsed.
type MalformedPolicy string

const (
	// MalformedSkip drops the row and counts it.
	MalformedSkip MalformedPolicy = "skip"
	// MalformedAbort fails the whole file.
	MalformedAbort MalformedPolicy = "abort"
)

// Status reports how reading a file went.
type Status int

const (
	// StatusPending means no batch has been requested yet.
	StatusPending Status = iota
	// StatusOK means at least one row was read.
	StatusOK
	// StatusEmpty means the file ended without a single data row.
	StatusEmpty
	// StatusFailed means decoding or parsing failed; see Err.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusOK:
		return "ok"
	case StatusEmpty:
		return "empty"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Options configures a ChunkReader.
type Options struct {
	// ChunkSize is the maximum number of rows per batch.
	ChunkSize int
	// Delimiter separates fields of delimited text.
	Delimiter rune
	// HasHeader means the first delimited row holds column names.
	HasHeader bool
	// Encoding is a WHATWG encoding label; empty or utf-8 reads bytes as is.
	Encoding string
	// MalformedRowPolicy is skip or abort.
	MalformedRowPolicy MalformedPolicy
	// MaxLineBytes bounds a single JSON line.
	MaxLineBytes int
}

// DefaultOptions returns the reader defaults.
func DefaultOptions() Options {
	return Options{
		ChunkSize:          100_000,
		Delimiter:          ',',
		HasHeader:          true,
		Encoding:           "utf-8",
		MalformedRowPolicy: MalformedSkip,
		MaxLineBytes:       16 << 20,
	}
}

// Counters are the per-file read statistics.
type Counters struct {
	RowsRead      int64
	MalformedRows int64
	BytesRead     int64
}

// parser fills a batch with up to limit rows. It returns io.EOF once the
// input is exhausted, possibly together with a partially filled batch.
type parser interface {
	next(b *batchBuilder, limit int) error
}

// ChunkReader produces RowBatches from one file. It is not safe for
// concurrent use.
type ChunkReader struct {
	file   source.File
	opts   Options
	closer io.Closer
	count  *countingReader
	parser parser

	seq       int
	rows      int64
	malformed int64
	status    Status
	err       error
	done      bool
}

// Open opens file on fs and prepares it for reading. Failing to open the file
// or to initialise its decompressor is an UnreadableFile error.
func Open(fs afero.Fs, file source.File, opts Options) (*ChunkReader, error) {
	if opts.ChunkSize <= 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "chunk size must be positive")
	}
	if opts.MalformedRowPolicy == "" {
		opts.MalformedRowPolicy = MalformedSkip
	}
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = DefaultOptions().MaxLineBytes
	}

	dec, err := decoder(opts.Encoding)
	if err != nil {
		return nil, err
	}

	rc, _, err := compression.Open(fs, file.Path)
	if err != nil {
		return nil, errors.UnreadableFile(file.Path, err)
	}

	cr := &ChunkReader{
		file:   file,
		opts:   opts,
		closer: rc,
		count:  &countingReader{r: rc},
		status: StatusPending,
	}

	var r io.Reader = cr.count
	if dec != nil {
		r = transform.NewReader(r, dec)
	}
	br := bufio.NewReaderSize(r, 256*1024)

	switch file.Format {
	case source.FormatLineRecords:
		cr.parser = newLineParser(cr, br)
	default:
		cr.parser = newDelimitedParser(cr, br)
	}
	return cr, nil
}

// Next returns the next batch, or io.EOF after the last one. Any other error
// is an UnreadableFile error and leaves the reader in StatusFailed.
func (cr *ChunkReader) Next(ctx context.Context) (*models.RowBatch, error) {
	if cr.status == StatusFailed {
		return nil, cr.err
	}
	if cr.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := newBatchBuilder()
	for b.rows == 0 && !cr.done {
		err := cr.parser.next(b, cr.opts.ChunkSize)
		if err == io.EOF {
			cr.done = true
		} else if err != nil {
			cr.fail(err)
			return nil, cr.err
		}
	}

	if b.rows == 0 {
		if cr.rows == 0 {
			cr.status = StatusEmpty
		}
		return nil, io.EOF
	}

	batch := b.build(cr.file.Path, cr.seq)
	cr.seq++
	cr.rows += int64(batch.NumRows)
	cr.status = StatusOK
	return batch, nil
}

// malformedRow applies the malformed-row policy. It returns a non-nil error
// when the file must be aborted.
func (cr *ChunkReader) malformedRow(line int64, cause error) error {
	cr.malformed++
	if cr.opts.MalformedRowPolicy == MalformedAbort {
		return errors.UnreadableFile(cr.file.Path, fmt.Errorf("malformed row at line %d: %w", line, cause)).
			WithDetail("line", line)
	}
	return nil
}

func (cr *ChunkReader) fail(err error) {
	if !errors.IsType(err, errors.ErrorTypeUnreadableFile) {
		err = errors.UnreadableFile(cr.file.Path, err)
	}
	cr.status = StatusFailed
	cr.err = err
}

// Status returns the reading status so far.
func (cr *ChunkReader) Status() Status { return cr.status }

// Err returns the failure behind StatusFailed.
func (cr *ChunkReader) Err() error { return cr.err }

// Counters returns the rows, malformed rows and decompressed bytes read so far.
func (cr *ChunkReader) Counters() Counters {
	return Counters{
		RowsRead:      cr.rows,
		MalformedRows: cr.malformed,
		BytesRead:     cr.count.n.Load(),
	}
}

// File returns the file being read.
func (cr *ChunkReader) File() source.File { return cr.file }

// Close releases the file and its decompressor.
func (cr *ChunkReader) Close() error {
	if cr.closer == nil {
		return nil
	}
	err := cr.closer.Close()
	cr.closer = nil
	return err
}

// Batches adapts a ChunkReader to a range-over-func sequence. The sequence
// ends silently at io.EOF and yields any other error once.
func Batches(ctx context.Context, cr *ChunkReader) iter.Seq2[*models.RowBatch, error] {
	return func(yield func(*models.RowBatch, error) bool) {
		for {
			b, err := cr.Next(ctx)
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(b, nil) {
				return
			}
		}
	}
}

// ReadAll opens file, drains it and closes it. It is meant for probes and
// tests; the pipeline streams with Next.
func ReadAll(ctx context.Context, fs afero.Fs, file source.File, opts Options) (batches []*models.RowBatch, c Counters, err error) {
	cr, err := Open(fs, file, opts)
	if err != nil {
		return nil, c, err
	}
	defer func() {
		err = multierr.Append(err, cr.Close())
	}()
	for b, berr := range Batches(ctx, cr) {
		if berr != nil {
			return batches, cr.Counters(), berr
		}
		batches = append(batches, b)
	}
	return batches, cr.Counters(), nil
}

func decoder(label string) (transform.Transformer, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8":
		return nil, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "unknown text encoding "+label)
	}
	return enc.NewDecoder(), nil
}

type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
