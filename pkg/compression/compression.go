// Package compression provides streaming decompression of input files and
// streaming compression for producing fixtures and transcoding.
//
// # Overview
//
// The compression package provides:
//   - Detection of the codec from a file name suffix
//   - Streaming readers for gzip, zstd, bzip2, lz4, xz, snappy (framed) and s2
//   - Streaming writers for the same codecs except bzip2, which is decode-only
//   - Configurable compression levels (Fastest, Default, Better, Best)
//
// # Basic Usage
//
//	alg := compression.DetectAlgorithm("comments-2019-01.jsonl.zst")
//	rc, err := compression.NewReader(alg, f)
//	if err != nil {
//	    return err
//	}
//	defer rc.Close()
//
// Concatenated gzip members and concatenated xz streams are read as one
// logical stream.
package compression

import (
	"compress/bzip2"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/spf13/afero"
	"github.com/ulikunitz/xz"
	"go.uber.org/multierr"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// Bzip2 represents bzip2 compression (decode only)
	Bzip2 Algorithm = "bzip2"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// XZ represents xz/lzma2 compression
	XZ Algorithm = "xz"
	// Snappy represents framed snappy compression
	Snappy Algorithm = "snappy"
	// S2 represents s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
)

// Level represents compression level, controlling the trade-off between
// compression speed and compression ratio.
type Level int

const (
	// Fastest prioritizes speed over compression ratio.
	Fastest Level = 1
	// Default balances speed and compression.
	Default Level = 5
	// Better improves compression at cost of speed.
	Better Level = 7
	// Best maximizes compression ratio.
	Best Level = 9
)

var extensions = map[string]Algorithm{
	".gz":     Gzip,
	".gzip":   Gzip,
	".zst":    Zstd,
	".zstd":   Zstd,
	".bz2":    Bzip2,
	".lz4":    LZ4,
	".xz":     XZ,
	".sz":     Snappy,
	".snappy": Snappy,
	".s2":     S2,
}

// Algorithms lists every supported algorithm, None first.
func Algorithms() []Algorithm {
	return []Algorithm{None, Gzip, Zstd, Bzip2, LZ4, XZ, Snappy, S2}
}

// DetectAlgorithm returns the codec implied by the suffix of path, or None.
func DetectAlgorithm(path string) Algorithm {
	if alg, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return alg
	}
	return None
}

// StripExtension removes a recognised compression suffix from path.
func StripExtension(path string) string {
	ext := filepath.Ext(path)
	if _, ok := extensions[strings.ToLower(ext)]; ok {
		return strings.TrimSuffix(path, ext)
	}
	return path
}

// Extension returns the canonical file suffix for alg, or "" for None.
func Extension(alg Algorithm) string {
	switch alg {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	case Bzip2:
		return ".bz2"
	case LZ4:
		return ".lz4"
	case XZ:
		return ".xz"
	case Snappy:
		return ".sz"
	case S2:
		return ".s2"
	default:
		return ""
	}
}

// NewReader wraps r with a decompressor for alg. Closing the result releases
// the decompressor but never closes r.
func NewReader(alg Algorithm, r io.Reader) (io.ReadCloser, error) {
	switch alg {
	case None, "":
		return io.NopCloser(r), nil
	case Gzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gr, nil
	case Zstd:
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return dec.IOReadCloser(), nil
	case Bzip2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case XZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		return io.NopCloser(xr), nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case S2:
		return io.NopCloser(s2.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", alg)
	}
}

// NewWriter wraps w with a compressor for alg. Close flushes the compressor
// but never closes w.
func NewWriter(alg Algorithm, w io.Writer, level Level) (io.WriteCloser, error) {
	switch alg {
	case None, "":
		return nopWriteCloser{w}, nil
	case Gzip:
		gw, err := gzip.NewWriterLevel(w, mapGzipLevel(level))
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		return gw, nil
	case Zstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(mapZstdLevel(level)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return enc, nil
	case LZ4:
		lw := lz4.NewWriter(w)
		if err := lw.Apply(lz4.CompressionLevelOption(mapLZ4Level(level))); err != nil {
			return nil, fmt.Errorf("failed to configure lz4 writer: %w", err)
		}
		return lw, nil
	case XZ:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to create xz writer: %w", err)
		}
		return xw, nil
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case S2:
		return s2.NewWriter(w, mapS2Level(level)...), nil
	case Bzip2:
		return nil, fmt.Errorf("bzip2 is supported for reading only")
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", alg)
	}
}

// Open opens path on fs and returns a decompressing reader chosen by the
// path's suffix. Closing it closes both the decompressor and the file.
func Open(fs afero.Fs, path string) (io.ReadCloser, Algorithm, error) {
	alg := DetectAlgorithm(path)
	f, err := fs.Open(path)
	if err != nil {
		return nil, alg, err
	}
	rc, err := NewReader(alg, f)
	if err != nil {
		return nil, alg, multierr.Append(err, f.Close())
	}
	return &fileReader{ReadCloser: rc, file: f}, alg, nil
}

type fileReader struct {
	io.ReadCloser
	file afero.File
}

func (r *fileReader) Close() error {
	return multierr.Combine(r.ReadCloser.Close(), r.file.Close())
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func mapGzipLevel(level Level) int {
	switch level {
	case Fastest:
		return gzip.BestSpeed
	case Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

func mapS2Level(level Level) []s2.WriterOption {
	switch level {
	case Better:
		return []s2.WriterOption{s2.WriterBetterCompression()}
	case Best:
		return []s2.WriterOption{s2.WriterBestCompression()}
	default:
		return nil
	}
}
