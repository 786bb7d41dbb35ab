// Package parq converts large collections of delimited text and JSON lines
// files into Parquet with bounded memory.
//
// It was built for multi-hundred-million-row dumps (comment and submission
// archives shipped as compressed CSV or JSONL), where loading a whole file
// into memory is not an option.
//
// # Architecture
//
// A conversion job moves every input file through the same stages:
//
//  1. source: enumerate candidate files in a directory, or from explicit
//     paths and globs, in a stable order
//  2. compression: detect gzip, bzip2, zstd, xz, lz4 or snappy from the
//     extension and decompress as a stream
//  3. reader: split the stream into bounded row batches
//  4. coerce: narrow text columns to int64, uint64, float64 or bool
//  5. schema: reconcile each batch against the canonical schema of its output
//  6. columnar: append the batch to a Parquet file written atomically
//
// Files are read ahead by a bounded worker pool; batches are always written
// in file order by a single consumer.
//
// # Quick Start
//
// Convert a directory into one Parquet file:
//
//	parq convert --input ./dumps --output comments.parquet
//
// Mirror the input tree, one Parquet file per input:
//
//	parq convert --topology mirrored --input ./dumps --output-dir ./parquet
//
// Inspect the result:
//
//	parq inspect comments.parquet
//
// # Key Packages
//
//	internal/pipeline - Conversion job, worker pool and run summary
//	pkg/source        - Candidate file enumeration
//	pkg/compression   - Streaming decompression by file extension
//	pkg/reader        - Delimited and JSON lines batch readers
//	pkg/coerce        - Column type inference
//	pkg/schema        - Canonical schema and drift handling
//	pkg/columnar      - Parquet writer and reader
//	pkg/config        - Configuration file, environment and flags
//	pkg/errors        - Structured error handling
//	pkg/logger        - Structured logging
//	pkg/metrics       - Prometheus metrics and resource sampling
//	pkg/observability - OpenTelemetry tracing
//	pkg/publish       - Upload of finished outputs to S3 or GCS
//
// # Configuration
//
// Settings are layered: built-in defaults, then a YAML file given with
// --config (where ${VAR_NAME} is replaced from the environment), then PARQ_*
// environment variables, then command line flags.
//
// # Exit Status
//
//	0 - every candidate file was converted
//	1 - the job failed or was cancelled
//	2 - no rows were written
//	3 - some files were skipped as unreadable or empty
package parq
