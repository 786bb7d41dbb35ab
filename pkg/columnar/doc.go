// Package columnar writes canonical row batches into Parquet files and reads
// them back.
//
// # Overview
//
// The columnar package is the only place the converter touches the Parquet
// format. It provides:
//   - Writer: appends models.RowBatch values to one file through pqarrow
//   - Reader: reopens a file for inspection and for round-trip checks
//   - Codec presets that map onto the Parquet compression codecs
//
// # Atomic Output
//
// A Writer streams to a sibling "<destination>.partial" file. Finalize closes
// the Parquet footer and renames the partial file over the destination; Abort
// removes it. An interrupted job therefore leaves either the previous file or
// nothing at the destination, never a truncated one.
//
// # Row Groups
//
// Rows are buffered by pqarrow and flushed whenever a row group reaches
// WriterOptions.RowGroupSize rows. A single large batch is split across as many
// row groups as it needs, so row group boundaries do not depend on the batch
// size of the reader.
//
// # Codecs
//
// Four presets are available:
//
//  1. none: uncompressed pages
//  2. fast: Snappy
//  3. balanced: Zstandard level 3 (the default)
//  4. high-ratio: Zstandard level 19
//
// The raw codec names snappy, zstd, gzip, brotli and lz4 are accepted as well.
// Levels are validated against the codec; 0 selects the codec default.
//
// # Usage Example
//
//	opts := columnar.DefaultWriterOptions()
//	opts.Codec = columnar.CodecHighRatio
//
//	w, err := columnar.Open(afero.NewOsFs(), "comments.parquet", schema, opts)
//	if err != nil {
//		return err
//	}
//	for _, b := range batches {
//		if err := w.Append(b); err != nil {
//			_ = w.Abort()
//			return err
//		}
//	}
//	stats, err := w.Finalize()
//
// Reading a file back:
//
//	r, err := columnar.OpenReader(fs, "comments.parquet")
//	if err != nil {
//		return err
//	}
//	defer r.Close()
//
//	err = r.ReadBatches(ctx, func(b *models.RowBatch) error {
//		fmt.Println(b.NumRows)
//		return nil
//	})
package columnar
