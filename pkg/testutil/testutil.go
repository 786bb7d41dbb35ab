// Package testutil provides fixtures for converter tests: loggers, contexts,
// input files in every supported compression, and a reader that loads a
// Parquet output back into rows.
package testutil

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/columnar"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/compression"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/models"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// AssertEventually asserts that a condition becomes true within the specified timeout.
// It checks the condition every 10ms until it succeeds or the timeout expires.
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// WriteFile writes content to path on fs, creating parent directories. The
// compression is chosen from the path suffix, so "a.csv.zst" is written
// zstd-compressed.
func WriteFile(t *testing.T, fs afero.Fs, path, content string) string {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))

	alg := compression.DetectAlgorithm(path)
	var buf bytes.Buffer
	w, err := compression.NewWriter(alg, &buf, compression.Default)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0o644))
	return path
}

// ParquetFile is an output loaded back into memory.
type ParquetFile struct {
	Schema    *models.CanonicalSchema
	RowGroups []int64
	Rows      []map[string]any
}

// Column returns the values of one column across all rows.
func (p *ParquetFile) Column(name string) []any {
	out := make([]any, len(p.Rows))
	for i, r := range p.Rows {
		out[i] = r[name]
	}
	return out
}

// ReadParquet loads path from fs.
func ReadParquet(t *testing.T, fs afero.Fs, path string) *ParquetFile {
	t.Helper()
	r, err := columnar.OpenReader(fs, path)
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Close()) }()

	pf := &ParquetFile{Schema: r.Schema()}
	for i := 0; i < r.NumRowGroups(); i++ {
		pf.RowGroups = append(pf.RowGroups, r.RowGroupRows(i))
	}
	err = r.ReadBatches(context.Background(), func(b *models.RowBatch) error {
		for i := 0; i < b.NumRows; i++ {
			pf.Rows = append(pf.Rows, b.Row(i))
		}
		return nil
	})
	require.NoError(t, err)
	return pf
}
