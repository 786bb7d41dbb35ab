package reader

import (
	"context"
	"io"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/compression"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/errors"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/models"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/source"
)

func csvFile(t *testing.T, fs afero.Fs, path, content string) source.File {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	return source.File{Path: path, Rel: path, Format: source.FormatDelimited}
}

func jsonFile(t *testing.T, fs afero.Fs, path, content string) source.File {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	return source.File{Path: path, Rel: path, Format: source.FormatLineRecords}
}

func opts(chunk int) Options {
	o := DefaultOptions()
	o.ChunkSize = chunk
	return o
}

func readAll(t *testing.T, fs afero.Fs, f source.File, o Options) ([]*models.RowBatch, Counters, error) {
	t.Helper()
	return ReadAll(context.Background(), fs, f, o)
}

func TestDelimitedWithHeader(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := csvFile(t, fs, "/a.csv", "\ufeffid,name,score\n1,alice,10\n2,,20\n3,carol\n")

	batches, c, err := readAll(t, fs, f, opts(10))
	require.NoError(t, err)
	require.Len(t, batches, 1)
	b := batches[0]
	assert.Equal(t, []string{"id", "name", "score"}, b.Names())
	assert.Equal(t, 3, b.NumRows)
	assert.NoError(t, b.Validate())
	assert.Equal(t, models.String, b.Column("id").Type)
	assert.Equal(t, []any{"1", "2", "3"}, b.Column("id").Values)
	assert.Equal(t, []any{"alice", nil, "carol"}, b.Column("name").Values)
	assert.Equal(t, []any{"10", "20", nil}, b.Column("score").Values, "short row padded with null")
	assert.Equal(t, int64(3), c.RowsRead)
	assert.Greater(t, c.BytesRead, int64(0))
}

func TestDelimitedWithoutHeader(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := csvFile(t, fs, "/a.csv", "1\n2\n3\n")
	o := opts(10)
	o.HasHeader = false

	batches, _, err := readAll(t, fs, f, o)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"column_0"}, batches[0].Names())
	assert.Equal(t, []any{"1", "2", "3"}, batches[0].Columns[0].Values)
}

func TestDelimitedChunking(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := csvFile(t, fs, "/a.csv", "x\n1\n2\n3\n4\n5\n")

	batches, _, err := readAll(t, fs, f, opts(2))
	require.NoError(t, err)
	require.Len(t, batches, 3)
	var sizes []int
	for i, b := range batches {
		sizes = append(sizes, b.NumRows)
		assert.Equal(t, i, b.Seq)
		assert.Equal(t, "/a.csv", b.Source)
	}
	assert.Equal(t, []int{2, 2, 1}, sizes)
}

func TestDelimitedHeaderCleanup(t *testing.T) {
	assert.Equal(t,
		[]string{"a", "a_1", "column_2", "b", "a_2"},
		headerNames([]string{"\ufeffa", "a", " ", "b", "a"}))
}

func TestDelimitedTabAndQuotes(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := csvFile(t, fs, "/a.tsv", "k\tv\n1\t\"quoted\ttab\"\n2\tbare\"quote\n")
	o := opts(10)
	o.Delimiter = '\t'

	batches, _, err := readAll(t, fs, f, o)
	require.NoError(t, err)
	assert.Equal(t, []any{"quoted\ttab", "bare\"quote"}, batches[0].Column("v").Values)
}

func TestMalformedSkip(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := csvFile(t, fs, "/a.csv", "a,b\n1,2\n3,4,5\n6,7\n")

	batches, c, err := readAll(t, fs, f, opts(10))
	require.NoError(t, err)
	assert.Equal(t, 2, batches[0].NumRows)
	assert.Equal(t, []any{"1", "6"}, batches[0].Column("a").Values)
	assert.Equal(t, int64(1), c.MalformedRows)
}

func TestMalformedAbort(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := csvFile(t, fs, "/a.csv", "a,b\n1,2\n3,4,5\n6,7\n")
	o := opts(1)
	o.MalformedRowPolicy = MalformedAbort

	cr, err := Open(fs, f, o)
	require.NoError(t, err)
	defer cr.Close()

	b, err := cr.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, b.NumRows)

	_, err = cr.Next(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnreadableFile))
	assert.Equal(t, StatusFailed, cr.Status())
	assert.Equal(t, err, cr.Err())

	_, again := cr.Next(context.Background())
	assert.Equal(t, err, again)
}

func TestEmptyFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	for name, content := range map[string]string{
		"/empty.csv":       "",
		"/header-only.csv": "a,b\n",
		"/blank.csv":       "\n\n",
	} {
		t.Run(name, func(t *testing.T) {
			cr, err := Open(fs, csvFile(t, fs, name, content), opts(10))
			require.NoError(t, err)
			defer cr.Close()
			assert.Equal(t, StatusPending, cr.Status())

			_, err = cr.Next(context.Background())
			assert.Equal(t, io.EOF, err)
			assert.Equal(t, StatusEmpty, cr.Status())
			assert.NoError(t, cr.Err())
		})
	}
}

func TestStatusOKAfterRead(t *testing.T) {
	fs := afero.NewMemMapFs()
	cr, err := Open(fs, csvFile(t, fs, "/a.csv", "a\n1\n"), opts(10))
	require.NoError(t, err)
	defer cr.Close()

	for range Batches(context.Background(), cr) {
	}
	assert.Equal(t, StatusOK, cr.Status())
	assert.Equal(t, "ok", cr.Status().String())
}

func TestOpenMissingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := Open(fs, source.File{Path: "/nope.csv", Format: source.FormatDelimited}, opts(10))
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnreadableFile))
}

func TestOpenBadOptions(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := csvFile(t, fs, "/a.csv", "a\n1\n")
	_, err := Open(fs, f, Options{ChunkSize: 0})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	o := opts(10)
	o.Encoding = "klingon"
	_, err = Open(fs, f, o)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestCorruptCompressedFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/a.csv.gz", []byte("definitely not gzip"), 0o644))
	_, err := Open(fs, source.File{Path: "/a.csv.gz", Format: source.FormatDelimited}, opts(10))
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnreadableFile))

	require.NoError(t, afero.WriteFile(fs, "/b.csv.zst", []byte("definitely not zstd"), 0o644))
	cr, err := Open(fs, source.File{Path: "/b.csv.zst", Format: source.FormatDelimited}, opts(10))
	if err == nil {
		defer cr.Close()
		_, err = cr.Next(context.Background())
		assert.Equal(t, StatusFailed, cr.Status())
	}
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnreadableFile))
}

func TestCompressedInput(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, alg := range []compression.Algorithm{compression.Gzip, compression.Zstd, compression.LZ4, compression.XZ, compression.Snappy, compression.S2} {
		t.Run(string(alg), func(t *testing.T) {
			path := "/data.csv" + compression.Extension(alg)
			fh, err := fs.Create(path)
			require.NoError(t, err)
			w, err := compression.NewWriter(alg, fh, compression.Default)
			require.NoError(t, err)
			_, err = w.Write([]byte("a,b\n1,x\n2,y\n"))
			require.NoError(t, err)
			require.NoError(t, w.Close())
			require.NoError(t, fh.Close())

			batches, _, err := readAll(t, fs, source.File{Path: path, Format: source.FormatDelimited}, opts(10))
			require.NoError(t, err)
			require.Len(t, batches, 1)
			assert.Equal(t, []any{"x", "y"}, batches[0].Column("b").Values)
		})
	}
}

func TestLatin1Encoding(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := csvFile(t, fs, "/a.csv", "name\ncaf\xe9\n")
	o := opts(10)
	o.Encoding = "latin1"

	batches, _, err := readAll(t, fs, f, o)
	require.NoError(t, err)
	assert.Equal(t, []any{"café"}, batches[0].Column("name").Values)
}

func TestLineRecords(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := jsonFile(t, fs, "/a.jsonl", `{"id": 1, "body": "hi", "score": 2.5, "ok": true}
{"id": 18446744073709551615, "body": null, "meta": {"x":[1,2]}}

{"ok": false, "id": 3, "body": "again", "score": 1}
`)
	batches, c, err := readAll(t, fs, f, opts(10))
	require.NoError(t, err)
	require.Len(t, batches, 1)
	b := batches[0]
	require.NoError(t, b.Validate())

	assert.Equal(t, []string{"id", "body", "score", "ok", "meta"}, b.Names())
	assert.Equal(t, models.UInt64, b.Column("id").Type)
	assert.Equal(t, []any{uint64(1), uint64(18446744073709551615), uint64(3)}, b.Column("id").Values)
	assert.Equal(t, models.Float64, b.Column("score").Type)
	assert.Equal(t, []any{2.5, nil, 1.0}, b.Column("score").Values)
	assert.Equal(t, models.Boolean, b.Column("ok").Type)
	assert.Equal(t, []any{true, nil, false}, b.Column("ok").Values)
	assert.Equal(t, []any{"hi", nil, "again"}, b.Column("body").Values)
	assert.Equal(t, models.String, b.Column("meta").Type)
	assert.Equal(t, []any{nil, `{"x":[1,2]}`, nil}, b.Column("meta").Values)
	assert.Equal(t, int64(3), c.RowsRead)
}

func TestLineRecordsMixedTypes(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := jsonFile(t, fs, "/a.jsonl", `{"v": 1}
{"v": "two"}
{"v": -3}
{"v": true}
`)
	batches, _, err := readAll(t, fs, f, opts(10))
	require.NoError(t, err)
	col := batches[0].Column("v")
	assert.Equal(t, models.String, col.Type)
	assert.Equal(t, []any{"1", "two", "-3", "true"}, col.Values)
}

func TestLineRecordsSignedAndUnsigned(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := jsonFile(t, fs, "/a.jsonl", `{"v": -1}
{"v": 18446744073709551615}
`)
	batches, _, err := readAll(t, fs, f, opts(10))
	require.NoError(t, err)
	assert.Equal(t, models.String, batches[0].Column("v").Type)
	assert.Equal(t, []any{"-1", "18446744073709551615"}, batches[0].Column("v").Values)
}

func TestLineRecordsMalformed(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := "{\"a\": 1}\n[1, 2]\n{\"a\": \n\"scalar\"\n{\"a\": 2} trailing\n{\"a\": 3}\n"

	batches, c, err := readAll(t, fs, jsonFile(t, fs, "/skip.jsonl", content), opts(10))
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(3)}, batches[0].Column("a").Values)
	assert.Equal(t, int64(4), c.MalformedRows)

	o := opts(10)
	o.MalformedRowPolicy = MalformedAbort
	_, _, err = readAll(t, fs, jsonFile(t, fs, "/abort.jsonl", content), o)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnreadableFile))
}

func TestLineRecordsTooLong(t *testing.T) {
	fs := afero.NewMemMapFs()
	o := opts(10)
	o.MaxLineBytes = 16
	_, _, err := readAll(t, fs, jsonFile(t, fs, "/a.jsonl", `{"body": "this line is far too long"}`+"\n"), o)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnreadableFile))
}

func TestLineRecordsColumnFirstSeenMidBatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := jsonFile(t, fs, "/a.jsonl", `{"a": "x"}
{"a": "y", "b": "z"}
{"b": "w", "a": "v", "a": "dup"}
`)
	batches, _, err := readAll(t, fs, f, opts(10))
	require.NoError(t, err)
	b := batches[0]
	assert.Equal(t, []string{"a", "b"}, b.Names())
	assert.Equal(t, []any{"x", "y", "dup"}, b.Column("a").Values)
	assert.Equal(t, []any{nil, "z", "w"}, b.Column("b").Values)
}

func TestParseObject(t *testing.T) {
	fields, err := parseObject([]byte(`{"a":{"b":1,"c":[{"d":2}]},"e\"q":"x,y:z","f":[1,"g"],"n":null,"a":true}`))
	require.NoError(t, err)
	assert.Equal(t, []field{
		{key: "a", value: true},
		{key: `e"q`, value: "x,y:z"},
		{key: "f", value: `[1,"g"]`},
		{key: "n", value: nil},
	}, fields)

	fields, err = parseObject([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, fields)

	for _, line := range []string{`[1,2]`, `"text"`, `42`, `{"a":1} {"b":2}`, `{"a":1} x`, `{"a":}`, `{"a":1`} {
		_, err := parseObject([]byte(line))
		assert.Error(t, err, line)
	}
	_, err = parseObject([]byte(`[1]`))
	assert.ErrorIs(t, err, errNotObject)
}

func TestParseNumber(t *testing.T) {
	assert.Equal(t, int64(-42), parseNumber("-42"))
	assert.Equal(t, uint64(9223372036854775808), parseNumber("9223372036854775808"))
	assert.Equal(t, 1.5e10, parseNumber("1.5e10"))
	assert.Equal(t, "1e999", parseNumber("1e999"))
}

func TestNextHonoursContext(t *testing.T) {
	fs := afero.NewMemMapFs()
	cr, err := Open(fs, csvFile(t, fs, "/a.csv", "a\n1\n"), opts(10))
	require.NoError(t, err)
	defer cr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = cr.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
