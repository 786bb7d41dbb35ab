package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/suite"

	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/testutil"
)

type cliSuite struct {
	testutil.IntegrationTestSuite
}

func TestCLI(t *testing.T) {
	testutil.IntegrationTest(t)
	suite.Run(t, new(cliSuite))
}

func (s *cliSuite) run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := execute(s.Context(), append(args, "--log-level", "error"), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (s *cliSuite) TestConvertSingle() {
	s.CreateTempFile("in/a.csv", "id,name\n1,alice\n2,bob\n")
	s.CreateTempFile("in/b.jsonl.gz", `{"id": 3, "name": "carol"}`+"\n")
	out := filepath.Join(s.TempDir(), "out", "all.parquet")

	code, stdout, stderr := s.run("convert", "--input", filepath.Join(s.TempDir(), "in"), "--output", out, "--summary-json")
	s.Require().Equal(0, code, stderr)

	var summary map[string]any
	s.Require().NoError(json.Unmarshal([]byte(stdout), &summary))
	s.Equal("success", summary["outcome"])
	s.EqualValues(3, summary["rows_written"])

	pf := testutil.ReadParquet(s.T(), s.Fs(), out)
	s.Equal("id:int64, name:string", pf.Schema.String())
	s.Equal([]any{"alice", "bob", "carol"}, pf.Column("name"))
}

func (s *cliSuite) TestConvertExplicitPaths() {
	a := s.CreateTempFile("a.tsv", "x\ty\n1\t2\n")
	b := s.CreateTempFile("b.tsv", "x\ty\n3\t4\n")
	out := filepath.Join(s.TempDir(), "out.parquet")

	code, _, stderr := s.run("convert", "--delimiter", "tab", "--output", out, b, a)
	s.Require().Equal(0, code, stderr)

	pf := testutil.ReadParquet(s.T(), s.Fs(), out)
	s.Equal([]any{int64(3), int64(1)}, pf.Column("x"))
}

func (s *cliSuite) TestPartialExitCode() {
	s.CreateTempFile("in/a.csv", "id\n1\n")
	s.Require().NoError(os.WriteFile(filepath.Join(s.TempDir(), "in", "b.csv.gz"), []byte("broken"), 0o644))
	out := filepath.Join(s.TempDir(), "out.parquet")

	code, stdout, _ := s.run("convert", "-i", filepath.Join(s.TempDir(), "in"), "-o", out)
	s.Equal(3, code)
	s.Contains(stdout, "partial")
	s.Contains(stdout, "b.csv.gz")
}

func (s *cliSuite) TestEmptyExitCode() {
	s.CreateTempFile("in/a.csv", "")
	out := filepath.Join(s.TempDir(), "out.parquet")

	code, _, stderr := s.run("convert", "-i", filepath.Join(s.TempDir(), "in"), "-o", out)
	s.Equal(2, code)
	s.Contains(stderr, "empty_result")
	s.NoFileExists(out)
}

func (s *cliSuite) TestFatalExitCodes() {
	in := filepath.Join(s.TempDir(), "in")
	s.Require().NoError(os.MkdirAll(in, 0o755))

	code, _, stderr := s.run("convert", "-i", in, "-o", filepath.Join(s.TempDir(), "out.parquet"))
	s.Equal(1, code)
	s.Contains(stderr, "no_input")

	code, _, stderr = s.run("convert", "-i", in)
	s.Equal(1, code)
	s.Contains(stderr, "output.path")

	code, _, _ = s.run("convert", "--no-such-flag")
	s.Equal(1, code)
}

func (s *cliSuite) TestConfigFileAndEnvironment() {
	s.CreateTempFile("in/a.csv", "id\n1\n2\n")
	out := filepath.Join(s.TempDir(), "out.parquet")
	s.T().Setenv("PARQ_TEST_IN", filepath.Join(s.TempDir(), "in"))
	s.T().Setenv("PARQ_OUTPUT_COMPRESSIONCODEC", "gzip")
	cfgPath := s.CreateTempFile("parq.yaml", `input:
  root: ${PARQ_TEST_IN}
output:
  path: `+out+`
  compressionCodec: snappy
run:
  workers: 1
`)

	code, _, stderr := s.run("convert", "--config", cfgPath)
	s.Require().Equal(0, code, stderr)

	code, stdout, stderr := s.run("inspect", "--json", out)
	s.Require().Equal(0, code, stderr)

	var infos []fileInfo
	s.Require().NoError(json.Unmarshal([]byte(stdout), &infos))
	s.Require().Len(infos, 1)
	s.EqualValues(2, infos[0].Rows)
	s.Require().NotEmpty(infos[0].RowGroups)
	s.Equal("GZIP", infos[0].RowGroups[0].Columns[0].Codec)
}

func (s *cliSuite) TestMirroredConvert() {
	s.CreateTempFile("in/2024/a.csv.zst", "id\n1\n")
	s.CreateTempFile("in/2025/b.ndjson", `{"id": 2}`+"\n")
	dir := filepath.Join(s.TempDir(), "mirror")

	code, _, stderr := s.run("convert", "--topology", "mirrored", "-i", filepath.Join(s.TempDir(), "in"), "--output-dir", dir)
	s.Require().Equal(0, code, stderr)
	s.FileExists(filepath.Join(dir, "2024", "a.parquet"))
	s.FileExists(filepath.Join(dir, "2025", "b.parquet"))

	// every output already exists, so nothing new is written
	code, stdout, _ := s.run("convert", "--topology", "mirrored", "-i", filepath.Join(s.TempDir(), "in"), "--output-dir", dir)
	s.Equal(2, code)
	s.Contains(stdout, "exists")
}

func (s *cliSuite) TestInspectTable() {
	s.CreateTempFile("in/a.csv", "flag,score\ntrue,1.5\nfalse,2\n")
	out := filepath.Join(s.TempDir(), "out.parquet")
	code, _, stderr := s.run("convert", "-i", filepath.Join(s.TempDir(), "in"), "-o", out, "--codec", "none")
	s.Require().Equal(0, code, stderr)

	code, stdout, _ := s.run("inspect", out)
	s.Equal(0, code)
	s.Contains(stdout, "flag")
	s.Contains(stdout, "bool")
	s.Contains(stdout, "float64")
	s.Contains(stdout, "UNCOMPRESSED")

	code, _, _ = s.run("inspect", filepath.Join(s.TempDir(), "in", "a.csv"))
	s.Equal(1, code)
}

func (s *cliSuite) TestVersion() {
	code, stdout, _ := s.run("version")
	s.Equal(0, code)
	s.Contains(stdout, "parq v"+version)
}

func TestExecuteHonoursCancelledContext(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	if err := os.MkdirAll(in, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(in, "a.csv"), []byte("id\n1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var stdout, stderr bytes.Buffer
	code := execute(ctx, []string{"convert", "-i", in, "-o", filepath.Join(dir, "out.parquet"), "--log-level", "error"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1 (stderr: %s)", code, stderr.String())
	}
}
