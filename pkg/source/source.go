// Package source enumerates the candidate input files of a conversion job
// and decides each file's content format.
package source

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/compression"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/errors"
)

// Format is the content format of a file after decompression.
type Format string

const (
	// FormatUnknown is an unresolved format.
	FormatUnknown Format = ""
	// FormatDelimited is delimiter-separated text such as CSV or TSV.
	FormatDelimited Format = "delimited"
	// FormatLineRecords is one JSON object per line.
	FormatLineRecords Format = "line-records"
)

// Selector chooses how formats are resolved.
type Selector string

const (
	SelectorAuto        Selector = "auto"
	SelectorDelimited   Selector = "delimited"
	SelectorLineRecords Selector = "line-records"
)

// ParseSelector accepts auto, delimited/csv and line-records/jsonl.
func ParseSelector(s string) (Selector, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return SelectorAuto, nil
	case "delimited", "csv", "tsv":
		return SelectorDelimited, nil
	case "line-records", "jsonl", "ndjson", "json":
		return SelectorLineRecords, nil
	default:
		return SelectorAuto, fmt.Errorf("unknown input format %q", s)
	}
}

// Record-per-line suffixes are checked before delimited ones.
var (
	lineRecordSuffixes = []string{".jsonl", ".ndjson", ".json"}
	delimitedSuffixes  = []string{".csv", ".tsv", ".txt", ".psv"}
)

// Options configures an Enumerator.
type Options struct {
	Root      string
	Selector  Selector
	Recursive bool
	// Include holds glob patterns; a matching file is a candidate whatever its suffix.
	Include []string
	// Exclude holds glob patterns that remove files from the candidates.
	Exclude []string
}

// File is one candidate input.
type File struct {
	Path        string
	Rel         string
	Format      Format
	Compression compression.Algorithm
	Size        int64
}

// Enumerator lists candidate files under a root. It holds no iteration state,
// so every call to Files walks the tree again.
type Enumerator struct {
	fs   afero.Fs
	opts Options
}

// NewEnumerator creates an enumerator over fs.
func NewEnumerator(fs afero.Fs, opts Options) *Enumerator {
	if opts.Selector == "" {
		opts.Selector = SelectorAuto
	}
	return &Enumerator{fs: fs, opts: opts}
}

var errStop = stderrors.New("stop walk")

// Files returns the candidates in lexical path order. The sequence yields a
// non-nil error at most once and then ends.
func (e *Enumerator) Files(ctx context.Context) iter.Seq2[File, error] {
	return func(yield func(File, error) bool) {
		res := &resolver{fs: e.fs, selector: e.opts.Selector}
		root := filepath.Clean(e.opts.Root)

		info, err := e.fs.Stat(root)
		if err != nil {
			yield(File{}, errors.Wrap(err, errors.ErrorTypeNoInput, "cannot scan "+root))
			return
		}
		if !info.IsDir() {
			f := e.file(res, root, filepath.Base(root), info)
			yield(f, nil)
			return
		}

		walkErr := afero.Walk(e.fs, root, func(path string, info os.FileInfo, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				return err
			}
			if path == root {
				return nil
			}
			if info.IsDir() {
				if !e.opts.Recursive || hidden(info.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			if !e.candidate(info.Name(), rel) {
				return nil
			}
			if !yield(e.file(res, path, rel, info), nil) {
				return errStop
			}
			return nil
		})
		if walkErr != nil && !stderrors.Is(walkErr, errStop) {
			yield(File{}, errors.Wrap(walkErr, errors.ErrorTypeNoInput, "cannot scan "+root))
		}
	}
}

// Collect materializes Files. Zero candidates is a NoInput error.
func (e *Enumerator) Collect(ctx context.Context) ([]File, error) {
	var files []File
	for f, err := range e.Files(ctx) {
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return nil, errors.NoInput(e.opts.Root)
	}
	return files, nil
}

func (e *Enumerator) candidate(name, rel string) bool {
	if hidden(name) {
		return false
	}
	if matchAny(e.opts.Exclude, name, rel) {
		return false
	}
	if matchAny(e.opts.Include, name, rel) {
		return true
	}
	stripped := compression.StripExtension(name)
	if suffixFormat(stripped) != FormatUnknown {
		return true
	}
	// a bare compressed file such as RC_2019-01.bz2
	return stripped != name && filepath.Ext(stripped) == ""
}

func (e *Enumerator) file(res *resolver, path, rel string, info os.FileInfo) File {
	return File{
		Path:        path,
		Rel:         rel,
		Format:      res.resolve(path),
		Compression: compression.DetectAlgorithm(path),
		Size:        info.Size(),
	}
}

// FromPaths builds the candidate list from explicit paths and glob patterns.
// Every matched regular file is a candidate regardless of suffix, except
// hidden files matched by a pattern. A literal path that does not exist is an
// error; a pattern matching nothing is not.
func FromPaths(fs afero.Fs, paths []string, selector Selector) ([]File, error) {
	if selector == "" {
		selector = SelectorAuto
	}
	res := &resolver{fs: fs, selector: selector}
	seen := make(map[string]struct{})
	var files []File

	for _, p := range paths {
		var matches []string
		glob := strings.ContainsAny(p, "*?[")
		if glob {
			m, err := afero.Glob(fs, p)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeConfig, "bad input pattern "+p)
			}
			sort.Strings(m)
			matches = m
		} else {
			matches = []string{p}
		}

		for _, m := range matches {
			m = filepath.Clean(m)
			if _, dup := seen[m]; dup {
				continue
			}
			if glob && hidden(filepath.Base(m)) {
				continue
			}
			info, err := fs.Stat(m)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeNoInput, "input path "+m)
			}
			if info.IsDir() {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, File{
				Path:        m,
				Rel:         filepath.Base(m),
				Format:      res.resolve(m),
				Compression: compression.DetectAlgorithm(m),
				Size:        info.Size(),
			})
		}
	}

	if len(files) == 0 {
		return nil, errors.NoInput(strings.Join(paths, ","))
	}
	return files, nil
}

// resolver applies the format rules for one enumeration pass: an explicit
// selector wins, then the file suffix, then the format sniffed from the first
// file without a suffix hint.
type resolver struct {
	fs       afero.Fs
	selector Selector
	sniffed  Format
}

func (r *resolver) resolve(path string) Format {
	switch r.selector {
	case SelectorDelimited:
		return FormatDelimited
	case SelectorLineRecords:
		return FormatLineRecords
	}
	if f := suffixFormat(compression.StripExtension(filepath.Base(path))); f != FormatUnknown {
		return f
	}
	if r.sniffed != FormatUnknown {
		return r.sniffed
	}
	f, err := DetectFormat(r.fs, path)
	if err != nil {
		// the reader reports the real failure when it opens the file
		return FormatDelimited
	}
	r.sniffed = f
	return f
}

// DetectFormat reads the first non-blank line of the decompressed content:
// a line starting with '{' or '[' means line-records, anything else
// delimited. An empty file is delimited.
func DetectFormat(fs afero.Fs, path string) (Format, error) {
	rc, _, err := compression.Open(fs, path)
	if err != nil {
		return FormatUnknown, err
	}
	defer rc.Close()

	br := bufio.NewReaderSize(rc, 64*1024)
	first := true
	for {
		line, err := br.ReadSlice('\n')
		if err != nil && !stderrors.Is(err, bufio.ErrBufferFull) && !stderrors.Is(err, io.EOF) {
			return FormatUnknown, err
		}
		if first {
			line = bytes.TrimPrefix(line, []byte("\xef\xbb\xbf"))
			first = false
		}
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 {
			if trimmed[0] == '{' || trimmed[0] == '[' {
				return FormatLineRecords, nil
			}
			return FormatDelimited, nil
		}
		if err != nil && stderrors.Is(err, io.EOF) {
			return FormatDelimited, nil
		}
	}
}

func suffixFormat(name string) Format {
	lower := strings.ToLower(name)
	for _, s := range lineRecordSuffixes {
		if strings.HasSuffix(lower, s) {
			return FormatLineRecords
		}
	}
	for _, s := range delimitedSuffixes {
		if strings.HasSuffix(lower, s) {
			return FormatDelimited
		}
	}
	return FormatUnknown
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func matchAny(patterns []string, name, rel string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
		if ok, _ := filepath.Match(p, rel); ok {
			return true
		}
	}
	return false
}
