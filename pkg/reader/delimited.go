package reader

import (
	"bufio"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
)

const bom = "\ufeff"

type delimitedParser struct {
	cr      *ChunkReader
	r       *csv.Reader
	names   []string
	started bool
}

func newDelimitedParser(cr *ChunkReader, br *bufio.Reader) *delimitedParser {
	r := csv.NewReader(br)
	r.Comma = cr.opts.Delimiter
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	return &delimitedParser{cr: cr, r: r}
}

func (p *delimitedParser) next(b *batchBuilder, limit int) error {
	if !p.started {
		p.started = true
		if p.cr.opts.HasHeader {
			header, err := p.r.Read()
			if err != nil {
				if err == io.EOF {
					return io.EOF
				}
				return fmt.Errorf("header: %w", err)
			}
			p.names = headerNames(header)
		}
	}

	for b.rows < limit {
		rec, err := p.r.Read()
		if err == io.EOF {
			return io.EOF
		}
		if err != nil {
			var pe *csv.ParseError
			if !stderrors.As(err, &pe) {
				return err
			}
			if aerr := p.cr.malformedRow(int64(pe.Line), err); aerr != nil {
				return aerr
			}
			continue
		}

		if p.names == nil {
			if len(rec) > 0 {
				rec[0] = strings.TrimPrefix(rec[0], bom)
			}
			p.names = positionalNames(len(rec))
		}
		if len(rec) > len(p.names) {
			line, _ := p.r.FieldPos(0)
			cause := fmt.Errorf("%d fields, expected at most %d", len(rec), len(p.names))
			if aerr := p.cr.malformedRow(int64(line), cause); aerr != nil {
				return aerr
			}
			continue
		}

		for i, name := range p.names {
			if i < len(rec) && rec[i] != "" {
				b.set(name, rec[i])
			} else {
				b.set(name, nil)
			}
		}
		b.endRow()
	}
	return nil
}

// headerNames cleans a header row: the BOM is stripped, blank names become
// column_<i> and repeats get a _1, _2 ... suffix.
func headerNames(header []string) []string {
	names := make([]string, len(header))
	used := make(map[string]struct{}, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, bom)
		}
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i)
		}
		name := h
		for n := 1; ; n++ {
			if _, dup := used[name]; !dup {
				break
			}
			name = fmt.Sprintf("%s_%d", h, n)
		}
		used[name] = struct{}{}
		names[i] = name
	}
	return names
}

func positionalNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("column_%d", i)
	}
	return names
}
