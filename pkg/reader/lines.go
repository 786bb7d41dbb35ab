package reader

import (
	"bufio"
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"

	"github.com/goccy/go-json"
)

var (
	errNotObject = stderrors.New("line is not a JSON object")
	errTrailing  = stderrors.New("trailing data after JSON object")
)

type lineParser struct {
	cr   *ChunkReader
	sc   *bufio.Scanner
	line int64
}

func newLineParser(cr *ChunkReader, br *bufio.Reader) *lineParser {
	sc := bufio.NewScanner(br)
	initial := 64 * 1024
	if cr.opts.MaxLineBytes < initial {
		initial = cr.opts.MaxLineBytes
	}
	sc.Buffer(make([]byte, 0, initial), cr.opts.MaxLineBytes)
	return &lineParser{cr: cr, sc: sc}
}

type field struct {
	key   string
	value any
}

func (p *lineParser) next(b *batchBuilder, limit int) error {
	for b.rows < limit {
		if !p.sc.Scan() {
			if err := p.sc.Err(); err != nil {
				return err
			}
			return io.EOF
		}
		p.line++
		line := p.sc.Bytes()
		if p.line == 1 {
			line = bytes.TrimPrefix(line, []byte(bom))
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		fields, err := parseObject(line)
		if err != nil {
			if aerr := p.cr.malformedRow(p.line, err); aerr != nil {
				return aerr
			}
			continue
		}
		for _, f := range fields {
			b.set(f.key, f.value)
		}
		b.endRow()
	}
	return nil
}

// parseObject decodes one JSON object in a single pass and returns its
// members in document order. A repeated key keeps its first position and its
// last value. Numbers keep integer precision; nested objects and arrays are
// kept as their JSON text.
func parseObject(line []byte) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errNotObject
	}

	var fields []field
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected member name, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		v, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		if i, dup := index[key]; dup {
			fields[i].value = v
			continue
		}
		index[key] = len(fields)
		fields = append(fields, field{key: key, value: v})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !stderrors.Is(err, io.EOF) {
		return nil, errTrailing
	}
	return fields, nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	switch raw[0] {
	case 'n':
		return nil, nil
	case 't':
		return true, nil
	case 'f':
		return false, nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	case '{', '[':
		return string(raw), nil
	default:
		return parseNumber(json.Number(raw)), nil
	}
}

// parseNumber keeps integers exact: int64 first, then uint64 for large
// positive values, else float64. A literal float64 cannot hold is kept as text.
func parseNumber(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return u
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
