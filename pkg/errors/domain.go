package errors

import (
	"fmt"
	"strings"
)

// NoInput reports that root produced zero candidate files.
func NoInput(root string) *Error {
	return Newf(ErrorTypeNoInput, "no candidate input files under %s", root).
		WithDetail("root", root)
}

// UnreadableFile reports that one input could not be decoded or parsed.
func UnreadableFile(path string, cause error) *Error {
	e := Wrap(cause, ErrorTypeUnreadableFile, "cannot read "+path)
	if e == nil {
		e = New(ErrorTypeUnreadableFile, "cannot read "+path)
	}
	return e.WithDetail("path", path)
}

// SchemaMismatch reports a batch whose columns differ from the writer's schema.
func SchemaMismatch(want, got string) *Error {
	return Newf(ErrorTypeSchemaMismatch, "batch columns [%s] do not match canonical schema [%s]", got, want).
		WithDetail("want", want).
		WithDetail("got", got)
}

// ColumnChange describes one column that differs between the canonical schema
// and an incoming batch.
type ColumnChange struct {
	Name    string
	OldType string // empty when the column is new
	NewType string // empty when the column is missing
}

func (c ColumnChange) String() string {
	switch {
	case c.OldType == "":
		return "+" + c.Name
	case c.NewType == "":
		return "-" + c.Name
	default:
		return fmt.Sprintf("%s(%s->%s)", c.Name, c.OldType, c.NewType)
	}
}

// SchemaDrift reports a column-set change rejected by the drift policy.
func SchemaDrift(source string, changes []ColumnChange) *Error {
	parts := make([]string, len(changes))
	for i, c := range changes {
		parts[i] = c.String()
	}
	return Newf(ErrorTypeSchemaDrift, "%s drifts from canonical schema: %s", source, strings.Join(parts, " ")).
		WithDetail("path", source).
		WithDetail("changes", changes)
}

// EmptyResult reports a run in which no row was written.
func EmptyResult(filesSeen int) *Error {
	return Newf(ErrorTypeEmptyResult, "all %d input files were empty or unreadable; nothing written", filesSeen).
		WithDetail("files_seen", filesSeen)
}

// DestinationWrite reports an output path that cannot be created or written.
func DestinationWrite(path string, cause error) *Error {
	e := Wrap(cause, ErrorTypeDestinationWrite, "cannot write "+path)
	if e == nil {
		e = New(ErrorTypeDestinationWrite, "cannot write "+path)
	}
	return e.WithDetail("path", path)
}

// Reason renders err as the one-line reason shown next to a skipped or
// failed path: the innermost cause without the type prefixes.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for {
		e, ok := err.(*Error)
		if !ok {
			break
		}
		if e.Cause == nil {
			return e.Message
		}
		err = e.Cause
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}
