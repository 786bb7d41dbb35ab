package errors_test

import (
	"fmt"
	"io"

	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/errors"
)

// Example demonstrates basic error creation with details.
func Example() {
	err := errors.New(errors.ErrorTypeDestinationWrite, "output directory is read-only").
		WithDetail("path", "/data/out.parquet")

	fmt.Println(err.Error())

	// Output:
	// destination_write: output directory is read-only
}

// ExampleWrap shows how a per-file failure is wrapped and classified.
func ExampleWrap() {
	err := errors.UnreadableFile("part-0001.csv.gz", io.ErrUnexpectedEOF).
		WithDetail("line", 42)

	if errors.IsType(err, errors.ErrorTypeUnreadableFile) {
		fmt.Println("skip file")
	}
	fmt.Println(errors.IsFatal(err))
	fmt.Println(errors.Reason(err))

	// Output:
	// skip file
	// false
	// unexpected EOF
}

// ExampleSchemaDrift shows the message produced when the drift policy rejects a file.
func ExampleSchemaDrift() {
	err := errors.SchemaDrift("b.csv", []errors.ColumnChange{
		{Name: "d", NewType: "string"},
		{Name: "c", OldType: "int64"},
	})
	fmt.Println(err.Message)

	// Output:
	// b.csv drifts from canonical schema: +d -c
}
