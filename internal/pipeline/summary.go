package pipeline

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	json "github.com/goccy/go-json"

	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/columnar"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/models"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/publish"
)

// Outcome is the overall result of a run.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomePartial   Outcome = "partial"
	OutcomeEmpty     Outcome = "empty"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// Exit codes of the CLI.
const (
	ExitSuccess = 0
	ExitFatal   = 1
	ExitEmpty   = 2
	ExitPartial = 3
)

// ExitCode maps an outcome to a process exit status.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeSuccess:
		return ExitSuccess
	case OutcomePartial:
		return ExitPartial
	case OutcomeEmpty:
		return ExitEmpty
	default:
		return ExitFatal
	}
}

// FileOutcome is what happened to one input.
type FileOutcome string

const (
	FileConverted FileOutcome = "converted"
	// FileEmpty means the input held no rows. It is reported as skipped.
	FileEmpty FileOutcome = "empty"
	// FileSkipped means the input could not be read.
	FileSkipped FileOutcome = "skipped"
	// FileExists means a mirrored output already existed and was kept.
	FileExists FileOutcome = "exists"
	// FileNotRead means the run stopped before the file was reached.
	FileNotRead FileOutcome = "not_read"
)

// FileResult is the per-file line of a Summary.
type FileResult struct {
	Path          string        `json:"path"`
	Output        string        `json:"output,omitempty"`
	Format        string        `json:"format"`
	Compression   string        `json:"compression"`
	Outcome       FileOutcome   `json:"outcome"`
	Reason        string        `json:"reason,omitempty"`
	Rows          int64         `json:"rows"`
	MalformedRows int64         `json:"malformed_rows"`
	Batches       int           `json:"batches"`
	Nulled        int64         `json:"nulled_by_coercion"`
	CastNulled    int64         `json:"nulled_by_reconcile"`
	Discarded     int64         `json:"discarded_rows"`
	BytesRead     int64         `json:"bytes_read"`
	Elapsed       time.Duration `json:"elapsed_ns"`
}

// Summary holds the run counters.
type Summary struct {
	JobID    string  `json:"job_id"`
	Outcome  Outcome `json:"outcome"`
	Error    string  `json:"error,omitempty"`
	Topology string  `json:"topology"`

	FilesSeen      int `json:"files_seen"`
	FilesConverted int `json:"files_converted"`
	// FilesSkipped counts unreadable and empty inputs; FilesEmpty is the
	// empty part of it.
	FilesSkipped  int `json:"files_skipped"`
	FilesEmpty    int `json:"files_empty"`
	FilesExisting int `json:"files_existing"`

	RowsRead          int64 `json:"rows_read"`
	RowsWritten       int64 `json:"rows_written"`
	BatchesWritten    int   `json:"batches_written"`
	MalformedRows     int64 `json:"malformed_rows"`
	NulledByCoercion  int64 `json:"nulled_by_coercion"`
	NulledByReconcile int64 `json:"nulled_by_reconcile"`
	RowsDiscarded     int64 `json:"rows_discarded"`

	Elapsed          time.Duration `json:"elapsed_ns"`
	EffectiveWorkers int           `json:"effective_workers"`
	PeakRSS          uint64        `json:"peak_rss_bytes"`

	Schema    *models.CanonicalSchema `json:"schema,omitempty"`
	Outputs   []columnar.Stats        `json:"outputs,omitempty"`
	Published []publish.Result        `json:"published,omitempty"`
	Files     []FileResult            `json:"files"`
}

// ExitCode returns the process exit status for the run.
func (s *Summary) ExitCode() int { return s.Outcome.ExitCode() }

// Skipped returns the inputs that were unreadable or empty.
func (s *Summary) Skipped() []FileResult {
	var out []FileResult
	for _, f := range s.Files {
		if f.Outcome == FileSkipped || f.Outcome == FileEmpty {
			out = append(out, f)
		}
	}
	return out
}

func (s *Summary) add(f FileResult) {
	s.Files = append(s.Files, f)
	s.RowsRead += f.Rows
	s.MalformedRows += f.MalformedRows
	s.NulledByCoercion += f.Nulled
	s.NulledByReconcile += f.CastNulled
	s.RowsDiscarded += f.Discarded
	s.BatchesWritten += f.Batches
	switch f.Outcome {
	case FileConverted:
		s.FilesConverted++
	case FileEmpty:
		s.FilesEmpty++
		s.FilesSkipped++
	case FileSkipped:
		s.FilesSkipped++
	case FileExists:
		s.FilesExisting++
	}
}

// WriteJSON writes the summary as indented JSON.
func (s *Summary) WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// WriteTable writes a human readable summary.
func (s *Summary) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"outcome", string(s.Outcome)},
		{"files seen", fmt.Sprint(s.FilesSeen)},
		{"files converted", fmt.Sprint(s.FilesConverted)},
		{"files skipped", fmt.Sprintf("%d (%d empty)", s.FilesSkipped, s.FilesEmpty)},
		{"outputs kept", fmt.Sprint(s.FilesExisting)},
		{"rows written", fmt.Sprint(s.RowsWritten)},
		{"malformed rows", fmt.Sprint(s.MalformedRows)},
		{"rows discarded", fmt.Sprint(s.RowsDiscarded)},
		{"values nulled", fmt.Sprint(s.NulledByCoercion + s.NulledByReconcile)},
		{"workers", fmt.Sprint(s.EffectiveWorkers)},
		{"peak rss", fmt.Sprintf("%.1f MiB", float64(s.PeakRSS)/(1<<20))},
		{"elapsed", s.Elapsed.Round(time.Millisecond).String()},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r[0], r[1])
	}
	for _, o := range s.Outputs {
		fmt.Fprintf(tw, "output\t%s (%d rows, %d row groups, %s)\n", o.Path, o.Rows, o.RowGroups, o.Codec)
	}
	for _, p := range s.Published {
		fmt.Fprintf(tw, "published\t%s\n", p.URI)
	}
	for _, f := range s.Files {
		if f.Outcome == FileSkipped || f.Outcome == FileEmpty || f.Outcome == FileExists {
			fmt.Fprintf(tw, "%s\t%s: %s\n", f.Outcome, f.Path, f.Reason)
		}
	}
	if s.Error != "" {
		fmt.Fprintf(tw, "error\t%s\n", s.Error)
	}
	return tw.Flush()
}
