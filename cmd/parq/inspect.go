package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	json "github.com/goccy/go-json"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/internal/pipeline"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/columnar"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/models"
)

// fileInfo is the inspect report of one Parquet file.
type fileInfo struct {
	Path      string                  `json:"path"`
	Rows      int64                   `json:"rows"`
	Schema    *models.CanonicalSchema `json:"schema"`
	RowGroups []rowGroupInfo          `json:"row_groups"`
}

type rowGroupInfo struct {
	Rows    int64         `json:"rows"`
	Columns []columnChunk `json:"columns"`
}

type columnChunk struct {
	Name string `json:"name"`
	columnar.ChunkInfo
}

func newInspectCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect FILE...",
		Short: "Show schema, row groups and codecs of Parquet files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := afero.NewOsFs()
			var infos []fileInfo
			for _, path := range args {
				info, err := inspectFile(fs, path)
				if err != nil {
					return &exitError{code: pipeline.ExitFatal, err: err}
				}
				infos = append(infos, info)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), infos)
			}
			return writeInspectTable(cmd.OutOrStdout(), infos)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func inspectFile(fs afero.Fs, path string) (info fileInfo, err error) {
	r, err := columnar.OpenReader(fs, path)
	if err != nil {
		return info, err
	}
	defer func() { err = multierr.Append(err, r.Close()) }()

	info = fileInfo{
		Path:   path,
		Rows:   r.NumRows(),
		Schema: r.Schema(),
	}
	for rg := 0; rg < r.NumRowGroups(); rg++ {
		group := rowGroupInfo{Rows: r.RowGroupRows(rg)}
		for col, f := range info.Schema.Fields {
			chunk, err := r.ColumnChunk(rg, col)
			if err != nil {
				return info, err
			}
			group.Columns = append(group.Columns, columnChunk{Name: f.Name, ChunkInfo: chunk})
		}
		info.RowGroups = append(info.RowGroups, group)
	}
	return info, nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func writeInspectTable(w io.Writer, infos []fileInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, info := range infos {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "file\t%s\n", info.Path)
		fmt.Fprintf(tw, "rows\t%d\n", info.Rows)
		fmt.Fprintf(tw, "row groups\t%d\n", len(info.RowGroups))
		for _, f := range info.Schema.Fields {
			fmt.Fprintf(tw, "column\t%s\t%s\n", f.Name, f.Type)
		}
		for n, g := range info.RowGroups {
			fmt.Fprintf(tw, "row group %d\t%d rows\n", n, g.Rows)
			for _, c := range g.Columns {
				fmt.Fprintf(tw, "  %s\t%s\tdictionary=%t\t%d bytes\n", c.Name, c.Codec, c.Dictionary, c.CompressedSize)
			}
		}
	}
	return tw.Flush()
}
