package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/columnar"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "parq v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(out, "Codecs: %v\n", columnar.CodecNames())
		},
	}
}
