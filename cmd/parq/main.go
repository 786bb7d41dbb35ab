// Command parq converts directories of delimited text and JSON lines into
// Parquet.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/internal/pipeline"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/config"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/logger"
)

var version = "0.1.0"

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile  string
	logLevel    string
	logEncoding string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the command line and returns the process exit status.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return pipeline.ExitSuccess
	}

	var ee *exitError
	if stderrors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(stderr, "error:", ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(stderr, "error:", err)
	return pipeline.ExitFatal
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "parq",
		Short: "parq - streaming CSV and JSON lines to Parquet converter",
		Long: `parq converts a directory of delimited text or JSON lines files, optionally
compressed, into a single Parquet file or a mirrored tree of Parquet files.
Files are streamed in bounded batches, so memory does not grow with input size.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVarP(&g.configFile, "config", "c", "", "YAML configuration file; flags and PARQ_* variables override it")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&g.logEncoding, "log-encoding", "", "Log encoding (console, json)")

	root.AddCommand(newConvertCommand(g))
	root.AddCommand(newInspectCommand())
	root.AddCommand(newVersionCommand())
	return root
}

// baseConfig returns the defaults with the config file applied.
func (g *globalFlags) baseConfig() (*config.Config, error) {
	cfg := config.NewDefault()
	if g.configFile == "" {
		return cfg, nil
	}
	if err := config.Load(g.configFile, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from the resolved configuration and
// installs it globally.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	lc := logger.DefaultConfig()
	if cfg.Log.Level != "" {
		lc.Level = cfg.Log.Level
	}
	if cfg.Log.Encoding != "" {
		lc.Encoding = cfg.Log.Encoding
	}
	if err := logger.Init(lc); err != nil {
		return nil, err
	}
	return logger.Get(), nil
}
