package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bamsammich/ferry/internal/config"
	"github.com/bamsammich/ferry/internal/jobstore"
	"github.com/bamsammich/ferry/internal/ui"
)

var version = "dev"

// Exit codes.
const (
	exitOK = 0
	// exitPartial: the job finished but some entries failed, or it was aborted.
	exitPartial = 1
	// exitFailure: the command itself failed before a job could run.
	exitFailure = 2
	// exitInterrupted: the job stopped early and is left resumable.
	exitInterrupted = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts := &options{stdout: stdout, stderr: stderr}
	root := newRootCmd(opts)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if opts.closeLog != nil {
		opts.closeLog()
	}
	if err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	return exitOK
}

// options holds flags shared by every subcommand plus the resources they
// set up in PersistentPreRunE.
type options struct {
	verbose    bool
	quiet      bool
	noProgress bool
	tui        bool
	noDB       bool
	dbPath     string
	logFile    string

	stdout io.Writer
	stderr io.Writer

	cfg      config.Config
	closeLog func()
}

func newRootCmd(opts *options) *cobra.Command {
	var showVersion bool

	rootCmd := &cobra.Command{
		Use:           "ferry",
		Short:         "Resumable copy, move and delete of whole file trees",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				fmt.Fprintf(opts.stdout, "ferry %s\n", version)
				return nil
			}
			return cmd.Help()
		},
	}
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	pf.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress all output except errors")
	pf.BoolVar(&opts.noProgress, "no-progress", false, "disable progress display")
	pf.BoolVar(&opts.tui, "tui", false, "full-screen progress dialog with suspend/skip/abort keys")
	pf.BoolVar(&opts.noDB, "no-db", false, "run without the job database (not resumable)")
	pf.StringVar(&opts.dbPath, "db", "", "job database path (default: $XDG_STATE_HOME/ferry/jobs.db)")
	pf.StringVar(&opts.logFile, "log", "", "write structured JSON log to FILE")

	rootCmd.AddCommand(
		newTransferCmd(opts, transferCopy),
		newTransferCmd(opts, transferMove),
		newRemoveCmd(opts),
		newJobsCmd(opts),
		newResumeCmd(opts),
		newDiscardCmd(opts),
		newDocsCmd(),
	)
	return rootCmd
}

// setup configures logging and loads the optional config file.
func (o *options) setup(cmd *cobra.Command) error {
	logLevel := slog.LevelWarn
	if o.verbose {
		logLevel = slog.LevelDebug
	} else if !o.quiet {
		logLevel = slog.LevelInfo
	}
	textHandler := slog.NewTextHandler(o.stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	var logHandler slog.Handler = textHandler
	if o.logFile != "" {
		lf, err := os.Create(o.logFile)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		o.closeLog = func() { lf.Close() }
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
		logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
	}
	slog.SetDefault(slog.New(logHandler))

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("failed to load config", "path", config.Path(), "error", err)
	}
	o.cfg = cfg
	ui.ApplyTheme(cfg.Theme)

	if !cmd.Flags().Changed("no-db") && cfg.Defaults.NoDB != nil {
		o.noDB = *cfg.Defaults.NoDB
	}
	if !cmd.Flags().Changed("db") && cfg.Store.Path != nil {
		o.dbPath = *cfg.Store.Path
	}
	return nil
}

// openStore opens the job database. With --no-db it returns nil.
func (o *options) openStore() (*jobstore.Store, error) {
	if o.noDB {
		return nil, nil
	}
	path := o.dbPath
	if path == "" {
		var err error
		if path, err = jobstore.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return jobstore.Open(path)
}

// requireStore is openStore for commands that make no sense without one.
func (o *options) requireStore() (*jobstore.Store, error) {
	if o.noDB {
		return nil, errors.New("this command needs the job database; drop --no-db")
	}
	return o.openStore()
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
