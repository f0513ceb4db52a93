package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yamitzky/xlsread/internal/config"
	"github.com/yamitzky/xlsread/internal/logger"
)

var version = "dev"

// usageError marks errors that exit with status 2.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...interface{}) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// globalFlags are shared by every command.
type globalFlags struct {
	configPath       string
	envFile          string
	debug            bool
	onDemand         bool
	mmap             bool
	ignoreCorruption bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, err)
		var ue *usageError
		if errors.As(err, &ue) {
			return 2
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	gf := &globalFlags{}
	cf := &convertFlags{}

	root := &cobra.Command{
		Use:   "xls2csv [flags] xlsfile [outfile]",
		Short: "Convert xls and xlsx workbooks to CSV",
		Long: `xls2csv converts the sheets of a workbook to CSV.

xlsfile may be '-' to read from STDIN. When xlsfile is a directory, every
workbook in it is converted to a .csv file in outfile (or in the same
directory when outfile is omitted).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.RangeArgs(1, 2)(cmd, args); err != nil {
				return &usageError{err: err}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd, gf)
			if err != nil {
				return err
			}
			defer env.logger.Sync()
			opts, err := cf.options(cmd, env.cfg)
			if err != nil {
				return err
			}
			out := ""
			if len(args) > 1 {
				out = args[1]
			}
			return convertPath(cmd, env, args[0], out, opts)
		},
	}
	root.SetVersionTemplate("{{.Version}}\n")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&gf.configPath, "config", "", "YAML configuration file")
	pf.StringVar(&gf.envFile, "env-file", ".env", "dotenv file with XLS2CSV_* overrides")
	pf.BoolVar(&gf.debug, "debug", false, "log debug output to stderr")
	pf.BoolVar(&gf.onDemand, "on-demand", false, "load sheets only when converted and release them afterwards")
	pf.BoolVar(&gf.mmap, "mmap", false, "memory-map input files")
	pf.BoolVar(&gf.ignoreCorruption, "ignore-workbook-corruption", false, "ignore workbook corruption")
	cf.register(root)

	root.AddCommand(newDumpCmd(gf), newCountCmd(gf), newWatchCmd(gf, cf))
	return root
}

// environment carries what setup resolved for a command.
type environment struct {
	cfg    *config.Config
	logger *zap.Logger
}

// setup resolves configuration from defaults, the config file, the dotenv
// file and the environment, then explicitly set flags, in that order.
func setup(cmd *cobra.Command, gf *globalFlags) (*environment, error) {
	if err := config.LoadEnvFile(gf.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(gf.configPath)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, usagef("%v", err)
	}
	flags := cmd.Flags()
	if flags.Changed("debug") {
		cfg.Debug = gf.debug
	}
	if flags.Changed("on-demand") {
		cfg.Reader.OnDemand = gf.onDemand
	}
	if flags.Changed("mmap") {
		cfg.Reader.Mmap = gf.mmap
	}
	if flags.Changed("ignore-workbook-corruption") {
		cfg.Reader.IgnoreCorruption = gf.ignoreCorruption
	}
	log, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return &environment{cfg: cfg, logger: log}, nil
}
