package main

import (
	"github.com/spf13/cobra"

	"github.com/yamitzky/xlsread/xlrd"
)

func newDumpCmd(gf *globalFlags) *cobra.Command {
	var unnumbered bool
	cmd := &cobra.Command{
		Use:   "dump xlsfile",
		Short: "Print every BIFF record of a workbook in hex and characters",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd, gf)
			if err != nil {
				return err
			}
			defer env.logger.Sync()
			return xlrd.Dump(args[0], cmd.OutOrStdout(), unnumbered)
		},
	}
	cmd.Flags().BoolVarP(&unnumbered, "unnumbered", "u", false, "omit offsets (for meaningful diffs)")
	return cmd
}

func newCountCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "count xlsfile",
		Short: "Print how often each BIFF record occurs in a workbook",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd, gf)
			if err != nil {
				return err
			}
			defer env.logger.Sync()
			return xlrd.CountRecords(args[0], cmd.OutOrStdout())
		},
	}
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}
