package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/litescript/ls-ephem/internal/epoch"
	"github.com/litescript/ls-ephem/internal/oem"
	"github.com/litescript/ls-ephem/internal/report"
	"github.com/litescript/ls-ephem/internal/version"
)

func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <file>...",
		Short: "Print a segment summary for each file",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSummary,
	}
}

func runSummary(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}

	msgs, err := oem.LoadAll(cmd.Context(), args, a.loadOptions()...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, msg := range msgs {
		if i > 0 {
			fmt.Fprintln(out)
		}
		report.WriteSummaryTable(out, msg)
	}
	return nil
}

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state <file> --at <epoch>",
		Short: "Print the interpolated state at an epoch",
		Args:  cobra.ExactArgs(1),
		RunE:  runState,
	}
	cmd.Flags().String("at", "", "query epoch (CCSDS calendar or day-of-year form)")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func runState(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}

	at, _ := cmd.Flags().GetString("at")
	e, err := epoch.Parse(at)
	if err != nil {
		return fmt.Errorf("--at: %w", err)
	}

	cat := a.newCatalog()
	if _, err := cat.Load(args[0]); err != nil {
		return err
	}
	s, err := cat.StateAt(args[0], e)
	if err != nil {
		return err
	}
	report.WriteState(cmd.OutOrStdout(), e, s)
	return nil
}

func newTableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table <file>",
		Short: "Sample the interpolated state at a fixed step",
		Args:  cobra.ExactArgs(1),
		RunE:  runTable,
	}
	cmd.Flags().Float64("step", 60, "step between rows in seconds")
	_ = viper.BindPFlag("step_seconds", cmd.Flags().Lookup("step"))
	return cmd
}

func runTable(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}

	msg, err := oem.LoadFile(args[0], a.loadOptions()...)
	if err != nil {
		return err
	}
	rows, err := report.StateTable(msg, a.cfg.StepSeconds)
	if err != nil {
		return err
	}
	report.WriteStateTable(cmd.OutOrStdout(), rows)
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ls-ephem %s\n", version.Version)
		},
	}
}
