package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/litescript/ls-ephem/internal/oem"
	"github.com/litescript/ls-ephem/internal/report"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export message metadata and samples as JSON or YAML",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
	cmd.Flags().String("format", "json", "output format (json, yaml)")
	cmd.Flags().StringP("out", "o", "-", "output path (use - for stdout)")
	cmd.Flags().Bool("no-series", false, "omit the flattened sample series")
	_ = viper.BindPFlag("export_format", cmd.Flags().Lookup("format"))
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}

	msg, err := oem.LoadFile(args[0], a.loadOptions()...)
	if err != nil {
		return err
	}

	noSeries, _ := cmd.Flags().GetBool("no-series")
	exp := report.Export(msg, !noSeries)

	path, _ := cmd.Flags().GetString("out")
	if path == "-" {
		return exp.Write(cmd.OutOrStdout(), a.cfg.ExportFormat)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := exp.Write(f, a.cfg.ExportFormat); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	a.log.Info("exported %s to %s", msg.Source(), path)
	return nil
}
