package main

import (
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/litescript/ls-ephem/internal/catalog"
	"github.com/litescript/ls-ephem/internal/report"
	"github.com/litescript/ls-ephem/internal/ui"
)

func newBrowseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse <file>",
		Short: "Browse segments and interpolated states in a terminal UI",
		Long: "browse opens an interactive view of the message. When stdout is not\n" +
			"a terminal it prints the summary table instead.",
		Args: cobra.ExactArgs(1),
		RunE: runBrowse,
	}
	cmd.Flags().Bool("watch", false, "reload the file when it changes on disk")
	return cmd
}

func runBrowse(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}

	path := args[0]
	cat := a.newCatalog()
	msg, err := cat.Load(path)
	if err != nil {
		return err
	}

	if !isTerminal(cmd) {
		report.WriteSummaryTable(cmd.OutOrStdout(), msg)
		return nil
	}

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		w, err := catalog.NewWatcher(cat, []string{path}, a.cfg.WatchDebounce)
		if err != nil {
			return err
		}
		w.Start()
		defer w.Stop()
		// The browser polls the catalog itself; drain so the watcher never blocks.
		go func() {
			for range w.Changes {
			}
		}()
	}

	// Log lines would corrupt the alternate screen.
	a.log.SetOutput(io.Discard)

	p := tea.NewProgram(ui.New(cat, path, a.cfg.StepSeconds), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running browser: %w", err)
	}
	return nil
}

func isTerminal(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
