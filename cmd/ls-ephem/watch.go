package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/litescript/ls-ephem/internal/catalog"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <file>...",
		Short: "Reload files as they change and print catalog events",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runWatch,
	}
	cmd.Flags().Duration("debounce", catalog.DefaultDebounce, "quiet period before a changed file is reloaded")
	_ = viper.BindPFlag("watch_debounce", cmd.Flags().Lookup("debounce"))
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	cat := a.newCatalog()
	for _, path := range args {
		// A file that fails to load is still watched; a later fix reloads it.
		_, _ = cat.Load(path)
	}
	for _, ev := range cat.RecentEvents(len(args)) {
		printEvent(out, ev)
	}

	w, err := catalog.NewWatcher(cat, args, a.cfg.WatchDebounce)
	if err != nil {
		return err
	}
	w.Start()
	defer w.Stop()

	a.log.Info("watching %s", strings.Join(cat.Sources(), ", "))
	return watchLoop(cmd.Context(), out, w.Changes)
}

// watchLoop prints events until ctx is cancelled or changes is closed.
func watchLoop(ctx context.Context, out io.Writer, changes <-chan catalog.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-changes:
			if !ok {
				return nil
			}
			printEvent(out, ev)
		}
	}
}

func printEvent(out io.Writer, ev catalog.Event) {
	line := fmt.Sprintf("%s %-9s %s", ev.Timestamp.Format("15:04:05"), ev.Type, ev.Source)
	switch {
	case ev.Error != "":
		line += ": " + ev.Error
	case ev.Segments > 0:
		line += fmt.Sprintf(" (%d segments)", ev.Segments)
	}
	fmt.Fprintln(out, line)
}
