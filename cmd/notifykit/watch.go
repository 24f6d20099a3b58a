package main

import (
	"fmt"
	"time"

	"github.com/roma-glushko/notifykit"
	"github.com/roma-glushko/notifykit/filter"
	"github.com/spf13/cobra"
)

// printTime prints a line prefixed with the time (shorter than log.Print;
// we don't need the date and ms is useful here).
func printTime(format string, args ...interface{}) {
	fmt.Printf(time.Now().Format("15:04:05.0000")+" "+format+"\n", args...)
}

func newWatchCmd() *cobra.Command {
	var (
		recursive    bool
		ignorePerms  bool
		debounce     time.Duration
		useCommon    bool
		forcePolling bool
		debug        bool
	)

	cmd := &cobra.Command{
		Use:   "watch [paths...]",
		Short: "Watch the paths for changes and print the events",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, paths []string) error {
			opts := []notifykit.Option{
				notifykit.WithDebounce(debounce),
				notifykit.WithForcePolling(forcePolling),
				notifykit.WithDebug(debug),
			}
			if useCommon {
				opts = append(opts, notifykit.WithFilter(filter.Common()))
			}

			engine := notifykit.New(opts...)
			if err := engine.Watch(paths, recursive, ignorePerms); err != nil {
				return fmt.Errorf("watching paths: %w", err)
			}
			defer engine.Stop()

			printTime("ready; press ^C to exit")
			return runEventLoop(engine)
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "watch directories recursively")
	cmd.Flags().BoolVar(&ignorePerms, "ignore-permission-errors", false, "skip subtrees the backend can't read instead of failing")
	cmd.Flags().DurationVarP(&debounce, "debounce", "d", 200*time.Millisecond, "debounce window for coalescing rapid changes")
	cmd.Flags().BoolVar(&useCommon, "common-filter", false, "suppress common noise (VCS metadata, caches, editor swap files)")
	cmd.Flags().BoolVar(&forcePolling, "force-polling", false, "use the polling backend instead of native OS notifications")
	cmd.Flags().BoolVar(&debug, "debug", false, "log raw backend events and queue diagnostics to stderr")

	return cmd
}

func runEventLoop(engine *notifykit.Engine) error {
	i := 0
	for {
		batch, ok, eos := engine.NextBatch(24 * time.Hour)
		if eos {
			return nil
		}
		if !ok {
			continue
		}
		for _, e := range batch {
			i++
			printTime("%3d %s", i, e)
		}
	}
}
