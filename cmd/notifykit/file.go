package main

import (
	"fmt"
	"time"

	"github.com/roma-glushko/notifykit"
	"github.com/spf13/cobra"
)

// newFileCmd watches a single file. Most editors save by renaming a
// temporary file over the original, so unlike watch this command
// re-adds the path on every Rename/Delete it sees for it, the same
// trick the teacher's own single-file example used.
func newFileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file [path]",
		Short: "Watch a single file for changes, re-adding it across editor saves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			engine := notifykit.New(notifykit.WithDebounce(100 * time.Millisecond))
			if err := engine.Watch([]string{path}, false, false); err != nil {
				return fmt.Errorf("watching %q: %w", path, err)
			}
			defer engine.Stop()

			printTime("ready; press ^C to exit")
			for {
				batch, ok, eos := engine.NextBatch(24 * time.Hour)
				if eos {
					return nil
				}
				if !ok {
					continue
				}
				for _, e := range batch {
					printTime("%s", e)
					_, _, isRename := e.AsRename()
					isDelete := e.Kind == notifykit.KindDelete
					if !isRename && !isDelete {
						continue
					}
					// The registry already believes path is watched, so a
					// plain re-Watch would be a no-op; drop it first so the
					// backend actually re-installs the watch.
					_ = engine.Unwatch([]string{path})
					if err := engine.Watch([]string{path}, false, false); err != nil {
						printTime("re-add after %s failed: %s", e.Kind, err)
					}
				}
			}
		},
	}
	return cmd
}
