// Command notifykit provides example usage and a debugging surface for
// the notifykit library.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	root := &cobra.Command{
		Use:   "notifykit",
		Short: "Watch paths for filesystem changes and print the events",
		Long: `notifykit is a Go library providing a cross-platform filesystem
notification engine. This command serves as an example and debugging tool.`,
		SilenceUsage: true,
	}
	// Accept --ignore-permission-errors and --ignore_permission_errors
	// alike, since flags here mirror the construct-option names of
	// spec §6, which use underscores.
	root.SetGlobalNormalizationFunc(func(fs *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	root.AddCommand(newWatchCmd(), newFileCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "notifykit:", err)
		os.Exit(1)
	}
}
