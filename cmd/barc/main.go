// Command barc is the catalog engine's CLI: open/create a catalog file,
// report stats, run garbage collection, import legacy siblings, look up
// the newest entry for a name, or serve the forwarding RPC over a Unix
// socket. Grounded on the teacher's cmd/bd/main.go root-command/
// persistent-flags shape, scaled down from its ~100-subcommand
// issue-tracker surface to the handful of operations this engine exposes.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var logger = slog.Default()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "barc",
		Short: "Backup index catalog engine",
	}
	root.PersistentFlags().String("db", "catalog.db", "path to the catalog file")
	root.PersistentFlags().String("dialect", "sqlite", "storage dialect: sqlite or mysql")
	root.PersistentFlags().String("config", "", "path to a TOML tunables config (defaults if absent)")

	root.AddCommand(
		newOpenCmd(),
		newStatsCmd(),
		newGCCmd(),
		newImportCmd(),
		newServeCmd(),
		newFindNewestCmd(),
	)
	return root
}
