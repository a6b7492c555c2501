package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/barc/catalog/internal/catalog"
)

func newOpenCmd() *cobra.Command {
	var create bool
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open (or create) the catalog file and report its path",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dbPath, dialect, err := dbFlags(cmd)
			if err != nil {
				return err
			}
			store, err := newStoreForDialect(dialect)
			if err != nil {
				return err
			}

			var h *catalog.Handle
			if create {
				h, err = catalog.Create(ctx, store, dbPath, catalog.Options{Logger: logger})
			} else {
				h, err = catalog.Open(ctx, store, dbPath, catalog.Options{Logger: logger})
			}
			if err != nil {
				return fmt.Errorf("open %s: %w", dbPath, err)
			}
			defer h.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "opened %s (dialect=%s)\n", dbPath, dialect)
			return nil
		},
	}
	cmd.Flags().BoolVar(&create, "create", false, "discard any existing catalog and create a fresh one")
	return cmd
}
