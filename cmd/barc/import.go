package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/barc/catalog/internal/aggregate"
	"github.com/barc/catalog/internal/importer"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Import every <db>.oldNNN legacy sibling into the open catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := openHandle(ctx, cmd)
			if err != nil {
				return err
			}
			defer h.Close()

			dbPath, _, err := dbFlags(cmd)
			if err != nil {
				return err
			}

			im := importer.New(logger)
			agg := aggregate.New(logger)
			if err := im.ImportLegacy(ctx, h, agg, dbPath); err != nil {
				return fmt.Errorf("import legacy siblings of %s: %w", dbPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "legacy import complete for %s\n", dbPath)
			return nil
		},
	}
}
