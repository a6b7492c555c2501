package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/barc/catalog/internal/aggregate"
	"github.com/barc/catalog/internal/purge"
)

func newGCCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Collect one (or, with --all, every) deleted storage's rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := openHandle(ctx, cmd)
			if err != nil {
				return err
			}
			defer h.Close()

			cfg, err := loadEngineConfig(cmd)
			if err != nil {
				return err
			}
			agg := aggregate.New(logger)
			engine := purge.New(h, h.Store(), agg, cfg.Tunables.PurgeBatchLimit)

			out := cmd.OutOrStdout()
			collected := 0
			for {
				storageID, entityID, found, err := engine.NextDeletedStorage(ctx)
				if err != nil {
					return fmt.Errorf("find next deleted storage: %w", err)
				}
				if !found {
					break
				}
				in := h.NewInterruption(2 * time.Second)
				if err := engine.PurgeStorage(ctx, in, storageID); err != nil {
					return fmt.Errorf("purge storage %d: %w", storageID, err)
				}
				if _, err := engine.PruneEntity(ctx, entityID); err != nil {
					return fmt.Errorf("prune entity %d: %w", entityID, err)
				}
				collected++
				fmt.Fprintf(out, "collected storage %d (entity %d)\n", storageID, entityID)
				if !all {
					break
				}
			}
			fmt.Fprintf(out, "collected %d storage(s)\n", collected)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "keep collecting until no deleted storages remain")
	return cmd
}
