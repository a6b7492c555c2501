package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/barc/catalog/internal/types"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Report entity and storage counts from the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := openHandle(ctx, cmd)
			if err != nil {
				return err
			}
			defer h.Close()

			entities, err := h.ListEntities(ctx, types.EntityFilter{IncludeDeleted: true})
			if err != nil {
				return fmt.Errorf("list entities: %w", err)
			}
			defer entities.Close()
			var entityCount, lockedCount int
			var e types.Entity
			for {
				ok, err := entities.Next(&e)
				if err != nil {
					return fmt.Errorf("scan entity: %w", err)
				}
				if !ok {
					break
				}
				entityCount++
				if e.LockedCount > 0 {
					lockedCount++
				}
			}

			storages, err := h.ListStorages(ctx, types.StorageFilter{IncludeDeleted: true})
			if err != nil {
				return fmt.Errorf("list storages: %w", err)
			}
			defer storages.Close()
			var storageCount, deletedCount int
			var size uint64
			for {
				s, ok, err := storages.Next()
				if err != nil {
					return fmt.Errorf("scan storage: %w", err)
				}
				if !ok {
					break
				}
				storageCount++
				if s.Deleted {
					deletedCount++
				}
				size += s.Size
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "entities:          %d (locked: %d)\n", entityCount, lockedCount)
			fmt.Fprintf(out, "storages:          %d (pending delete: %d)\n", storageCount, deletedCount)
			fmt.Fprintf(out, "total storage size: %d bytes\n", size)
			return nil
		},
	}
}
