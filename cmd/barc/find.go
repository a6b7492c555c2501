package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFindNewestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find-newest <name>",
		Short: "Look up the EntryNewest projection row for an entry name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := openHandle(ctx, cmd)
			if err != nil {
				return err
			}
			defer h.Close()

			n, err := h.FindNewestByName(ctx, args[0])
			if err != nil {
				return fmt.Errorf("find newest %q: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "name:       %s\n", n.Name)
			fmt.Fprintf(out, "entry id:   %d\n", n.EntryID)
			fmt.Fprintf(out, "storage id: %d\n", n.StorageID)
			fmt.Fprintf(out, "uuid id:    %d\n", n.UUIDID)
			fmt.Fprintf(out, "entity id:  %d\n", n.EntityID)
			fmt.Fprintf(out, "type:       %s\n", n.Type)
			fmt.Fprintf(out, "size:       %d\n", n.Size)
			return nil
		},
	}
}
