package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/centerionware/smartbillsplitter-sub001/internal/model"
	"github.com/centerionware/smartbillsplitter-sub001/internal/store/sqlite"
)

// newResetCmd is the hard-reset escape hatch for a store that can no longer
// be opened: it deletes the database files outright.
func newResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the local store (all bills, settings, and keys)",
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				return fmt.Errorf("reset deletes all local data and keys; re-run with --yes to confirm")
			}
			if err := sqlite.Destroy(dbFlag); err != nil {
				if errors.Is(err, model.ErrOpenBlocked) {
					return fmt.Errorf("another instance has the store open; close it and retry: %w", err)
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "local store deleted")
			return nil
		},
	}
	cmd.Flags().Bool("yes", false, "Confirm deletion")
	return cmd
}
