package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/centerionware/smartbillsplitter-sub001/internal/model"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the full local dataset as a JSON snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")

			st, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			snap, err := st.ExportAll(context.Background())
			if err != nil {
				return err
			}
			raw, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				fmt.Fprintln(cmd.OutOrStdout(), string(raw))
				return nil
			}
			// Snapshots contain private keys; keep them owner-readable.
			return os.WriteFile(out, raw, 0o600)
		},
	}
	cmd.Flags().StringP("out", "o", "-", "Output file (default stdout)")
	return cmd
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace or merge the local dataset with a JSON snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, _ := cmd.Flags().GetString("in")
			doMerge, _ := cmd.Flags().GetBool("merge")
			if in == "" {
				return fmt.Errorf("--in is required")
			}
			raw, err := os.ReadFile(in)
			if err != nil {
				return err
			}
			var snap model.Snapshot
			if err := json.Unmarshal(raw, &snap); err != nil {
				return fmt.Errorf("parse snapshot: %w", err)
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			if doMerge {
				counts, err := st.MergeAll(context.Background(), &snap)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "snapshot merged: %d added, %d updated, %d skipped\n",
					counts.Added, counts.Updated, counts.Skipped)
				return nil
			}
			if err := st.ImportAll(context.Background(), &snap); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "snapshot imported")
			return nil
		},
	}
	cmd.Flags().StringP("in", "i", "", "Snapshot file to import (required)")
	cmd.Flags().Bool("merge", false, "Fold the snapshot into the local data (last-write-wins) instead of replacing it")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}
