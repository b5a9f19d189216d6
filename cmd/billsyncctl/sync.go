package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/centerionware/smartbillsplitter-sub001/internal/model"
	"github.com/centerionware/smartbillsplitter-sub001/internal/sealed"
	"github.com/centerionware/smartbillsplitter-sub001/internal/sharesync"
)

// newSyncCmd wires the device-to-device handoff: `sync push` uploads an
// encrypted snapshot behind a 5-minute code, `sync pull` redeems it on the
// other device.
func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "One-shot device-to-device data transfer through the relay",
	}
	cmd.AddCommand(newSyncPushCmd())
	cmd.AddCommand(newSyncPullCmd())
	return cmd
}

func newSyncPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Upload the local dataset behind a short-lived sync code",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			st, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			snap, err := st.ExportAll(ctx)
			if err != nil {
				return err
			}
			raw, err := json.Marshal(snap)
			if err != nil {
				return err
			}

			key, err := sealed.GenerateShareKey()
			if err != nil {
				return err
			}
			ciphertext, err := sealed.Seal(raw, key)
			if err != nil {
				return err
			}

			code, err := sharesync.NewClient(relayFlag).CreateSyncCode(ctx, ciphertext)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "code: %s\nkey:  %s\n", code, key)
			fmt.Fprintln(cmd.OutOrStdout(), "run `billsyncctl sync pull` with both on the other device within 5 minutes; the code works once")
			return nil
		},
	}
}

func newSyncPullCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Redeem a sync code and replace or merge the local dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			code, _ := cmd.Flags().GetString("code")
			key, _ := cmd.Flags().GetString("key")
			doMerge, _ := cmd.Flags().GetBool("merge")
			ctx := context.Background()

			ciphertext, found, err := sharesync.NewClient(relayFlag).RedeemSyncCode(ctx, code)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("sync code not found, already used, or expired")
			}
			raw, err := sealed.OpenSealed(ciphertext, key)
			if err != nil {
				return fmt.Errorf("decrypt snapshot: %w", err)
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
				counts, err := st.MergeAll(ctx, &snap)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "snapshot merged: %d added, %d updated, %d skipped\n",
					counts.Added, counts.Updated, counts.Skipped)
				return nil
			}
			if err := st.ImportAll(ctx, &snap); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "snapshot imported")
			return nil
		},
	}
	cmd.Flags().StringP("code", "c", "", "6-digit sync code (required)")
	cmd.Flags().StringP("key", "k", "", "Snapshot encryption key (required)")
	cmd.Flags().Bool("merge", false, "Fold the snapshot into the local data (last-write-wins) instead of replacing it")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing key pair in snapshot JSON form",
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := sealed.GenerateSigningKeyPair()
			if err != nil {
				return err
			}
			raw, err := sealed.ExportKey(kp)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return nil
		},
	}
}
