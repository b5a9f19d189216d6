package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/centerionware/smartbillsplitter-sub001/internal/model"
	"github.com/centerionware/smartbillsplitter-sub001/internal/store/sqlite"
)

var (
	dbFlag    string
	relayFlag string
	rootCmd   = &cobra.Command{
		Use:   "billsyncctl",
		Short: "CLI for the local bill store and the sync relay",
	}
)

// openStore opens the local store, translating a blocked open into guidance.
func openStore(opts ...sqlite.Option) (*sqlite.Store, error) {
	st, err := sqlite.New(dbFlag, opts...)
	if err != nil {
		if errors.Is(err, model.ErrOpenBlocked) {
			return nil, fmt.Errorf("another instance has the store open; close it and retry: %w", err)
		}
		return nil, err
	}
	return st, nil
}

func main() {
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "billsync.db", "Path to the local store")
	rootCmd.PersistentFlags().StringVarP(&relayFlag, "relay", "r", "http://localhost:8080", "Relay base URL")

	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newKeygenCmd())
	rootCmd.AddCommand(newResetCmd())
	rootCmd.AddCommand(newWatchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
