package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/centerionware/smartbillsplitter-sub001/internal/broadcast"
	"github.com/centerionware/smartbillsplitter-sub001/internal/logger"
	"github.com/centerionware/smartbillsplitter-sub001/internal/model"
	"github.com/centerionware/smartbillsplitter-sub001/internal/sharesync"
	"github.com/centerionware/smartbillsplitter-sub001/internal/store/sqlite"
)

// newWatchCmd runs the sync loops in the foreground: the import poller and
// the owner poller against the configured relay, until interrupted or asked
// to release the store by another instance.
func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the sync pollers against the relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			interval, _ := cmd.Flags().GetDuration("interval")
			ownerInterval, _ := cmd.Flags().GetDuration("owner-interval")

			log := logger.New("billsyncctl")
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			broker := broadcast.NewBroker(log)
			st, err := sqlite.New(dbFlag, sqlite.WithLogger(log))
			if err != nil {
				if errors.Is(err, model.ErrOpenBlocked) {
					// Ask the holding instance to let go, then surface the
					// blocked state so the caller can retry.
					if rerr := broadcast.RequestClose(broker); rerr != nil {
						log.Warn().Err(rerr).Msg("close request broadcast failed")
					}
					return fmt.Errorf("another instance has the store open; close it and retry: %w", err)
				}
				return err
			}
			defer func() { _ = st.Close() }()

			commKeys, err := st.Keys().EnsureCommKeyPair(ctx)
			if err != nil {
				return err
			}
			conn, err := broker.Connect("billsyncctl-watch", commKeys)
			if err != nil {
				return err
			}
			defer conn.Close()

			closeReq := make(chan struct{}, 1)
			conn.SetHandler(func(e broadcast.Event) {
				if e == broadcast.EventCloseRequested {
					select {
					case closeReq <- struct{}{}:
					default:
					}
				}
			})
			// The open above ran any pending migrations; tell siblings it is
			// safe to reopen.
			if err := conn.Post(broadcast.EventMigrationComplete); err != nil {
				log.Warn().Err(err).Msg("migration-complete broadcast failed")
			}

			client := sharesync.NewClient(relayFlag)
			poller := sharesync.NewPoller(client, st.ImportedBills(), conn, log,
				sharesync.WithPollInterval(interval))
			ownerPoller := sharesync.NewOwnerPoller(client, st.Bills(), st.Keys(), st.Settings(), conn, log,
				sharesync.WithOwnerPollInterval(ownerInterval))

			go func() { _ = poller.Run(ctx) }()
			go func() { _ = ownerPoller.Run(ctx) }()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-quit:
				log.Info().Msg("watch stopping")
			case <-closeReq:
				log.Info().Msg("close requested by another instance, releasing the store")
			}
			return nil
		},
	}
	cmd.Flags().Duration("interval", 30*time.Second, "Import poll interval")
	cmd.Flags().Duration("owner-interval", 5*time.Minute, "Owner share probe interval")
	return cmd
}
