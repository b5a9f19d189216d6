package sharesync

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/centerionware/smartbillsplitter-sub001/internal/broadcast"
	"github.com/centerionware/smartbillsplitter-sub001/internal/model"
	"github.com/centerionware/smartbillsplitter-sub001/internal/store"
)

// Broadcaster posts change events to sibling instances; satisfied by
// *broadcast.Conn.
type Broadcaster interface {
	Post(e broadcast.Event) error
}

const defaultPollInterval = 30 * time.Second

// Poller keeps imported bills current: every tick it batch-checks the
// relay for the active ones and applies whatever came back newer.
type Poller struct {
	client   *Client
	imported store.ImportedBills
	bus      Broadcaster
	log      zerolog.Logger
	interval time.Duration
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollInterval overrides the tick cadence.
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) { p.interval = d }
}

func NewPoller(client *Client, imported store.ImportedBills, bus Broadcaster, log zerolog.Logger, opts ...PollerOption) *Poller {
	p := &Poller{
		client:   client,
		imported: imported,
		bus:      bus,
		log:      log,
		interval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until ctx is canceled. Errors are logged and retried on the
// next tick; a flaky relay never takes the poller down.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info().Dur("interval", p.interval).Msg("import poller starting")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("import poller stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := p.PollOnce(ctx); err != nil {
				p.log.Warn().Err(err).Msg("import poll failed")
			}
		}
	}
}

// PollOnce runs a single batch-check cycle.
func (p *Poller) PollOnce(ctx context.Context) error {
	bills, err := p.imported.List(ctx)
	if err != nil {
		return err
	}

	byShare := make(map[string][]model.ImportedBill)
	entries := make([]CheckEntry, 0, len(bills))
	for _, b := range bills {
		if b.Status != model.BillActive || b.ShareID == "" {
			continue
		}
		if _, seen := byShare[b.ShareID]; !seen {
			entries = append(entries, CheckEntry{ShareID: b.ShareID, LastUpdatedAt: b.LastUpdatedAt})
		}
		byShare[b.ShareID] = append(byShare[b.ShareID], b)
	}
	if len(entries) == 0 {
		return nil
	}

	results, err := p.client.BatchCheck(ctx, entries)
	if err != nil {
		return err
	}

	changed := false
	for _, res := range results {
		for _, bill := range byShare[res.ShareID] {
			if p.apply(ctx, bill, res) {
				changed = true
			}
		}
	}
	if changed {
		if err := p.bus.Post(broadcast.EventImportedBillsChanged); err != nil {
			p.log.Warn().Err(err).Msg("imported-bills broadcast failed")
		}
	}
	return nil
}

// apply decrypts, verifies against the pinned creator key and persists one
// updated imported bill. Reports whether the bill changed.
func (p *Poller) apply(ctx context.Context, bill model.ImportedBill, res CheckResult) bool {
	data, err := OpenPayload(res.EncryptedData, bill.ShareEncryptionKey, bill.SharedData.CreatorPublicKey)
	if err != nil {
		if errors.Is(err, ErrVerificationFailed) {
			p.log.Warn().
				Str("security", "signature-verification-failed").
				Str("importedBillId", bill.ID).
				Str("shareId", bill.ShareID).
				Msg("discarding unverifiable share update, keeping last-verified copy")
		} else {
			p.log.Warn().Err(err).Str("importedBillId", bill.ID).Msg("share envelope unreadable")
		}
		return false
	}

	// Replace the creator's content wholesale; recompute the importer's
	// paid flag from the new authoritative data. PaidItems stays local.
	bill.SharedData = data
	bill.CreatorName = data.Payload.CreatorName
	bill.LiveStatus = model.ShareLive
	bill.LocalStatus.MyPortionPaid = false
	for _, part := range data.Payload.Bill.Participants {
		if part.ID == bill.MyParticipantID {
			bill.LocalStatus.MyPortionPaid = part.Paid
			break
		}
	}
	bill.LastUpdatedAt = res.LastUpdatedAt

	if err := p.imported.Put(ctx, bill); err != nil {
		p.log.Error().Err(err).Str("importedBillId", bill.ID).Msg("persist polled update failed")
		return false
	}
	return true
}
