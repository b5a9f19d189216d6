package sharesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/centerionware/smartbillsplitter-sub001/internal/broadcast"
	"github.com/centerionware/smartbillsplitter-sub001/internal/model"
	"github.com/centerionware/smartbillsplitter-sub001/internal/store"
)

const defaultOwnerPollInterval = 5 * time.Minute

// OwnerPoller watches the owner's live share channels for server-side
// expiry (the relay 404s once the 30-day TTL lapses) and flips the local
// shareStatus so the UI can offer a reshare.
type OwnerPoller struct {
	client   *Client
	bills    store.Bills
	keys     store.Keys
	settings store.Settings
	bus      Broadcaster
	log      zerolog.Logger
	interval time.Duration
}

// OwnerPollerOption configures an OwnerPoller.
type OwnerPollerOption func(*OwnerPoller)

// WithOwnerPollInterval overrides the tick cadence.
func WithOwnerPollInterval(d time.Duration) OwnerPollerOption {
	return func(p *OwnerPoller) { p.interval = d }
}

func NewOwnerPoller(client *Client, bills store.Bills, keys store.Keys, settings store.Settings, bus Broadcaster, log zerolog.Logger, opts ...OwnerPollerOption) *OwnerPoller {
	p := &OwnerPoller{
		client:   client,
		bills:    bills,
		keys:     keys,
		settings: settings,
		bus:      bus,
		log:      log,
		interval: defaultOwnerPollInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until ctx is canceled.
func (p *OwnerPoller) Run(ctx context.Context) error {
	p.log.Info().Dur("interval", p.interval).Msg("owner poller starting")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("owner poller stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := p.PollOnce(ctx); err != nil {
				p.log.Warn().Err(err).Msg("owner poll failed")
			}
		}
	}
}

// PollOnce probes every live owned share once.
func (p *OwnerPoller) PollOnce(ctx context.Context) error {
	bills, err := p.bills.List(ctx)
	if err != nil {
		return err
	}

	changed := false
	for _, b := range bills {
		if b.ShareInfo == nil || b.ShareInfo.ShareStatus != model.ShareLive {
			continue
		}
		res, err := p.client.FetchShare(ctx, b.ShareInfo.ShareID, b.ShareInfo.LastSyncedAt)
		if err != nil {
			p.log.Warn().Err(err).Str("billId", b.ID).Msg("share probe failed")
			continue
		}
		if res.Found {
			continue
		}
		b.ShareInfo.ShareStatus = model.ShareExpired
		if err := p.bills.Put(ctx, b); err != nil {
			p.log.Error().Err(err).Str("billId", b.ID).Msg("persist expired share failed")
			continue
		}
		p.log.Info().Str("billId", b.ID).Str("shareId", b.ShareInfo.ShareID).Msg("share expired on relay")
		changed = true
	}
	if changed {
		if err := p.bus.Post(broadcast.EventBillsChanged); err != nil {
			p.log.Warn().Err(err).Msg("bills broadcast failed")
		}
	}
	return nil
}

// Reactivate reshares an expired bill: fresh updateToken, re-push of the
// current content under the same shareId, status back to live.
func (p *OwnerPoller) Reactivate(ctx context.Context, billID string) error {
	bill, err := p.bills.Get(ctx, billID)
	if err != nil {
		return err
	}
	if bill.ShareInfo == nil {
		return fmt.Errorf("bill %s was never shared: %w", billID, model.ErrValidation)
	}
	kp, err := p.keys.BillKey(ctx, billID)
	if err != nil {
		return fmt.Errorf("load signing key for %s: %w", billID, err)
	}
	settings, err := p.settings.Get(ctx)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return err
	}

	payload := BuildPayload(*bill, settings, kp.PublicKey)
	ciphertext, err := SealPayload(payload, kp.PrivateKey, bill.ShareInfo.EncryptionKey)
	if err != nil {
		return err
	}
	ts, err := p.client.UpdateShare(ctx, bill.ShareInfo.ShareID, ciphertext)
	if err != nil {
		return fmt.Errorf("reshare %s: %w", billID, err)
	}

	bill.ShareInfo.UpdateToken = uuid.New().String()
	bill.ShareInfo.ShareStatus = model.ShareLive
	bill.ShareInfo.LastSyncedAt = ts
	if err := p.bills.Put(ctx, *bill); err != nil {
		return err
	}
	if err := p.bus.Post(broadcast.EventBillsChanged); err != nil {
		p.log.Warn().Err(err).Msg("bills broadcast failed")
	}
	return nil
}

// BuildPayload assembles the plaintext share payload for a bill. ShareInfo
// is stripped from the copy that travels: the encryption key never rides
// inside its own envelope.
func BuildPayload(bill model.Bill, settings *model.Settings, publicKey string) model.SharedBillPayload {
	clean := bill
	clean.ShareInfo = nil

	payload := model.SharedBillPayload{
		Bill:      clean,
		PublicKey: publicKey,
	}
	if settings != nil {
		payload.CreatorName = settings.MyDisplayName
		pd := settings.PaymentDetails
		payload.PaymentDetails = &pd
	}
	return payload
}
