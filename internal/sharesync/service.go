package sharesync

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/centerionware/smartbillsplitter-sub001/internal/broadcast"
	"github.com/centerionware/smartbillsplitter-sub001/internal/model"
	"github.com/centerionware/smartbillsplitter-sub001/internal/sealed"
	"github.com/centerionware/smartbillsplitter-sub001/internal/store"
)

// Service is the owner- and importer-facing entry point for sharing:
// creating channels, pushing updates, and importing someone else's share.
type Service struct {
	client *Client
	store  store.Store
	pusher *Pusher
	bus    Broadcaster
	log    zerolog.Logger
}

func NewService(client *Client, st store.Store, pusher *Pusher, bus Broadcaster, log zerolog.Logger) *Service {
	s := &Service{client: client, store: st, pusher: pusher, bus: bus, log: log}
	if pusher != nil {
		pusher.OnResult(s.recordLastSynced)
	}
	return s
}

// recordLastSynced persists the relay's timestamp after a successful push so
// the owner poller's conditional fetch stays current.
func (s *Service) recordLastSynced(billID string, ts int64, err error) {
	if err != nil {
		return
	}
	ctx := context.Background()
	bill, gerr := s.store.Bills().Get(ctx, billID)
	if gerr != nil || bill.ShareInfo == nil {
		return
	}
	if ts <= bill.ShareInfo.LastSyncedAt {
		return
	}
	bill.ShareInfo.LastSyncedAt = ts
	if perr := s.store.Bills().Put(ctx, *bill); perr != nil {
		s.log.Warn().Err(perr).Str("billId", billID).Msg("recording last synced timestamp failed")
	}
}

// ShareBill creates a relay channel for an owned bill: fresh signing pair,
// fresh symmetric key, first push, ShareInfo persisted on the bill. Returns
// the updated bill; shareId and encryptionKey from its ShareInfo form the
// share link.
func (s *Service) ShareBill(ctx context.Context, billID string) (*model.Bill, error) {
	bill, err := s.store.Bills().Get(ctx, billID)
	if err != nil {
		return nil, err
	}
	if bill.ShareInfo != nil {
		return nil, fmt.Errorf("bill %s is already shared: %w", billID, model.ErrValidation)
	}

	kp, err := sealed.GenerateSigningKeyPair()
	if err != nil {
		return nil, err
	}
	shareKey, err := sealed.GenerateShareKey()
	if err != nil {
		return nil, err
	}

	settings, err := s.store.Settings().Get(ctx)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	bill.ShareInfo = &model.ShareInfo{
		EncryptionKey:    shareKey,
		SigningPublicKey: kp.PublicKey,
		UpdateToken:      uuid.New().String(),
		ShareStatus:      model.ShareLive,
	}
	payload := BuildPayload(*bill, settings, kp.PublicKey)
	ciphertext, err := SealPayload(payload, kp.PrivateKey, shareKey)
	if err != nil {
		return nil, err
	}

	shareID, ts, err := s.client.CreateShare(ctx, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("create share channel: %w", err)
	}
	bill.ShareInfo.ShareID = shareID
	bill.ShareInfo.LastSyncedAt = ts

	if err := s.store.Keys().PutBillKey(ctx, billID, kp); err != nil {
		return nil, err
	}
	if err := s.store.Bills().Put(ctx, *bill); err != nil {
		return nil, err
	}
	if err := s.bus.Post(broadcast.EventBillsChanged); err != nil {
		s.log.Warn().Err(err).Msg("bills broadcast failed")
	}
	return bill, nil
}

// PushBill queues a push of the bill's current content to its channel.
// No-op for unshared bills. The local write has already happened; relay
// failure only surfaces through the pusher's notify callback.
func (s *Service) PushBill(ctx context.Context, billID string) error {
	bill, err := s.store.Bills().Get(ctx, billID)
	if err != nil {
		return err
	}
	if bill.ShareInfo == nil {
		return nil
	}
	kp, err := s.store.Keys().BillKey(ctx, billID)
	if err != nil {
		return fmt.Errorf("load signing key for %s: %w", billID, err)
	}
	settings, err := s.store.Settings().Get(ctx)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return err
	}

	payload := BuildPayload(*bill, settings, kp.PublicKey)
	ciphertext, err := SealPayload(payload, kp.PrivateKey, bill.ShareInfo.EncryptionKey)
	if err != nil {
		return err
	}
	s.pusher.Enqueue(billID, bill.ShareInfo.ShareID, ciphertext)
	return nil
}

// ImportShare fetches a channel by id and key (from a share link or QR),
// verifies it trust-on-first-use, pins the creator key, and persists the
// imported bill with the chosen participant identity.
func (s *Service) ImportShare(ctx context.Context, shareID, encryptionKey, myParticipantID string) (*model.ImportedBill, error) {
	res, err := s.client.FetchShare(ctx, shareID, 0)
	if err != nil {
		return nil, err
	}
	if !res.Found {
		return nil, fmt.Errorf("share %s: %w", shareID, model.ErrNotFound)
	}

	data, err := OpenPayload(res.Envelope.EncryptedData, encryptionKey, "")
	if err != nil {
		return nil, err
	}

	bill := model.ImportedBill{
		ID:                 data.Payload.Bill.ID,
		CreatorName:        data.Payload.CreatorName,
		ShareID:            shareID,
		ShareEncryptionKey: encryptionKey,
		MyParticipantID:    myParticipantID,
		SharedData:         data,
		Status:             model.BillActive,
		LiveStatus:         model.ShareLive,
		LastUpdatedAt:      res.Envelope.LastUpdatedAt,
	}
	for _, part := range data.Payload.Bill.Participants {
		if part.ID == myParticipantID {
			bill.LocalStatus.MyPortionPaid = part.Paid
			break
		}
	}

	if err := s.store.ImportedBills().Put(ctx, bill); err != nil {
		return nil, err
	}
	if err := s.bus.Post(broadcast.EventImportedBillsChanged); err != nil {
		s.log.Warn().Err(err).Msg("imported-bills broadcast failed")
	}
	return &bill, nil
}
