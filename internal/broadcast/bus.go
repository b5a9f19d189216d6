// Package broadcast is the cross-instance change-notification bus. Events
// are payload-free tags: receivers re-read the store rather than trusting
// in-memory state. Every envelope is signed with the sender's communication
// key pair and verified on receipt; anything unsigned or invalid is logged
// and dropped, never delivered.
package broadcast

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/centerionware/smartbillsplitter-sub001/internal/model"
	"github.com/centerionware/smartbillsplitter-sub001/internal/sealed"
)

// Event tags a collection change or a lifecycle request.
type Event string

const (
	EventBillsChanged          Event = "bills-changed"
	EventImportedBillsChanged  Event = "imported-bills-changed"
	EventRecurringBillsChanged Event = "recurring-bills-changed"
	EventGroupsChanged         Event = "groups-changed"
	EventCategoriesChanged     Event = "categories-changed"
	EventSettingsChanged       Event = "settings-changed"
	EventThemeChanged          Event = "theme-changed"
	EventSubscriptionChanged   Event = "subscription-changed"

	// EventCloseRequested asks sibling instances to release their store
	// connection so a blocked open or hard reset can proceed.
	EventCloseRequested Event = "close-requested"
	// EventMigrationComplete tells siblings the store finished upgrading and
	// it is safe to reopen.
	EventMigrationComplete Event = "migration-complete"
)

// signedEnvelope is what actually crosses the bus. The signature covers the
// canonical JSON of envelopeBody.
type signedEnvelope struct {
	envelopeBody
	Signature string `json:"signature"`
}

type envelopeBody struct {
	From   string `json:"from"`
	Event  Event  `json:"event"`
	SentAt int64  `json:"sentAt"`
}

// Handler receives verified inbound events.
type Handler func(Event)

// Broker fans envelopes out between connected instances. One Broker per
// process; each app instance (tab analogue) holds a Conn.
type Broker struct {
	mu    sync.RWMutex
	conns map[string]*Conn
	log   zerolog.Logger
}

func NewBroker(log zerolog.Logger) *Broker {
	return &Broker{conns: make(map[string]*Conn), log: log}
}

// Connect registers an instance under its ID with its communication key
// pair. The public half is what peers verify inbound envelopes against.
func (b *Broker) Connect(instanceID string, keys model.KeyPair) (*Conn, error) {
	if instanceID == "" {
		return nil, fmt.Errorf("instance id required: %w", model.ErrValidation)
	}
	c := &Conn{broker: b, id: instanceID, keys: keys}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.conns[instanceID]; exists {
		return nil, fmt.Errorf("instance %q already connected: %w", instanceID, model.ErrValidation)
	}
	b.conns[instanceID] = c
	return c, nil
}

// post delivers env to every connection except the sender. Each receiver
// verifies the signature against the sender's registered public key.
func (b *Broker) post(senderID string, env signedEnvelope) {
	b.mu.RLock()
	sender, ok := b.conns[senderID]
	targets := make([]*Conn, 0, len(b.conns))
	for id, c := range b.conns {
		if id != senderID {
			targets = append(targets, c)
		}
	}
	b.mu.RUnlock()
	if !ok {
		return
	}

	if !sealed.Verify(env.envelopeBody, env.Signature, sender.keys.PublicKey) {
		b.log.Warn().
			Str("security", "signature-verification-failed").
			Str("from", env.From).
			Str("event", string(env.Event)).
			Msg("discarding broadcast with invalid signature")
		return
	}
	for _, c := range targets {
		c.deliver(env.Event)
	}
}

func (b *Broker) disconnect(instanceID string) {
	b.mu.Lock()
	delete(b.conns, instanceID)
	b.mu.Unlock()
}

// Conn is one instance's attachment to the broker.
type Conn struct {
	broker  *Broker
	id      string
	keys    model.KeyPair
	handler atomic.Pointer[Handler]
}

// SetHandler installs (or replaces) the inbound handler. Delivery always
// goes through this indirection cell, so the latest handler body runs even
// when an earlier registration closed over stale data. Re-registering is
// cheap; there is no need to reconnect.
func (c *Conn) SetHandler(h Handler) {
	if h == nil {
		c.handler.Store(nil)
		return
	}
	c.handler.Store(&h)
}

// Post signs and broadcasts an event tag to every other instance. The
// sender never hears its own events.
func (c *Conn) Post(e Event) error {
	body := envelopeBody{From: c.id, Event: e, SentAt: time.Now().UnixMilli()}
	sig, err := sealed.Sign(body, c.keys.PrivateKey)
	if err != nil {
		return fmt.Errorf("sign broadcast: %w", err)
	}
	c.broker.post(c.id, signedEnvelope{envelopeBody: body, Signature: sig})
	return nil
}

func (c *Conn) deliver(e Event) {
	if h := c.handler.Load(); h != nil {
		(*h)(e)
	}
}

// Close detaches the connection from the broker.
func (c *Conn) Close() {
	c.broker.disconnect(c.id)
}

// RequestClose broadcasts EventCloseRequested on behalf of an instance whose
// store open was blocked. The requester cannot read the store, so it has no
// persisted communication pair; a throwaway pair is registered for the one
// envelope.
func RequestClose(b *Broker) error {
	kp, err := sealed.GenerateSigningKeyPair()
	if err != nil {
		return err
	}
	c, err := b.Connect("close-requester-"+uuid.NewString(), kp)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Post(EventCloseRequested)
}
