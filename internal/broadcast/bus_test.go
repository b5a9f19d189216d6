package broadcast

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centerionware/smartbillsplitter-sub001/internal/sealed"
)

func TestPostReachesSiblingsNotSelf(t *testing.T) {
	b := NewBroker(zerolog.Nop())

	kp1, err := sealed.GenerateSigningKeyPair()
	require.NoError(t, err)
	kp2, err := sealed.GenerateSigningKeyPair()
	require.NoError(t, err)

	c1, err := b.Connect("tab-1", kp1)
	require.NoError(t, err)
	c2, err := b.Connect("tab-2", kp2)
	require.NoError(t, err)

	var got1, got2 []Event
	c1.SetHandler(func(e Event) { got1 = append(got1, e) })
	c2.SetHandler(func(e Event) { got2 = append(got2, e) })

	require.NoError(t, c1.Post(EventBillsChanged))
	assert.Empty(t, got1, "sender must not hear its own event")
	assert.Equal(t, []Event{EventBillsChanged}, got2)
}

func TestLatestHandlerWins(t *testing.T) {
	b := NewBroker(zerolog.Nop())
	kp1, _ := sealed.GenerateSigningKeyPair()
	kp2, _ := sealed.GenerateSigningKeyPair()
	c1, err := b.Connect("tab-1", kp1)
	require.NoError(t, err)
	c2, err := b.Connect("tab-2", kp2)
	require.NoError(t, err)

	var calls []string
	c2.SetHandler(func(Event) { calls = append(calls, "old") })
	// Re-registration replaces the handler body; the old closure is dead.
	c2.SetHandler(func(Event) { calls = append(calls, "new") })

	require.NoError(t, c1.Post(EventSettingsChanged))
	assert.Equal(t, []string{"new"}, calls)
}

func TestInvalidSignatureIsDropped(t *testing.T) {
	b := NewBroker(zerolog.Nop())
	kp1, _ := sealed.GenerateSigningKeyPair()
	kp2, _ := sealed.GenerateSigningKeyPair()
	_, err := b.Connect("tab-1", kp1)
	require.NoError(t, err)
	c2, err := b.Connect("tab-2", kp2)
	require.NoError(t, err)

	var got []Event
	c2.SetHandler(func(e Event) { got = append(got, e) })

	// Envelope forged without a valid signature.
	b.post("tab-1", signedEnvelope{
		envelopeBody: envelopeBody{From: "tab-1", Event: EventBillsChanged, SentAt: time.Now().UnixMilli()},
		Signature:    "bm90LWEtc2lnbmF0dXJl",
	})
	assert.Empty(t, got)

	// Envelope signed with a key that is not the registered one.
	evil, _ := sealed.GenerateSigningKeyPair()
	body := envelopeBody{From: "tab-1", Event: EventBillsChanged, SentAt: time.Now().UnixMilli()}
	sig, err := sealed.Sign(body, evil.PrivateKey)
	require.NoError(t, err)
	b.post("tab-1", signedEnvelope{envelopeBody: body, Signature: sig})
	assert.Empty(t, got)
}

func TestRequestCloseReachesConnectedInstances(t *testing.T) {
	b := NewBroker(zerolog.Nop())
	kp, err := sealed.GenerateSigningKeyPair()
	require.NoError(t, err)
	c, err := b.Connect("tab-1", kp)
	require.NoError(t, err)

	var got []Event
	c.SetHandler(func(e Event) { got = append(got, e) })

	require.NoError(t, RequestClose(b))
	require.NoError(t, RequestClose(b), "requester ids never collide")
	assert.Equal(t, []Event{EventCloseRequested, EventCloseRequested}, got)
}

func TestDisconnectStopsDelivery(t *testing.T) {
	b := NewBroker(zerolog.Nop())
	kp1, _ := sealed.GenerateSigningKeyPair()
	kp2, _ := sealed.GenerateSigningKeyPair()
	c1, err := b.Connect("tab-1", kp1)
	require.NoError(t, err)
	c2, err := b.Connect("tab-2", kp2)
	require.NoError(t, err)

	var got []Event
	c2.SetHandler(func(e Event) { got = append(got, e) })
	c2.Close()

	require.NoError(t, c1.Post(EventThemeChanged))
	assert.Empty(t, got)

	// Duplicate IDs are rejected while connected.
	_, err = b.Connect("tab-1", kp1)
	assert.Error(t, err)
}
