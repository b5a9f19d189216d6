package api

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/centerionware/smartbillsplitter-sub001/internal/relay/api/respond"
	"github.com/centerionware/smartbillsplitter-sub001/internal/relay/kv"
)

// syncCodeAttempts bounds collision retries when minting a 6-digit code.
const syncCodeAttempts = 5

// CreateSync POST /sync — mints a short-lived, single-use numeric handshake
// code for one-shot transfers (device pairing, full-data handoff).
func (h *Handler) CreateSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EncryptedData string `json:"encryptedData"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EncryptedData == "" {
		respond.WriteBadRequest(w, "bad input", "encryptedData is required")
		return
	}

	for attempt := 0; attempt < syncCodeAttempts; attempt++ {
		code, err := randomSyncCode()
		if err != nil {
			respond.WriteInternalError(w, "failed to generate sync code")
			return
		}
		taken, err := h.kv.Exists(r.Context(), kv.SyncKey(code))
		if err != nil {
			respond.WriteInternalError(w, "failed to store sync code")
			return
		}
		if taken {
			continue
		}
		if err := h.kv.Set(r.Context(), kv.SyncKey(code), req.EncryptedData, kv.SyncCodeTTL); err != nil {
			respond.WriteInternalError(w, "failed to store sync code")
			return
		}
		respond.WriteJSON(w, http.StatusCreated, map[string]any{"code": code})
		return
	}
	respond.WriteInternalError(w, "failed to allocate a sync code")
}

// GetSync GET /sync?code=N — read-once: the record is deleted on the first
// successful read, so a second read inside the TTL window still 404s.
func (h *Handler) GetSync(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		respond.WriteBadRequest(w, "bad input", "code is required")
		return
	}
	value, ok, err := h.kv.Get(r.Context(), kv.SyncKey(code))
	if err != nil {
		respond.WriteInternalError(w, "failed to read sync code")
		return
	}
	if !ok {
		respond.WriteNotFound(w, "sync code not found or expired")
		return
	}
	if err := h.kv.Del(r.Context(), kv.SyncKey(code)); err != nil {
		h.log.Warn().Err(err).Msg("sync code delete-on-read failed")
	}
	respond.WriteJSON(w, http.StatusOK, map[string]any{"encryptedData": value})
}

// CreateOneTimeKey POST /onetime-key — stashes an encrypted bill key for a
// single pickup within 24 hours.
func (h *Handler) CreateOneTimeKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EncryptedBillKey string `json:"encryptedBillKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EncryptedBillKey == "" {
		respond.WriteBadRequest(w, "bad input", "encryptedBillKey is required")
		return
	}
	keyID := uuid.New().String()
	if err := h.kv.Set(r.Context(), kv.OneTimeKey(keyID), req.EncryptedBillKey, kv.OneTimeKeyTTL); err != nil {
		respond.WriteInternalError(w, "failed to store one-time key")
		return
	}
	respond.WriteJSON(w, http.StatusCreated, map[string]any{"keyId": keyID})
}

// TakeOneTimeKey GET /onetime-key/{keyId} — read-once, like sync codes.
func (h *Handler) TakeOneTimeKey(w http.ResponseWriter, r *http.Request) {
	keyID := mux.Vars(r)["keyId"]
	value, ok, err := h.kv.Get(r.Context(), kv.OneTimeKey(keyID))
	if err != nil {
		respond.WriteInternalError(w, "failed to read one-time key")
		return
	}
	if !ok {
		respond.WriteNotFound(w, "one-time key not found or expired")
		return
	}
	if err := h.kv.Del(r.Context(), kv.OneTimeKey(keyID)); err != nil {
		h.log.Warn().Err(err).Msg("one-time key delete-on-read failed")
	}
	respond.WriteJSON(w, http.StatusOK, map[string]any{"encryptedBillKey": value})
}

// OneTimeKeyStatus GET /onetime-key/{keyId}/status — non-consuming probe so
// the owner can tell whether the counterparty picked the key up.
func (h *Handler) OneTimeKeyStatus(w http.ResponseWriter, r *http.Request) {
	keyID := mux.Vars(r)["keyId"]
	exists, err := h.kv.Exists(r.Context(), kv.OneTimeKey(keyID))
	if err != nil {
		respond.WriteInternalError(w, "failed to check one-time key")
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]any{"exists": exists})
}

// randomSyncCode returns a uniform 6-digit decimal string.
func randomSyncCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
