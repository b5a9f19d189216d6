// Package api serves the relay HTTP surface: share channels, sync codes,
// and one-time keys, all backed by the ephemeral KV layer. The relay stores
// only opaque ciphertext; it never sees bill plaintext.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/centerionware/smartbillsplitter-sub001/internal/relay/api/respond"
	"github.com/centerionware/smartbillsplitter-sub001/internal/relay/kv"
)

// KV is the slice of the key-value layer the handlers need; satisfied by
// every backend and by the federation wrapper.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// shareEnvelope is the stored form of a share record.
type shareEnvelope struct {
	EncryptedData string `json:"encryptedData"`
	LastUpdatedAt int64  `json:"lastUpdatedAt"`
}

// Handler carries the relay endpoints.
type Handler struct {
	kv  KV
	log zerolog.Logger
	now func() time.Time
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithClock overrides the timestamp source (tests).
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

func NewHandler(store KV, log zerolog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{kv: store, log: log, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// CreateShare POST /share
func (h *Handler) CreateShare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EncryptedData string `json:"encryptedData"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EncryptedData == "" {
		respond.WriteBadRequest(w, "bad input", "encryptedData is required")
		return
	}
	shareID := uuid.New().String()
	ts := h.now().UnixMilli()
	if err := h.putShare(r.Context(), shareID, req.EncryptedData, ts); err != nil {
		respond.WriteInternalError(w, "failed to store share")
		return
	}
	respond.WriteJSON(w, http.StatusCreated, map[string]any{"shareId": shareID, "lastUpdatedAt": ts})
}

// UpdateShare POST /share/{shareId} — upsert; every push refreshes the TTL.
func (h *Handler) UpdateShare(w http.ResponseWriter, r *http.Request) {
	shareID := mux.Vars(r)["shareId"]
	var req struct {
		EncryptedData string `json:"encryptedData"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EncryptedData == "" {
		respond.WriteBadRequest(w, "bad input", "encryptedData is required")
		return
	}
	ts := h.now().UnixMilli()
	if err := h.putShare(r.Context(), shareID, req.EncryptedData, ts); err != nil {
		respond.WriteInternalError(w, "failed to store share")
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]any{"shareId": shareID, "lastUpdatedAt": ts})
}

// GetShare GET /share/{shareId}?lastUpdatedAt=N — conditional fetch. A
// client already holding the stored timestamp (or newer) gets 304 with no
// body.
func (h *Handler) GetShare(w http.ResponseWriter, r *http.Request) {
	shareID := mux.Vars(r)["shareId"]
	env, ok, err := h.getShare(r.Context(), shareID)
	if err != nil {
		respond.WriteInternalError(w, "failed to read share")
		return
	}
	if !ok {
		respond.WriteNotFound(w, "share not found or expired")
		return
	}
	if s := r.URL.Query().Get("lastUpdatedAt"); s != "" {
		since, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			respond.WriteBadRequest(w, "bad input", "lastUpdatedAt must be an integer")
			return
		}
		if env.LastUpdatedAt <= since {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	respond.WriteJSON(w, http.StatusOK, env)
}

// BatchCheckEntry is one client-known share version.
type BatchCheckEntry struct {
	ShareID       string `json:"shareId"`
	LastUpdatedAt int64  `json:"lastUpdatedAt"`
}

// BatchCheckResult is one changed share.
type BatchCheckResult struct {
	ShareID       string `json:"shareId"`
	EncryptedData string `json:"encryptedData"`
	LastUpdatedAt int64  `json:"lastUpdatedAt"`
}

// BatchCheck POST /share/batch-check — returns only the entries newer than
// the client's knowledge. Unknown (expired) shareIds are skipped, not
// errors: the owner-side poll reports expiry separately.
func (h *Handler) BatchCheck(w http.ResponseWriter, r *http.Request) {
	var entries []BatchCheckEntry
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		respond.WriteBadRequest(w, "bad input", "expected an array of {shareId, lastUpdatedAt}")
		return
	}
	results := make([]BatchCheckResult, 0, len(entries))
	for _, e := range entries {
		if e.ShareID == "" {
			continue
		}
		env, ok, err := h.getShare(r.Context(), e.ShareID)
		if err != nil {
			h.log.Warn().Err(err).Str("shareId", e.ShareID).Msg("batch-check read failed")
			continue
		}
		if !ok || env.LastUpdatedAt <= e.LastUpdatedAt {
			continue
		}
		results = append(results, BatchCheckResult{
			ShareID:       e.ShareID,
			EncryptedData: env.EncryptedData,
			LastUpdatedAt: env.LastUpdatedAt,
		})
	}
	respond.WriteJSON(w, http.StatusOK, results)
}

func (h *Handler) putShare(ctx context.Context, shareID, encryptedData string, ts int64) error {
	raw, err := json.Marshal(shareEnvelope{EncryptedData: encryptedData, LastUpdatedAt: ts})
	if err != nil {
		return err
	}
	if err := h.kv.Set(ctx, kv.ShareKey(shareID), string(raw), kv.ShareTTL); err != nil {
		h.log.Error().Err(err).Str("shareId", shareID).Msg("share write failed")
		return err
	}
	return nil
}

func (h *Handler) getShare(ctx context.Context, shareID string) (shareEnvelope, bool, error) {
	raw, ok, err := h.kv.Get(ctx, kv.ShareKey(shareID))
	if err != nil || !ok {
		return shareEnvelope{}, false, err
	}
	var env shareEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		h.log.Error().Err(err).Str("shareId", shareID).Msg("corrupt share envelope")
		return shareEnvelope{}, false, nil
	}
	return env, true, nil
}
