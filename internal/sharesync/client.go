// Package sharesync implements the client side of the relay protocol:
// envelope building, the push pipeline for owned bills, and the pollers
// that keep imported bills and owned share channels current.
package sharesync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// ShareEnvelope is the relay's stored form of a share channel.
type ShareEnvelope struct {
	EncryptedData string `json:"encryptedData"`
	LastUpdatedAt int64  `json:"lastUpdatedAt"`
}

// CheckEntry is one client-known share version for a batch check.
type CheckEntry struct {
	ShareID       string `json:"shareId"`
	LastUpdatedAt int64  `json:"lastUpdatedAt"`
}

// CheckResult is one changed share returned by a batch check.
type CheckResult struct {
	ShareID       string `json:"shareId"`
	EncryptedData string `json:"encryptedData"`
	LastUpdatedAt int64  `json:"lastUpdatedAt"`
}

// FetchResult is the outcome of a conditional share fetch.
type FetchResult struct {
	Envelope    ShareEnvelope
	NotModified bool
	Found       bool
}

// Client wraps the relay HTTP surface. All methods are safe for concurrent
// use; resty manages the underlying connection pool.
type Client struct {
	http *resty.Client
}

func NewClient(baseURL string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second)
	return &Client{http: c}
}

// relayError turns a non-2xx relay response into an error carrying the
// server's {error, details?} body when one is present.
func relayError(resp *resty.Response) error {
	var body struct {
		Error   string `json:"error"`
		Details string `json:"details,omitempty"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Error != "" {
		if body.Details != "" {
			return fmt.Errorf("relay status %d: %s (%s)", resp.StatusCode(), body.Error, body.Details)
		}
		return fmt.Errorf("relay status %d: %s", resp.StatusCode(), body.Error)
	}
	return fmt.Errorf("relay status %d", resp.StatusCode())
}

// CreateShare registers a new share channel holding the given ciphertext.
func (c *Client) CreateShare(ctx context.Context, encryptedData string) (string, int64, error) {
	var out struct {
		ShareID       string `json:"shareId"`
		LastUpdatedAt int64  `json:"lastUpdatedAt"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"encryptedData": encryptedData}).
		SetResult(&out).
		Post("/share")
	if err != nil {
		return "", 0, fmt.Errorf("create share: %w", err)
	}
	if resp.StatusCode() != http.StatusCreated {
		return "", 0, relayError(resp)
	}
	return out.ShareID, out.LastUpdatedAt, nil
}

// UpdateShare upserts the channel's ciphertext and refreshes its TTL.
func (c *Client) UpdateShare(ctx context.Context, shareID, encryptedData string) (int64, error) {
	var out struct {
		LastUpdatedAt int64 `json:"lastUpdatedAt"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"encryptedData": encryptedData}).
		SetResult(&out).
		Post("/share/" + shareID)
	if err != nil {
		return 0, fmt.Errorf("update share %s: %w", shareID, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, relayError(resp)
	}
	return out.LastUpdatedAt, nil
}

// FetchShare reads a channel, conditionally when since > 0. 304 and 404 are
// protocol outcomes, not errors.
func (c *Client) FetchShare(ctx context.Context, shareID string, since int64) (FetchResult, error) {
	req := c.http.R().SetContext(ctx)
	if since > 0 {
		req.SetQueryParam("lastUpdatedAt", fmt.Sprintf("%d", since))
	}
	resp, err := req.Get("/share/" + shareID)
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch share %s: %w", shareID, err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		var env ShareEnvelope
		if err := json.Unmarshal(resp.Body(), &env); err != nil {
			return FetchResult{}, fmt.Errorf("decode share %s: %w", shareID, err)
		}
		return FetchResult{Envelope: env, Found: true}, nil
	case http.StatusNotModified:
		return FetchResult{NotModified: true, Found: true}, nil
	case http.StatusNotFound:
		return FetchResult{}, nil
	default:
		return FetchResult{}, relayError(resp)
	}
}

// BatchCheck returns the subset of entries the relay holds newer data for.
func (c *Client) BatchCheck(ctx context.Context, entries []CheckEntry) ([]CheckResult, error) {
	var out []CheckResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(entries).
		SetResult(&out).
		Post("/share/batch-check")
	if err != nil {
		return nil, fmt.Errorf("batch check: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, relayError(resp)
	}
	return out, nil
}

// CreateSyncCode stashes ciphertext behind a short-lived 6-digit code.
func (c *Client) CreateSyncCode(ctx context.Context, encryptedData string) (string, error) {
	var out struct {
		Code string `json:"code"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"encryptedData": encryptedData}).
		SetResult(&out).
		Post("/sync")
	if err != nil {
		return "", fmt.Errorf("create sync code: %w", err)
	}
	if resp.StatusCode() != http.StatusCreated {
		return "", relayError(resp)
	}
	return out.Code, nil
}

// RedeemSyncCode consumes a sync code. A false second return means the code
// is unknown, already used, or expired.
func (c *Client) RedeemSyncCode(ctx context.Context, code string) (string, bool, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("code", code).
		Get("/sync")
	if err != nil {
		return "", false, fmt.Errorf("redeem sync code: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		var out struct {
			EncryptedData string `json:"encryptedData"`
		}
		if err := json.Unmarshal(resp.Body(), &out); err != nil {
			return "", false, fmt.Errorf("decode sync payload: %w", err)
		}
		return out.EncryptedData, true, nil
	case http.StatusNotFound:
		return "", false, nil
	default:
		return "", false, relayError(resp)
	}
}

// PutOneTimeKey stashes a wrapped bill key for a single pickup.
func (c *Client) PutOneTimeKey(ctx context.Context, encryptedBillKey string) (string, error) {
	var out struct {
		KeyID string `json:"keyId"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"encryptedBillKey": encryptedBillKey}).
		SetResult(&out).
		Post("/onetime-key")
	if err != nil {
		return "", fmt.Errorf("put one-time key: %w", err)
	}
	if resp.StatusCode() != http.StatusCreated {
		return "", relayError(resp)
	}
	return out.KeyID, nil
}

// TakeOneTimeKey consumes a one-time key.
func (c *Client) TakeOneTimeKey(ctx context.Context, keyID string) (string, bool, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/onetime-key/" + keyID)
	if err != nil {
		return "", false, fmt.Errorf("take one-time key: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		var out struct {
			EncryptedBillKey string `json:"encryptedBillKey"`
		}
		if err := json.Unmarshal(resp.Body(), &out); err != nil {
			return "", false, fmt.Errorf("decode one-time key: %w", err)
		}
		return out.EncryptedBillKey, true, nil
	case http.StatusNotFound:
		return "", false, nil
	default:
		return "", false, relayError(resp)
	}
}

// OneTimeKeyStatus probes whether a key is still unclaimed, without
// consuming it.
func (c *Client) OneTimeKeyStatus(ctx context.Context, keyID string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/onetime-key/" + keyID + "/status")
	if err != nil {
		return false, fmt.Errorf("one-time key status: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return false, relayError(resp)
	}
	return out.Exists, nil
}
