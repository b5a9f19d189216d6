package sharesync

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/centerionware/smartbillsplitter-sub001/internal/model"
	"github.com/centerionware/smartbillsplitter-sub001/internal/sealed"
)

// ErrVerificationFailed marks a payload whose signature did not check out.
// Callers must keep their last-verified copy; a failed envelope is never
// applied.
var ErrVerificationFailed = errors.New("payload signature verification failed")

// SealPayload signs the payload with the bill's private key and encrypts
// the signed bundle under the share key. The result is the base64
// ciphertext that travels through the relay.
func SealPayload(payload model.SharedBillPayload, signingPrivateKey, shareKey string) (string, error) {
	sig, err := sealed.Sign(payload, signingPrivateKey)
	if err != nil {
		return "", fmt.Errorf("sign payload: %w", err)
	}
	data := model.SharedData{
		Payload:          payload,
		CreatorPublicKey: payload.PublicKey,
		Signature:        sig,
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal shared data: %w", err)
	}
	return sealed.Seal(raw, shareKey)
}

// OpenPayload decrypts and verifies a relay envelope. pinnedPublicKey is the
// key recorded at first import; when it is empty (first import, trust on
// first use) the key carried inside the payload is used and becomes the pin.
// The key inside the payload is never trusted once a pin exists.
func OpenPayload(ciphertext, shareKey, pinnedPublicKey string) (model.SharedData, error) {
	raw, err := sealed.OpenSealed(ciphertext, shareKey)
	if err != nil {
		return model.SharedData{}, fmt.Errorf("open envelope: %w", err)
	}
	var data model.SharedData
	if err := json.Unmarshal(raw, &data); err != nil {
		return model.SharedData{}, fmt.Errorf("parse shared data: %w", err)
	}
	key := pinnedPublicKey
	if key == "" {
		key = data.Payload.PublicKey
	}
	if !sealed.Verify(data.Payload, data.Signature, key) {
		return model.SharedData{}, ErrVerificationFailed
	}
	data.CreatorPublicKey = key
	return data, nil
}
