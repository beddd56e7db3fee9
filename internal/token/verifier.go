// Package token validates HMAC-signed playback tokens of the form
// base64url(payload).base64url(signature), with a fixed, ordered error
// taxonomy: never fall through silently past the first failing check.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"
)

// Code is the closed set of verification outcomes.
type Code string

const (
	CodeMissing          Code = "PLAYBACK_TOKEN_MISSING"
	CodeFormatInvalid    Code = "PLAYBACK_TOKEN_FORMAT_INVALID"
	CodeSignatureInvalid Code = "PLAYBACK_TOKEN_SIGNATURE_INVALID"
	CodePayloadInvalid   Code = "PLAYBACK_TOKEN_PAYLOAD_INVALID"
	CodeExpired          Code = "PLAYBACK_TOKEN_EXPIRED"
)

// VerifyError carries the distinguished failure code; callers map it to an
// HTTP status at the edge.
type VerifyError struct {
	Code Code
}

func (e *VerifyError) Error() string { return string(e.Code) }

func failWith(code Code) error { return &VerifyError{Code: code} }

// CodeOf extracts the Code from err if it is a *VerifyError, for callers
// that prefer a plain comparison over errors.As.
func CodeOf(err error) (Code, bool) {
	var ve *VerifyError
	if errors.As(err, &ve) {
		return ve.Code, true
	}
	return "", false
}

// Payload is the exact schema a token's JSON payload must satisfy.
type Payload struct {
	Sub string `json:"sub"`
	TID string `json:"tid"`
	CID string `json:"cid"`
	SID string `json:"sid"`
	Exp int64  `json:"exp"`
	Iat int64  `json:"iat"`
	V   int    `json:"v"`
}

func (p Payload) valid() bool {
	return p.Sub != "" && p.TID != "" && p.CID != "" && p.SID != "" && p.Exp > 0 && p.Iat > 0 && p.V == 1
}

// Verifier validates tokens against a shared HMAC-SHA256 secret. The secret
// is held in an atomic.Value so SetSecret (called from the config hot-reload
// goroutine) never races Verify (called from every playback request).
type Verifier struct {
	secret atomic.Value // []byte
	nowFn  func() time.Time
}

func NewVerifier(secret []byte) *Verifier {
	v := &Verifier{nowFn: time.Now}
	v.secret.Store(secret)
	return v
}

// SetSecret swaps the active HMAC secret, used for config hot-reload.
func (v *Verifier) SetSecret(secret []byte) {
	v.secret.Store(secret)
}

// Verify runs the fixed, ordered checks from spec and returns the decoded
// payload on success.
func (v *Verifier) Verify(token string) (Payload, error) {
	if token == "" {
		return Payload{}, failWith(CodeMissing)
	}

	idx := strings.IndexByte(token, '.')
	if idx < 0 || strings.IndexByte(token[idx+1:], '.') >= 0 {
		return Payload{}, failWith(CodeFormatInvalid)
	}
	payloadPart, sigPart := token[:idx], token[idx+1:]
	if payloadPart == "" || sigPart == "" {
		return Payload{}, failWith(CodeFormatInvalid)
	}

	expectedSig := signPayloadSegment(v.secret.Load().([]byte), payloadPart)
	givenSig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil || !hmac.Equal(givenSig, expectedSig) {
		return Payload{}, failWith(CodeSignatureInvalid)
	}

	raw, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return Payload{}, failWith(CodePayloadInvalid)
	}
	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil || !payload.valid() {
		return Payload{}, failWith(CodePayloadInvalid)
	}

	if payload.Exp <= v.nowFn().Unix() {
		return Payload{}, failWith(CodeExpired)
	}

	return payload, nil
}

// signPayloadSegment computes HMAC-SHA256(secret, payloadSegment), where
// payloadSegment is the base64url *encoded* text that was signed — signing
// the encoded form, not the raw JSON, so canonicalization is never required.
func signPayloadSegment(secret []byte, payloadSegment string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payloadSegment))
	return mac.Sum(nil)
}

// Encode builds a bit-exact token for a payload and secret; used by tests
// and any in-process token issuance.
func Encode(secret []byte, payload Payload) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	payloadPart := base64.RawURLEncoding.EncodeToString(raw)
	sig := signPayloadSegment(secret, payloadPart)
	return payloadPart + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}
