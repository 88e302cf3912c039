// Package signature signs and verifies the payloads embedded in family and
// voucher QR codes.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

type Signer struct {
	key []byte
}

func New(secret string) *Signer {
	return &Signer{key: []byte(secret)}
}

// Sign returns the hex HMAC-SHA256 of payload.
func (s *Signer) Sign(payload string) string {
	return hex.EncodeToString(s.mac(payload))
}

// Verify reports whether signature is exactly Sign(payload). Only the
// canonical lowercase hex form is accepted, so one MAC has one spelling.
func (s *Signer) Verify(payload, signature string) bool {
	if len(signature) != hex.EncodedLen(sha256.Size) {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(s.Sign(payload)))
}

func (s *Signer) mac(payload string) []byte {
	m := hmac.New(sha256.New, s.key)
	m.Write([]byte(payload))
	return m.Sum(nil)
}
