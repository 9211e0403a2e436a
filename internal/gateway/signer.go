package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer computes the keyed message authentication code carried on every
// outbound request. The MAC covers the endpoint path concatenated with the
// canonical serialized body, so neither can be altered in flight.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns the hex-encoded HMAC-SHA256 of path+body.
func (s *Signer) Sign(path string, body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(path))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature in constant time.
func (s *Signer) Verify(path string, body []byte, signature string) bool {
	expected, err := hex.DecodeString(s.Sign(path, body))
	if err != nil {
		return false
	}
	received, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, received)
}
