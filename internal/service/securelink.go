package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// SecureLinks issues and checks the opaque invoice ids embedded in poll URLs.
// A secure id is "<invoiceID>.<tag>" where tag is a truncated HMAC of the invoice id.
type SecureLinks struct {
	key []byte
}

func NewSecureLinks(secret string) *SecureLinks {
	return &SecureLinks{key: []byte(secret)}
}

func (l *SecureLinks) Sign(invoiceID string) string {
	return invoiceID + "." + l.tag(invoiceID)
}

// Resolve returns the invoice id behind secureID. Unknown, malformed or forged ids
// resolve to nothing.
func (l *SecureLinks) Resolve(secureID string) (string, bool) {
	if len(l.key) == 0 {
		return "", false
	}
	i := strings.LastIndexByte(secureID, '.')
	if i <= 0 || i == len(secureID)-1 {
		return "", false
	}
	invoiceID, tag := secureID[:i], secureID[i+1:]
	if !hmac.Equal([]byte(tag), []byte(l.tag(invoiceID))) {
		return "", false
	}
	return invoiceID, true
}

func (l *SecureLinks) tag(invoiceID string) string {
	mac := hmac.New(sha256.New, l.key)
	mac.Write([]byte("invoice:" + invoiceID))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)[:18])
}
