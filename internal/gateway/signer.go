package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	HeaderNonce     = "X-Nonce"
	HeaderAPIKey    = "X-Api-Key"
	HeaderSignature = "X-Signature"
)

var emptyBody = []byte("{}")

// SignedRequest is the authenticated form of one gateway call.
type SignedRequest struct {
	Nonce     int64
	Method    string
	Path      string
	Body      []byte
	Signature string
	Header    http.Header
}

// Signer builds the nonce, HMAC signature and credential headers for gateway requests.
type Signer struct {
	apiKey string
	secret []byte
	now    func() time.Time

	mu        sync.Mutex
	lastNonce int64
}

func NewSigner(apiKey, secret string) *Signer {
	return &Signer{
		apiKey: apiKey,
		secret: []byte(secret),
		now:    time.Now,
	}
}

// Sign signs method, path and body with a fresh nonce. Nonces never repeat within
// a Signer: when the millisecond clock has not moved, the previous nonce plus one is used.
func (s *Signer) Sign(method, path string, body []byte) *SignedRequest {
	return s.SignWithNonce(s.nextNonce(), method, path, body)
}

// SignWithNonce signs with a caller-chosen nonce.
func (s *Signer) SignWithNonce(nonce int64, method, path string, body []byte) *SignedRequest {
	method = strings.ToUpper(method)
	n := strconv.FormatInt(nonce, 10)

	signed := body
	if len(signed) == 0 {
		signed = emptyBody
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(n))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write(signed)
	sig := strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))

	header := http.Header{}
	header.Set(HeaderNonce, n)
	header.Set(HeaderAPIKey, s.apiKey)
	header.Set(HeaderSignature, sig)
	header.Set("Accept", "application/json")
	if method != http.MethodDelete {
		header.Set("Content-Type", "application/json")
	}

	return &SignedRequest{
		Nonce:     nonce,
		Method:    method,
		Path:      path,
		Body:      body,
		Signature: sig,
		Header:    header,
	}
}

func (s *Signer) nextNonce() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.now().UnixMilli()
	if n <= s.lastNonce {
		n = s.lastNonce + 1
	}
	s.lastNonce = n
	return n
}
