// Package crypto signs requests to the execution gateway.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Header names sent with every signed gateway request.
const (
	HeaderKey       = "X-BASKET-KEY"
	HeaderTimestamp = "X-BASKET-TIMESTAMP"
	HeaderSignature = "X-BASKET-SIGNATURE"
)

// HMACAuth holds the API key pair for the execution gateway.
type HMACAuth struct {
	Key    string
	Secret string
}

// Headers returns the auth headers for a request. The signature is
// hex(HMAC-SHA256(secret, timestamp+method+path+body)) with a millisecond
// timestamp.
func (h *HMACAuth) Headers(method, path, body string) map[string]string {
	return h.HeadersAt(method, path, body, time.Now().UnixMilli())
}

// HeadersAt is Headers with a caller-supplied timestamp.
func (h *HMACAuth) HeadersAt(method, path, body string, unixMilli int64) map[string]string {
	ts := strconv.FormatInt(unixMilli, 10)
	return map[string]string{
		HeaderKey:       h.Key,
		HeaderTimestamp: ts,
		HeaderSignature: Sign(h.Secret, ts+method+path+body),
	}
}

// Verify checks a signature produced by HeadersAt.
func (h *HMACAuth) Verify(method, path, body, ts, sig string) bool {
	want := Sign(h.Secret, ts+method+path+body)
	return hmac.Equal([]byte(want), []byte(sig))
}

// Sign returns hex(HMAC-SHA256(secret, message)).
func Sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
