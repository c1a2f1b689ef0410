package execution

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// hmacAuth holds the credentials for HMAC-authenticated requests against the
// venue order API.
type hmacAuth struct {
	Key        string // API key
	Secret     string // API secret, base64-encoded
	Passphrase string // API passphrase
}

// headers returns the authentication headers for one request. The signature
// is HMAC-SHA256(secret, timestamp+method+path+body) encoded as base64; the
// secret is base64-decoded before use.
func (h *hmacAuth) headers(method, path, body string) map[string]string {
	return h.headersAt(method, path, body, time.Now().Unix())
}

// headersAt is like headers but lets the caller supply the Unix timestamp
// (useful for deterministic testing).
func (h *hmacAuth) headersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)

	secretBytes, err := base64.StdEncoding.DecodeString(h.Secret)
	if err != nil {
		// If decoding fails, fall back to raw bytes so the caller gets an
		// obviously-wrong signature rather than a panic.
		secretBytes = []byte(h.Secret)
	}

	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(ts + method + path + body))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"POLY_API_KEY":    h.Key,
		"POLY_TIMESTAMP":  ts,
		"POLY_PASSPHRASE": h.Passphrase,
		"POLY_SIGNATURE":  sig,
	}
}
