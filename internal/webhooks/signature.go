// Package webhooks signs and verifies inbound webhook bodies.
package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

func mac(secret string, body []byte) []byte {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(body)
	return m.Sum(nil)
}

// VerifyHMAC checks a hex HMAC-SHA256 signature over the raw body using the shared secret.
func VerifyHMAC(secret string, body []byte, provided string) bool {
	b, err := hex.DecodeString(strings.TrimSpace(provided))
	if err != nil || secret == "" {
		return false
	}
	return hmac.Equal(mac(secret, body), b)
}

// VerifyHMACBase64 is VerifyHMAC for base64 signatures, as storefront
// platforms send them.
func VerifyHMACBase64(secret string, body []byte, provided string) bool {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(provided))
	if err != nil || secret == "" {
		return false
	}
	return hmac.Equal(mac(secret, body), b)
}

// SignHMAC returns lowercase hex of HMAC-SHA256 for use in headers
func SignHMAC(secret string, body []byte) string {
	return hex.EncodeToString(mac(secret, body))
}

// SignHMACBase64 returns the base64 HMAC-SHA256 of body.
func SignHMACBase64(secret string, body []byte) string {
	return base64.StdEncoding.EncodeToString(mac(secret, body))
}
