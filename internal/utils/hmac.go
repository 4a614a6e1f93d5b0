package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// SignaturePrefix is prepended to webhook signatures
const SignaturePrefix = "sha256="

// SignHMAC creates a hex HMAC-SHA256 signature of payload
func SignHMAC(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return SignaturePrefix + hex.EncodeToString(h.Sum(nil))
}

// VerifyHMAC verifies a signature against payload. The sha256= prefix is optional.
// Uses constant-time comparison to prevent timing attacks
func VerifyHMAC(payload []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	if !strings.HasPrefix(signature, SignaturePrefix) {
		signature = SignaturePrefix + signature
	}
	expectedMAC := SignHMAC(payload, secret)

	return subtle.ConstantTimeCompare([]byte(strings.ToLower(signature)), []byte(expectedMAC)) == 1
}
