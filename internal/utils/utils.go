package utils

import (
	"crypto/rand"
	"math/big"
	"net/mail"
	"strings"
)

// CodeCharset excludes characters that are easy to misread
const CodeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateCode creates a random code of length characters from CodeCharset
func GenerateCode(length int) (string, error) {
	result := make([]byte, length)
	limit := big.NewInt(int64(len(CodeCharset)))

	for i := range result {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		result[i] = CodeCharset[n.Int64()]
	}

	return string(result), nil
}

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail checks if an email address is valid
func IsValidEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}

	// Require a dot in the domain part
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	domainParts := strings.Split(parts[1], ".")
	return len(domainParts) >= 2 && domainParts[len(domainParts)-1] != ""
}
