package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// FormatTime renders t as RFC 3339 in UTC, or "" for nil/zero.
func FormatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// NormalizeBool reads the yes/no values staff type into sheets and forms.
func NormalizeBool(s string) bool {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "yes", "true", "1", "y", "oo":
		return true
	default:
		return false
	}
}

func HMACSHA256Hex(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

const exportSubject = "export:registrations"

// ExportToken signs the staff CSV export link.
func ExportToken(secret string) string {
	return HMACSHA256Hex(secret, exportSubject)
}

func VerifyExportToken(secret, token string) bool {
	return VerifyHMACSHA256Hex(secret, exportSubject, token)
}

// VerifyHMACSHA256Hex compares sig against the expected digest in constant time.
func VerifyHMACSHA256Hex(secret, msg, sig string) bool {
	if sig == "" {
		return false
	}
	return hmac.Equal([]byte(HMACSHA256Hex(secret, msg)), []byte(strings.ToLower(strings.TrimSpace(sig))))
}
