package logger

import (
	"log/slog"
	"strings"
)

// Sensitive key patterns that should be redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"seal_key",
	"sealkey",
	"token",
	"credential",
	"auth",
}

// rawKeyLength is the hex length of a 32-byte key.
const rawKeyLength = 64

// redactedValue is the placeholder for redacted sensitive data.
const redactedValue = "***REDACTED***"

// redactSensitive checks if an attribute contains sensitive data and
// redacts it if necessary.
func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		strVal := a.Value.String()
		if strVal == "" {
			return a
		}
		if IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
		// A bare 64-hex value looks like a key pasted into a message field.
		if IsSensitiveValue(strVal) {
			return slog.String(a.Key, maskValue(strVal))
		}

	case slog.KindGroup:
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	}

	return a
}

// maskValue keeps the first and last 3 characters.
func maskValue(value string) string {
	if len(value) <= 6 {
		return "***"
	}
	return value[:3] + "..." + value[len(value)-3:]
}

// RedactString masks value if it looks like a raw key.
func RedactString(value string) string {
	if IsSensitiveValue(value) {
		return maskValue(value)
	}
	return value
}

// IsSensitiveKey checks if a key name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}

// IsSensitiveValue reports whether value looks like a hex encoded 32-byte key.
func IsSensitiveValue(value string) bool {
	if len(value) != rawKeyLength {
		return false
	}
	for _, c := range value {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
