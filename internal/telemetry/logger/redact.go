package logger

import (
	"log/slog"
	"strings"
)

const redacted = "***REDACTED***"

// Encoded key material accepted by storage.encryption_key.
var keyMaterialPrefixes = []string{"hex:", "base64:"}

// Attribute names whose values are never logged. Matching is on the
// lowercased name, by substring.
var secretNames = []string{
	"password",
	"secret",
	"token",
	"encryption_key",
	"private_key",
	"credential",
	"authorization",
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	return redact(a)
}

func redact(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindGroup:
		group := a.Value.Group()
		out := make([]slog.Attr, len(group))
		for i, g := range group {
			out[i] = redact(g)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	case slog.KindString:
		s := a.Value.String()
		if s == "" {
			return a
		}
		if p := keyMaterialPrefix(s); p != "" {
			return slog.String(a.Key, mask(s, p))
		}
		if IsSecretName(a.Key) {
			return slog.String(a.Key, redacted)
		}
	}
	return a
}

func keyMaterialPrefix(s string) string {
	for _, p := range keyMaterialPrefixes {
		if strings.HasPrefix(s, p) {
			return p
		}
	}
	return ""
}

// mask keeps the encoding prefix and three characters at each end.
func mask(s, prefix string) string {
	body := s[len(prefix):]
	if len(body) <= 6 {
		return prefix + "***"
	}
	return prefix + body[:3] + "..." + body[len(body)-3:]
}

// IsSecretName reports whether an attribute or setting called name holds
// a secret.
func IsSecretName(name string) bool {
	name = strings.ToLower(name)
	for _, s := range secretNames {
		if strings.Contains(name, s) {
			return true
		}
	}
	return false
}

// Redact returns the loggable form of a secret value: encoded key material
// keeps its prefix and ends, anything else non-empty is replaced whole.
func Redact(s string) string {
	if s == "" {
		return ""
	}
	if p := keyMaterialPrefix(s); p != "" {
		return mask(s, p)
	}
	return redacted
}
