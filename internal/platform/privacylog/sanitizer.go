// Package privacylog keeps key material and full account addresses out
// of structured logs. Mnemonics, passphrases, and tokens are redacted
// outright; account addresses are shortened so log lines stay
// correlatable without exposing the full address to every log sink.
package privacylog

import (
	"context"
	"log/slog"
	"strings"

	"microloan/go-client/pkg/models"
)

const redactedValue = "[REDACTED]"

var (
	sensitiveKeyParts = []string{"mnemonic", "passphrase", "password", "secret", "token", "private_key", "authorization"}
	addressKeys       = map[string]struct{}{
		"account": {},
		"address": {},
		"from":    {},
		"to":      {},
	}
)

type SanitizingHandler struct {
	next slog.Handler
}

func WrapHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return &SanitizingHandler{next: next}
}

func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SanitizingHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(SanitizeAttr(attr))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SanitizingHandler{next: h.next.WithAttrs(sanitizeAttrs(attrs))}
}

func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{next: h.next.WithGroup(name)}
}

func SanitizeAttr(attr slog.Attr) slog.Attr {
	key := strings.TrimSpace(attr.Key)
	lowerKey := strings.ToLower(key)
	if isSensitiveKey(lowerKey) {
		return slog.String(key, redactedValue)
	}
	if isAddressKey(lowerKey) && attr.Value.Kind() == slog.KindString {
		return slog.String(key, shortenAddress(attr.Value.String()))
	}
	if attr.Value.Kind() == slog.KindGroup {
		return slog.Attr{Key: key, Value: slog.GroupValue(sanitizeAttrs(attr.Value.Group())...)}
	}
	return attr
}

func sanitizeAttrs(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, SanitizeAttr(attr))
	}
	return out
}

func isSensitiveKey(key string) bool {
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

func isAddressKey(key string) bool {
	_, ok := addressKeys[key]
	return ok
}

// shortenAddress collapses hex addresses to their display form and
// leaves everything else alone.
func shortenAddress(value string) string {
	if !strings.HasPrefix(value, "0x") {
		return value
	}
	return models.ShortAddress(value)
}
