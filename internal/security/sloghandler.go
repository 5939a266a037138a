package security

import (
	"context"
	"log/slog"
)

// RedactingHandler scrubs secrets from log records before the wrapped
// handler sees them. Strings are run through the Redactor; string values
// under a secret-looking key are replaced outright.
type RedactingHandler struct {
	next     slog.Handler
	redactor *Redactor
}

func NewRedactingHandler(next slog.Handler, redactor *Redactor) *RedactingHandler {
	return &RedactingHandler{next: next, redactor: redactor}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, h.redactor.Redact(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.scrub(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RedactingHandler{next: h.next.WithAttrs(h.scrubAll(attrs)), redactor: h.redactor}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{next: h.next.WithGroup(name), redactor: h.redactor}
}

func (h *RedactingHandler) scrubAll(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = h.scrub(a)
	}
	return out
}

func (h *RedactingHandler) scrub(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(h.scrubAll(v.Group())...)}
	case slog.KindString:
		if v.String() != "" && IsSecretKey(a.Key) {
			return slog.String(a.Key, RedactPlaceholder)
		}
		return slog.String(a.Key, h.redactor.Redact(v.String()))
	case slog.KindAny:
		// errors and Stringers, which often embed request URLs
		s := v.String()
		if r := h.redactor.Redact(s); r != s {
			return slog.String(a.Key, r)
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

var _ slog.Handler = (*RedactingHandler)(nil)
