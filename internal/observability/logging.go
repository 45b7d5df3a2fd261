package observability

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
)

// DefaultRedactPatterns contains regex patterns for common sensitive
// data that can show up in tool arguments, external-tool-server
// environments, or process output (API keys, bearer tokens, JWTs).
var DefaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey)[\s:=]+["\']?([a-zA-Z0-9_\-]{16,})["\']?`,
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-\.]{16,})`,
	`(?i)(secret|password|passwd|pwd)[\s:=]+["\']?([^\s"']{8,})["\']?`,
	`sk-ant-[a-zA-Z0-9_-]{95,}`,
	`sk-[a-zA-Z0-9]{48,}`,
	`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`,
}

// RedactingHandler wraps a slog.Handler, scrubbing the message and
// every string-valued attribute against a set of secret-shaped
// patterns before the record reaches the wrapped handler. Attribute
// groups are redacted recursively.
type RedactingHandler struct {
	next    slog.Handler
	redacts []*regexp.Regexp
}

// NewRedactingHandler wraps next, redacting DefaultRedactPatterns plus
// any caller-supplied extras. Patterns that fail to compile are
// skipped.
func NewRedactingHandler(next slog.Handler, extraPatterns ...string) *RedactingHandler {
	all := append(append([]string{}, DefaultRedactPatterns...), extraPatterns...)
	redacts := make([]*regexp.Regexp, 0, len(all))
	for _, pattern := range all {
		if re, err := regexp.Compile(pattern); err == nil {
			redacts = append(redacts, re)
		}
	}
	return &RedactingHandler{next: next, redacts: redacts}
}

// NewRedactingLogger wraps base's handler with redaction and returns
// an ordinary *slog.Logger, so callers keep using the plain slog API
// without threading a separate logger type through their signatures.
func NewRedactingLogger(base *slog.Logger, extraPatterns ...string) *slog.Logger {
	return slog.New(NewRedactingHandler(base.Handler(), extraPatterns...))
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	redacted := slog.NewRecord(r.Time, r.Level, h.redactString(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		redacted.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, redacted)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactAttr(a)
	}
	return &RedactingHandler{next: h.next.WithAttrs(redacted), redacts: h.redacts}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{next: h.next.WithGroup(name), redacts: h.redacts}
}

func (h *RedactingHandler) redactAttr(a slog.Attr) slog.Attr {
	val := a.Value.Resolve()
	switch val.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.redactString(val.String()))
	case slog.KindGroup:
		group := val.Group()
		redacted := make([]slog.Attr, len(group))
		for i, ga := range group {
			redacted[i] = h.redactAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(redacted...)}
	case slog.KindAny:
		switch v := val.Any().(type) {
		case error:
			return slog.String(a.Key, h.redactString(v.Error()))
		case []byte:
			return slog.String(a.Key, h.redactString(string(v)))
		case fmt.Stringer:
			return slog.String(a.Key, h.redactString(v.String()))
		default:
			return a
		}
	default:
		return a
	}
}

func (h *RedactingHandler) redactString(s string) string {
	for _, re := range h.redacts {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}
