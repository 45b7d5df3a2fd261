package mcpclient

import "testing"

func TestErrorKindMatching(t *testing.T) {
	err := newError(KindTimeout, "waited %d ms", 30000)
	if !Is(err, KindTimeout) {
		t.Error("expected Is to match KindTimeout")
	}
	if Is(err, KindTransport) {
		t.Error("expected Is to not match KindTransport")
	}
}

func TestErrorMessageIncludesKind(t *testing.T) {
	err := newError(KindProtocol, "bad version")
	if got := err.Error(); got == "" {
		t.Fatal("expected non-empty error message")
	}
}

func TestIsFalseForPlainError(t *testing.T) {
	if Is(nil, KindTimeout) {
		t.Error("expected Is(nil, ...) to be false")
	}
}
