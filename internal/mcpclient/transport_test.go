package mcpclient

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestStdioTransportCallNotConnected(t *testing.T) {
	cfg := &ServerConfig{ID: "test", Command: "sh"}
	transport := newStdioTransport(cfg, slog.Default())

	_, err := transport.call(context.Background(), "tools/list", nil)
	if err == nil {
		t.Fatal("expected error calling before connect")
	}
	if !Is(err, KindTransport) {
		t.Errorf("expected KindTransport, got %v", err)
	}
}

func TestStdioTransportNotifyNotConnected(t *testing.T) {
	cfg := &ServerConfig{ID: "test", Command: "sh"}
	transport := newStdioTransport(cfg, slog.Default())

	if err := transport.notify("notifications/initialized", nil); err == nil {
		t.Fatal("expected error notifying before connect")
	}
}

func TestStdioTransportConnectedStateAfterClose(t *testing.T) {
	cfg := &ServerConfig{ID: "test", Command: "sh", Args: []string{"-c", "cat"}}
	transport := newStdioTransport(cfg, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := transport.connect(ctx); err != nil {
		t.Fatalf("connect() error = %v", err)
	}
	if !transport.connectedState() {
		t.Fatal("expected connected after connect()")
	}

	transport.close()
	if transport.connectedState() {
		t.Error("expected not connected after close()")
	}
}

func TestStdioTransportCloseUnblocksPendingCalls(t *testing.T) {
	// "cat >/dev/null" swallows stdin and never writes to stdout, so no
	// JSON-RPC response ever arrives and the in-flight call must be
	// unblocked by close() rather than by a reply.
	cfg := &ServerConfig{ID: "test", Command: "sh", Args: []string{"-c", "cat >/dev/null"}, CallTimeout: 30 * time.Second}
	transport := newStdioTransport(cfg, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := transport.connect(ctx); err != nil {
		t.Fatalf("connect() error = %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := transport.call(context.Background(), "tools/list", nil)
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	transport.close()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected call() to fail once transport closes")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("call() did not unblock after close()")
	}
}
