package mcpclient

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// fakeServerScript is a tiny shell JSON-RPC 2.0 server: it replies to
// initialize and shutdown, ignores notifications/initialized,
// advertises a single "echo" tool via tools/list, and answers every
// tools/call with the fixed content {"echoed":true}, whatever the
// arguments. It reflects the request's own id
// rather than a hardcoded one, since a test's call sequence (and thus
// the id a given method lands on) varies with what it exercises.
// Good enough to exercise Client.Connect/CallTool/Close end to end
// without a real external tool server.
const fakeServerScript = `
while IFS= read -r line; do
  id=$(printf '%s' "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
  case "$line" in
    *'"method":"initialize"'*)
      printf '{"jsonrpc":"2.0","id":%s,"result":{"protocolVersion":"2024-11-05","serverInfo":{"name":"fake","version":"1.0"}}}\n' "$id"
      ;;
    *'"method":"notifications/initialized"'*)
      ;;
    *'"method":"tools/list"'*)
      printf '{"jsonrpc":"2.0","id":%s,"result":{"tools":[{"name":"echo","description":"echoes input","inputSchema":{}}]}}\n' "$id"
      ;;
    *'"method":"tools/call"'*)
      printf '{"jsonrpc":"2.0","id":%s,"result":{"content":"{\"echoed\":true}","isError":false}}\n' "$id"
      ;;
    *'"method":"shutdown"'*)
      printf '{"jsonrpc":"2.0","id":%s,"result":{}}\n' "$id"
      ;;
  esac
done
`

func fakeServerConfig(id string) *ServerConfig {
	return &ServerConfig{
		ID:          id,
		Command:     "sh",
		Args:        []string{"-c", fakeServerScript},
		CallTimeout: 5 * time.Second,
	}
}

func TestClientConnectReportsServerInfo(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := NewClient(fakeServerConfig("fake"), nil)
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.Connected() {
		t.Error("expected client to report connected")
	}
	if got := client.ServerInfo().Name; got != "fake" {
		t.Errorf("ServerInfo().Name = %q, want %q", got, "fake")
	}
}

func TestClientRefreshToolsDiscoversTools(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := NewClient(fakeServerConfig("fake"), nil)
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	tools := client.Tools()
	if len(tools) != 1 || tools[0].Name != "echo" {
		t.Fatalf("Tools() = %+v, want one tool named echo", tools)
	}
}

func TestClientCallTool(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := NewClient(fakeServerConfig("fake"), nil)
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	result, err := client.CallTool(ctx, "echo", json.RawMessage(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("CallTool() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("CallTool() unexpected error result: %s", result.Content)
	}
	if !strings.Contains(string(result.Content), "echoed") {
		t.Errorf("CallTool() content = %s, want it to contain \"echoed\"", result.Content)
	}
}

func TestClientConnectRejectsUnsupportedProtocolVersion(t *testing.T) {
	const badVersionScript = `
while IFS= read -r line; do
  case "$line" in
    *'"method":"initialize"'*)
      echo '{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"1999-01-01","serverInfo":{"name":"ancient","version":"0.1"}}}'
      ;;
  esac
done
`
	cfg := &ServerConfig{ID: "ancient", Command: "sh", Args: []string{"-c", badVersionScript}, CallTimeout: 5 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := NewClient(cfg, nil)
	err := client.Connect(ctx)
	if err == nil {
		t.Fatal("expected Connect() to reject an unsupported protocol version")
	}
	if !Is(err, KindProtocol) {
		t.Errorf("expected KindProtocol error, got %v", err)
	}
}
