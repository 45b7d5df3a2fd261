package mcpclient

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Client is an external-tool-protocol connection to a single server.
type Client struct {
	cfg       *ServerConfig
	transport *stdioTransport
	logger    *slog.Logger

	mu         sync.RWMutex
	tools      []*ToolDescriptor
	serverInfo ServerInfo
}

// NewClient constructs a Client for cfg. logger may be nil.
func NewClient(cfg *ServerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mcpclient")
	return &Client{
		cfg:       cfg,
		transport: newStdioTransport(cfg, logger),
		logger:    logger,
	}
}

// Connect spawns the server process, performs the initialize handshake
// validating the negotiated protocol version, sends the initialized
// notification, and refreshes the tool list.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transport.connect(ctx); err != nil {
		return err
	}

	result, err := c.transport.call(ctx, "initialize", map[string]any{
		"protocolVersion": AcceptedProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "loom", "version": "1.0.0"},
	})
	if err != nil {
		c.transport.close()
		return err
	}

	var initResult InitializeResult
	if jsonErr := json.Unmarshal(result, &initResult); jsonErr != nil {
		c.transport.close()
		return newError(KindProtocol, "parse initialize result: %v", jsonErr)
	}

	if initResult.ProtocolVersion != AcceptedProtocolVersion {
		c.transport.close()
		return newError(KindProtocol, "unsupported protocol version %q (accepted: %q)",
			initResult.ProtocolVersion, AcceptedProtocolVersion)
	}

	c.mu.Lock()
	c.serverInfo = initResult.ServerInfo
	c.mu.Unlock()

	c.logger.Info("connected to external tool server",
		"server", c.cfg.ID, "name", initResult.ServerInfo.Name, "protocol", initResult.ProtocolVersion)

	if err := c.transport.notify("notifications/initialized", nil); err != nil {
		c.logger.Warn("failed to send initialized notification", "error", err)
	}

	return c.RefreshTools(ctx)
}

// RefreshTools calls tools/list and replaces the cached tool set.
func (c *Client) RefreshTools(ctx context.Context) error {
	result, err := c.transport.call(ctx, "tools/list", nil)
	if err != nil {
		return err
	}
	var resp ListToolsResult
	if err := json.Unmarshal(result, &resp); err != nil {
		return newError(KindProtocol, "parse tools/list result: %v", err)
	}

	c.mu.Lock()
	c.tools = resp.Tools
	c.mu.Unlock()
	return nil
}

// Tools returns the most recently discovered tool set.
func (c *Client) Tools() []*ToolDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

// ServerInfo returns the connected server's identity.
func (c *Client) ServerInfo() ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// Connected reports whether the underlying transport is live.
func (c *Client) Connected() bool {
	return c.transport.connectedState()
}

// CallTool invokes name on the connected server.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (*ToolCallResult, error) {
	params := CallToolParams{Name: name, Arguments: arguments}
	result, err := c.transport.call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}
	var callResult ToolCallResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return nil, newError(KindProtocol, "parse tools/call result: %v", err)
	}
	return &callResult, nil
}

// shutdownTimeout bounds how long Close waits for a shutdown response
// before tearing the transport down regardless.
const shutdownTimeout = 2 * time.Second

// Close shuts the connection down, sending a shutdown request if the
// transport is still live, then tearing down the process regardless
// of whether the server answers it.
func (c *Client) Close() error {
	if c.transport.connectedState() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if _, err := c.transport.call(ctx, "shutdown", nil); err != nil {
			c.logger.Debug("shutdown request did not complete, tearing down anyway", "error", err)
		}
	}
	return c.transport.close()
}

// Events returns the channel of unsolicited server notifications.
func (c *Client) Events() <-chan *JSONRPCNotification {
	return c.transport.events_()
}
