package mcpclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loomcore/loom/internal/observability"
	"github.com/loomcore/loom/internal/registry"
)

// Config holds the external tool manager's tunables.
type Config struct {
	Enabled           bool           `yaml:"enabled"`
	Servers           []ServerConfig `yaml:"servers"`
	InitializeTimeout int64          `yaml:"initialize_timeout_ms"`
	CallTimeout       int64          `yaml:"call_timeout_ms"`
}

// DefaultConfig returns a Config with the spec's default timeouts.
func DefaultConfig() Config {
	return Config{
		InitializeTimeout: 10_000,
		CallTimeout:       DefaultCallTimeout.Milliseconds(),
	}
}

// Manager owns one Client per connected external tool server and keeps
// the shared tool registry in sync with each server's advertised tools.
type Manager struct {
	cfg      Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	registry *registry.Registry

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewManager constructs a Manager. logger and metrics may be nil.
// Server commands and launched processes' stderr can carry secrets
// (tokens passed as launcher args, leaked env values in error output),
// so the manager and every Client it creates log through a redacting
// handler rather than logger directly.
func NewManager(cfg Config, reg *registry.Registry, logger *slog.Logger, metrics *observability.Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	logger = observability.NewRedactingLogger(logger)
	return &Manager{
		cfg:      cfg,
		logger:   logger.With("component", "mcpclient.manager"),
		metrics:  metrics,
		registry: reg,
		clients:  make(map[string]*Client),
	}
}

// Start connects to every configured server with AutoStart set.
func (m *Manager) Start(ctx context.Context) error {
	if !m.cfg.Enabled {
		return nil
	}
	for i := range m.cfg.Servers {
		srv := m.cfg.Servers[i]
		if !srv.AutoStart {
			continue
		}
		if err := m.AddServer(ctx, &srv); err != nil {
			m.logger.Error("failed to connect external tool server", "server", srv.ID, "error", err)
		}
	}
	return nil
}

// AddServer validates cfg, rejects a duplicate server_name, connects,
// discovers tools, and registers one adapter per tool with the shared
// registry. On failure, no state is altered.
func (m *Manager) AddServer(ctx context.Context, cfg *ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.RLock()
	_, exists := m.clients[cfg.ID]
	m.mu.RUnlock()
	if exists {
		return fmt.Errorf("mcpclient: server %q already registered", cfg.ID)
	}

	if cfg.CallTimeout <= 0 && m.cfg.CallTimeout > 0 {
		cfg.CallTimeout = durationMs(m.cfg.CallTimeout)
	}

	client := NewClient(cfg, m.logger)
	if err := client.Connect(ctx); err != nil {
		return err
	}

	m.registerTools(cfg.ID, client)

	m.mu.Lock()
	m.clients[cfg.ID] = client
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.MCPConnectedGauge.WithLabelValues(cfg.ID).Set(1)
	}
	return nil
}

// RemoveServer deregisters adapters, disconnects, and removes the
// server from the manager, always removing the in-memory record even
// if disconnecting fails.
func (m *Manager) RemoveServer(serverID string) error {
	m.mu.Lock()
	client, ok := m.clients[serverID]
	delete(m.clients, serverID)
	m.mu.Unlock()
	if !ok {
		return nil
	}

	for _, tool := range client.Tools() {
		m.registry.Unregister(AdapterName(serverID, tool.Name))
	}
	if m.metrics != nil {
		m.metrics.MCPConnectedGauge.WithLabelValues(serverID).Set(0)
	}
	return client.Close()
}

// ReconnectServer tears a server's connection down and reconnects it,
// re-discovering tools: the registry is updated to reflect any change
// in the server's advertised tool set.
func (m *Manager) ReconnectServer(ctx context.Context, serverID string) error {
	m.mu.RLock()
	client, ok := m.clients[serverID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("mcpclient: server %q not connected", serverID)
	}

	cfg := client.cfg
	for _, tool := range client.Tools() {
		m.registry.Unregister(AdapterName(serverID, tool.Name))
	}
	client.Close()

	newClient := NewClient(cfg, m.logger)
	if err := newClient.Connect(ctx); err != nil {
		return err
	}
	m.registerTools(serverID, newClient)

	m.mu.Lock()
	m.clients[serverID] = newClient
	m.mu.Unlock()
	return nil
}

func (m *Manager) registerTools(serverID string, client *Client) {
	for _, tool := range client.Tools() {
		m.registry.Register(NewAdapter(serverID, tool, client, m.metrics))
	}
}

// Client returns the client for serverID, if connected.
func (m *Manager) Client(serverID string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[serverID]
	return c, ok
}

// Status reports connectivity and tool counts for every configured server.
type Status struct {
	ID        string
	Connected bool
	Tools     int
}

// Statuses returns the status of every configured server.
func (m *Manager) Statuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]Status, 0, len(m.cfg.Servers))
	for _, cfg := range m.cfg.Servers {
		st := Status{ID: cfg.ID}
		if client, ok := m.clients[cfg.ID]; ok {
			st.Connected = client.Connected()
			st.Tools = len(client.Tools())
		}
		statuses = append(statuses, st)
	}
	return statuses
}

// Stop disconnects every connected server.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, client := range m.clients {
		client.Close()
		delete(m.clients, id)
	}
}

func durationMs(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }
