package mcpclient

import (
	"context"
	"encoding/json"
	"time"

	"github.com/loomcore/loom/internal/observability"
	"github.com/loomcore/loom/pkg/loom"
)

// AdapterName is the registry name a tool discovered on serverID is
// registered under, disambiguating tools of the same name across
// different external servers.
func AdapterName(serverID, toolName string) string {
	return serverID + ":" + toolName
}

// adapter wraps a single tool discovered on an external server as a
// loom.Tool, delegating Call to the owning client's CallTool.
type adapter struct {
	serverID string
	desc     *ToolDescriptor
	client   *Client
	metrics  *observability.Metrics
}

// NewAdapter wraps desc, discovered on serverID via client, as a loom.Tool.
func NewAdapter(serverID string, desc *ToolDescriptor, client *Client, metrics *observability.Metrics) loom.Tool {
	return &adapter{serverID: serverID, desc: desc, client: client, metrics: metrics}
}

func (a *adapter) Name() string { return AdapterName(a.serverID, a.desc.Name) }

func (a *adapter) Description() string { return a.desc.Description }

func (a *adapter) Parameters() json.RawMessage { return a.desc.InputSchema }

func (a *adapter) Call(ctx context.Context, arguments json.RawMessage) (json.RawMessage, error) {
	start := time.Now()
	result, err := a.client.CallTool(ctx, a.desc.Name, arguments)

	status := "ok"
	if err != nil {
		status = "error"
	} else if result.IsError {
		status = "error"
	}
	if a.metrics != nil {
		a.metrics.MCPCallCounter.WithLabelValues(a.serverID, status).Inc()
		a.metrics.MCPCallDurationVec.WithLabelValues(a.serverID).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		return nil, err
	}
	if result.IsError {
		return nil, newError(KindToolError, "%s", string(result.Content))
	}
	return result.Content, nil
}
