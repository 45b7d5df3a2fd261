// Package mcpclient implements the external tool protocol client: a
// JSON-RPC 2.0 connection to a child process speaking line-delimited
// messages over stdio (initialize/initialized/tools/list/tools/call),
// plus the manager that discovers tools from connected servers and the
// adapter that wraps each one as a registry-compatible loom.Tool.
package mcpclient

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// AcceptedProtocolVersion is the only protocol_version this client
// negotiates. Servers returning anything else are rejected before any
// further traffic, per spec.md §4.4.
const AcceptedProtocolVersion = "2024-11-05"

// ServerConfig describes an external tool server: how to launch it and
// how long to wait for its replies.
type ServerConfig struct {
	ID      string            `yaml:"id" json:"id"`
	Name    string            `yaml:"name" json:"name"`
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args" json:"args,omitempty"`
	Env     map[string]string `yaml:"env" json:"env,omitempty"`
	WorkDir string            `yaml:"workdir" json:"workdir,omitempty"`

	InitializeTimeout time.Duration `yaml:"initialize_timeout" json:"initialize_timeout,omitempty"`
	CallTimeout       time.Duration `yaml:"call_timeout" json:"call_timeout,omitempty"`
	AutoStart         bool          `yaml:"auto_start" json:"auto_start,omitempty"`
}

// Validate checks the server configuration for path traversal before a
// process is ever spawned. Args are not checked for shell metacharacters:
// the transport launches Command directly via exec.CommandContext with no
// intervening shell, so an Args entry like "-c" or a multi-line script
// body is an ordinary argument, not an injection vector.
func (c *ServerConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("server ID is required")
	}
	if c.Command == "" {
		return fmt.Errorf("command is required for server %s", c.ID)
	}
	if err := validatePath(c.Command, "command"); err != nil {
		return fmt.Errorf("server %s: %w", c.ID, err)
	}
	if c.WorkDir != "" {
		if err := validatePath(c.WorkDir, "workdir"); err != nil {
			return fmt.Errorf("server %s: %w", c.ID, err)
		}
	}
	return nil
}

func validatePath(path, fieldName string) error {
	if path == "" {
		return nil
	}
	if strings.Contains(filepath.Clean(path), "..") {
		return fmt.Errorf("%s contains path traversal: %q", fieldName, path)
	}
	return nil
}

// ToolDescriptor is a tool as advertised by an external server's
// tools/list response.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// JSONRPCRequest is a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse is a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCNotification is a JSON-RPC 2.0 notification (no ID).
type JSONRPCNotification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCError is a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Standard JSON-RPC error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ServerInfo identifies the connected server, returned from initialize.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the result of the initialize call.
type InitializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ServerInfo      ServerInfo `json:"serverInfo"`
}

// ListToolsResult is the result of tools/list.
type ListToolsResult struct {
	Tools []*ToolDescriptor `json:"tools"`
}

// CallToolParams holds parameters for tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolCallResult holds the result of calling an external tool. Content
// is either a plain string or a structured array of content parts;
// IsError maps to an Error status with Content as the message.
type ToolCallResult struct {
	Content json.RawMessage `json:"content"`
	IsError bool            `json:"isError,omitempty"`
}
