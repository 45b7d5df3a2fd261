// Command loom-echo-tool is a standalone external tool server: it
// speaks line-delimited JSON-RPC 2.0 over stdin/stdout and advertises a
// single "echo" tool, for exercising internal/mcpclient end to end
// without depending on a real third-party MCP server.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

const protocolVersion = "2024-11-05"

type jsonrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type toolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type toolCallResult struct {
	Content json.RawMessage `json:"content"`
	IsError bool            `json:"isError,omitempty"`
}

var echoTool = toolDescriptor{
	Name:        "echo",
	Description: "returns its arguments unchanged",
	InputSchema: json.RawMessage(`{"type":"object","properties":{"message":{"type":"string"}}}`),
}

func main() {
	reader := bufio.NewScanner(os.Stdin)
	reader.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	writer := bufio.NewWriter(os.Stdout)

	for reader.Scan() {
		line := reader.Bytes()
		if len(line) == 0 {
			continue
		}

		var req jsonrpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}

		// A request has an id; a notification does not and gets no reply.
		if req.ID == nil {
			continue
		}

		resp := handle(req)
		encoded, err := json.Marshal(resp)
		if err != nil {
			continue
		}
		writer.Write(encoded)
		writer.WriteByte('\n')
		writer.Flush()
	}
}

func handle(req jsonrpcRequest) jsonrpcResponse {
	switch req.Method {
	case "initialize":
		result, _ := json.Marshal(map[string]any{
			"protocolVersion": protocolVersion,
			"serverInfo":      map[string]string{"name": "loom-echo-tool", "version": "1.0.0"},
		})
		return jsonrpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
	case "tools/list":
		result, _ := json.Marshal(map[string]any{"tools": []toolDescriptor{echoTool}})
		return jsonrpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
	case "tools/call":
		return handleCall(req)
	case "shutdown":
		return jsonrpcResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage("{}")}
	default:
		return jsonrpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &jsonrpcError{Code: -32601, Message: "method not found: " + req.Method}}
	}
}

func handleCall(req jsonrpcRequest) jsonrpcResponse {
	var params callToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return jsonrpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &jsonrpcError{Code: -32602, Message: "invalid params: " + err.Error()}}
	}
	if params.Name != echoTool.Name {
		result, _ := json.Marshal(toolCallResult{Content: mustJSON(fmt.Sprintf("unknown tool %q", params.Name)), IsError: true})
		return jsonrpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
	}
	result, _ := json.Marshal(toolCallResult{Content: params.Arguments})
	return jsonrpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func mustJSON(v string) json.RawMessage {
	out, _ := json.Marshal(v)
	return out
}
