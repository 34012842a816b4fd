package mcp

import (
	"context"
	"encoding/json"
	"testing"
)

// mockTransport implements Transport entirely in-memory, answering
// initialize/tools/list/tools/call inline instead of round-tripping
// through a real process or socket.
type mockTransport struct {
	connected bool
	tools     []Tool
	callErr   *RPCError
	callResp  *CallToolResult
}

func newMockTransport(tools []Tool) *mockTransport {
	return &mockTransport{tools: tools}
}

func (m *mockTransport) Start(ctx context.Context) error {
	m.connected = true
	return nil
}

func (m *mockTransport) Stop(ctx context.Context) error {
	m.connected = false
	return nil
}

func (m *mockTransport) Connected() bool { return m.connected }

func (m *mockTransport) Send(ctx context.Context, msg *Message) (*Message, error) {
	if msg.ID == nil {
		return nil, nil // notification
	}

	switch msg.Method {
	case "initialize":
		result := InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ServerInfo{Name: "test-server", Version: "1.0.0"},
		}
		return response(msg.ID, result), nil
	case "tools/list":
		return response(msg.ID, ListToolsResult{Tools: m.tools}), nil
	case "tools/call":
		if m.callErr != nil {
			return &Message{JSONRpc: "2.0", ID: msg.ID, Error: m.callErr}, nil
		}
		result := m.callResp
		if result == nil {
			result = &CallToolResult{Content: []ResultContent{{Type: "text", Text: "ok"}}}
		}
		return response(msg.ID, result), nil
	default:
		return &Message{JSONRpc: "2.0", ID: msg.ID, Error: &RPCError{Code: ErrorCodeMethodNotFound, Message: "method not found"}}, nil
	}
}

func response(id interface{}, result interface{}) *Message {
	raw, _ := json.Marshal(result)
	return &Message{JSONRpc: "2.0", ID: id, Result: raw}
}

func TestClientInitializeAndListTools(t *testing.T) {
	mt := newMockTransport([]Tool{{Name: "ping", InputSchema: map[string]interface{}{}}})
	client := NewClient(mt, ClientConfig{})

	ctx := context.Background()
	if err := client.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if !client.initialized {
		t.Fatal("expected client to be initialized")
	}

	tools, err := client.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "ping" {
		t.Fatalf("unexpected tools: %+v", tools)
	}
}

func TestClientListToolsLazilyInitializes(t *testing.T) {
	mt := newMockTransport([]Tool{{Name: "ping"}})
	client := NewClient(mt, ClientConfig{})

	tools, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
}

func TestClientCallToolSuccess(t *testing.T) {
	mt := newMockTransport(nil)
	mt.callResp = &CallToolResult{Content: []ResultContent{{Type: "text", Text: "pong"}}}
	client := NewClient(mt, ClientConfig{})

	result, err := client.CallTool(context.Background(), "ping", nil)
	if err != nil {
		t.Fatalf("CallTool returned Go error, want nil: %v", err)
	}
	content, ok := result["content"].([]interface{})
	if !ok || len(content) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestClientCallToolRPCErrorBecomesRecord(t *testing.T) {
	mt := newMockTransport(nil)
	mt.callErr = &RPCError{Code: ErrorCodeInternalError, Message: "boom"}
	client := NewClient(mt, ClientConfig{})

	result, err := client.CallTool(context.Background(), "ping", nil)
	if err != nil {
		t.Fatalf("CallTool must not raise past its boundary, got: %v", err)
	}
	if result["error"] != "boom" {
		t.Fatalf("expected error record, got %+v", result)
	}
}

func TestClientIDsMonotonicallyIncrease(t *testing.T) {
	mt := newMockTransport([]Tool{{Name: "a"}})
	client := NewClient(mt, ClientConfig{})

	ctx := context.Background()
	if err := client.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if client.ids.next != 1 {
		t.Fatalf("expected id counter at 1 after initialize, got %d", client.ids.next)
	}
	if _, err := client.ListTools(ctx); err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if client.ids.next != 2 {
		t.Fatalf("expected id counter at 2 after a second request, got %d", client.ids.next)
	}
}
