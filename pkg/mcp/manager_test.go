package mcp

import (
	"context"
	"testing"
)

func TestClientManagerNamespacesAndRoutes(t *testing.T) {
	m := NewClientManager(nil)

	mt1 := newMockTransport([]Tool{{Name: "ping"}})
	mt2 := newMockTransport([]Tool{{Name: "pong"}})
	m.AddClient("alpha", NewClient(mt1, ClientConfig{}))
	m.AddClient("beta", NewClient(mt2, ClientConfig{}))

	ctx := context.Background()
	tools := m.GetAllTools(ctx, false)
	if len(tools) != 2 {
		t.Fatalf("expected 2 namespaced tools, got %d", len(tools))
	}
	seen := map[string]bool{}
	for _, td := range tools {
		seen[td.Name] = true
	}
	if !seen["alpha__ping"] || !seen["beta__pong"] {
		t.Fatalf("unexpected tool names: %+v", tools)
	}
}

func TestClientManagerGetAllToolsCaches(t *testing.T) {
	m := NewClientManager(nil)
	mt := newMockTransport([]Tool{{Name: "ping"}})
	m.AddClient("alpha", NewClient(mt, ClientConfig{}))

	ctx := context.Background()
	first := m.GetAllTools(ctx, false)

	// Change the underlying tool list; a skip-refresh call must still
	// return the cached result.
	mt.tools = []Tool{{Name: "changed"}}
	cached := m.GetAllTools(ctx, true)

	if len(cached) != len(first) || cached[0].Name != first[0].Name {
		t.Fatalf("expected cached result %+v, got %+v", first, cached)
	}
}

func TestClientManagerCallToolInvalidName(t *testing.T) {
	m := NewClientManager(nil)
	result := m.CallTool(context.Background(), "noseparator", nil)
	if result["error"] == nil {
		t.Fatal("expected error for name with no separator")
	}
}

func TestClientManagerCallToolUnknownServer(t *testing.T) {
	m := NewClientManager(nil)
	result := m.CallTool(context.Background(), "ghost__tool", nil)
	if result["error"] != "Server ghost not found" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestClientManagerCallToolRoutes(t *testing.T) {
	m := NewClientManager(nil)
	mt := newMockTransport(nil)
	mt.callResp = &CallToolResult{Content: []ResultContent{{Type: "text", Text: "pong"}}}
	m.AddClient("alpha", NewClient(mt, ClientConfig{}))

	result := m.CallTool(context.Background(), "alpha__ping", nil)
	if result["error"] != nil {
		t.Fatalf("unexpected error: %+v", result)
	}
}

func TestClientManagerShutdownAllClearsClients(t *testing.T) {
	m := NewClientManager(nil)
	m.AddClient("alpha", NewClient(newMockTransport(nil), ClientConfig{}))
	m.AddClient("beta", NewClient(newMockTransport(nil), ClientConfig{}))

	m.ShutdownAll(context.Background())

	if len(m.clients) != 0 {
		t.Fatalf("expected empty client set after ShutdownAll, got %d", len(m.clients))
	}
}

func TestClientManagerClientCount(t *testing.T) {
	m := NewClientManager(nil)
	if got := m.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients on a fresh manager, got %d", got)
	}

	m.AddClient("alpha", NewClient(newMockTransport(nil), ClientConfig{}))
	if got := m.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after AddClient, got %d", got)
	}

	m.ShutdownAll(context.Background())
	if got := m.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients after ShutdownAll, got %d", got)
	}
}

func TestSplitNamespaced(t *testing.T) {
	server, tool, ok := splitNamespaced("alpha__web_fetch")
	if !ok || server != "alpha" || tool != "web_fetch" {
		t.Fatalf("got server=%q tool=%q ok=%v", server, tool, ok)
	}

	if _, _, ok := splitNamespaced("noseparator"); ok {
		t.Fatal("expected ok=false for name without separator")
	}
}
