package mcp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// TransportKind identifies which transport a ServerSpec configures.
type TransportKind string

const (
	TransportStdio TransportKind = "stdio"
	TransportSSE   TransportKind = "sse"
)

// ServerSpec is immutable configuration for one MCP server. Exactly
// one of (Command, URL) is meaningful, selected by Kind. ServerSpecs
// are created at startup and never mutated.
type ServerSpec struct {
	Name string
	Kind TransportKind

	// stdio
	Command string
	Args    []string
	Env     []string

	// sse
	URL string
}

// ClientManager owns a set of Clients by server name, provides a
// namespaced tool catalog (cached until explicitly refreshed), routes
// `server__tool` calls to the right client, and coordinates a
// bounded-fan-out shutdown of every client it owns.
type ClientManager struct {
	logger Logger

	mu      sync.Mutex
	clients map[string]*Client
	order   []string // server names in the order they were added

	cacheMu   sync.Mutex
	toolCache []ToolDescriptor
	hasCache  bool
}

// ToolDescriptor is a tool re-exposed with its name rewritten to
// `<server>__<tool>`.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// NewClientManager creates an empty manager.
func NewClientManager(logger Logger) *ClientManager {
	return &ClientManager{
		logger:  logOrDiscard(logger),
		clients: make(map[string]*Client),
	}
}

// InitializeAll sequentially constructs and initializes one Client per
// spec, retaining only the ones that initialize successfully. A
// failing one is logged and excluded; it does not abort the rest.
func (m *ClientManager) InitializeAll(ctx context.Context, specs []ServerSpec) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, spec := range specs {
		transport, err := newTransport(spec, m.logger)
		if err != nil {
			m.logger.Printf("mcp manager: skipping server %q: %v", spec.Name, err)
			continue
		}
		client := NewClient(transport, ClientConfig{})
		if err := client.Initialize(ctx); err != nil {
			m.logger.Printf("mcp manager: server %q failed to initialize: %v", spec.Name, err)
			continue
		}
		m.addClientLocked(spec.Name, client)
	}
}

// addClientLocked registers a client under name, recording insertion
// order so catalog refreshes and tool-map collisions are
// deterministic. Callers must hold m.mu.
func (m *ClientManager) addClientLocked(name string, client *Client) {
	if _, exists := m.clients[name]; !exists {
		m.order = append(m.order, name)
	}
	m.clients[name] = client
}

// AddClient registers an already-initialized client under name. Used
// directly by callers (and tests) that construct clients outside of
// InitializeAll.
func (m *ClientManager) AddClient(name string, client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addClientLocked(name, client)
}

// ClientCount reports how many servers currently have an initialized
// client, letting a caller distinguish "no servers configured" from
// "every configured server failed to initialize" after InitializeAll.
func (m *ClientManager) ClientCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

func newTransport(spec ServerSpec, logger Logger) (Transport, error) {
	switch spec.Kind {
	case TransportStdio:
		if spec.Command == "" {
			return nil, fmt.Errorf("stdio server %q missing command", spec.Name)
		}
		return NewStdioTransport(StdioTransportConfig{
			Command: spec.Command,
			Args:    spec.Args,
			Env:     spec.Env,
			Logger:  logger,
		}), nil
	case TransportSSE:
		if spec.URL == "" {
			return nil, fmt.Errorf("sse server %q missing url", spec.Name)
		}
		return NewSSETransport(SSETransportConfig{URL: spec.URL, Logger: logger}), nil
	default:
		return nil, fmt.Errorf("server %q has unknown transport kind %q", spec.Name, spec.Kind)
	}
}

// GetAllTools returns the cached namespaced catalog when skipRefresh
// is true and a cache exists; otherwise it re-lists every client's
// tools, renames each to `<server>__<name>`, concatenates, caches,
// and returns the concatenation. A client that fails to list
// contributes no tools and does not abort the traversal.
func (m *ClientManager) GetAllTools(ctx context.Context, skipRefresh bool) []ToolDescriptor {
	m.cacheMu.Lock()
	if skipRefresh && m.hasCache {
		cached := m.toolCache
		m.cacheMu.Unlock()
		return cached
	}
	m.cacheMu.Unlock()

	m.mu.Lock()
	names := make([]string, 0, len(m.order))
	clients := make(map[string]*Client, len(m.clients))
	for _, name := range m.order {
		if c, ok := m.clients[name]; ok {
			names = append(names, name)
			clients[name] = c
		}
	}
	m.mu.Unlock()

	var all []ToolDescriptor
	for _, name := range names {
		tools, err := clients[name].ListTools(ctx)
		if err != nil {
			m.logger.Printf("mcp manager: list tools from %q failed: %v", name, err)
			continue
		}
		for _, t := range tools {
			all = append(all, ToolDescriptor{
				Name:        name + "__" + t.Name,
				Description: t.Description,
				InputSchema: t.InputSchema,
			})
		}
	}

	m.cacheMu.Lock()
	m.toolCache = all
	m.hasCache = true
	m.cacheMu.Unlock()

	return all
}

// CallTool splits the namespaced name on the first `__`, looks up the
// owning client, and delegates. Failure at any stage yields an
// `{"error": ...}` record rather than a Go error.
func (m *ClientManager) CallTool(ctx context.Context, namespacedName string, arguments map[string]interface{}) map[string]interface{} {
	server, tool, ok := splitNamespaced(namespacedName)
	if !ok {
		return map[string]interface{}{"error": fmt.Sprintf("Invalid tool name format: %s", namespacedName)}
	}

	m.mu.Lock()
	client, ok := m.clients[server]
	m.mu.Unlock()
	if !ok {
		return map[string]interface{}{"error": fmt.Sprintf("Server %s not found", server)}
	}

	result, err := client.CallTool(ctx, tool, arguments)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	return result
}

// splitNamespaced splits on the first "__" separator.
func splitNamespaced(name string) (server, tool string, ok bool) {
	idx := strings.Index(name, "__")
	if idx < 0 {
		return "", "", false
	}
	return name[:idx], name[idx+2:], true
}

// ShutdownAll shuts every client down in parallel with an overall 10s
// budget, then clears the client set. Individual shutdown errors are
// logged and do not abort the others.
func (m *ClientManager) ShutdownAll(ctx context.Context) {
	m.mu.Lock()
	clients := make(map[string]*Client, len(m.clients))
	for name, c := range m.clients {
		clients[name] = c
	}
	m.clients = make(map[string]*Client)
	m.order = nil
	m.mu.Unlock()

	budgetCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(budgetCtx)
	for name, c := range clients {
		name, c := name, c
		g.Go(func() error {
			if err := c.Shutdown(gctx); err != nil {
				m.logger.Printf("mcp manager: shutdown of %q failed: %v", name, err)
			}
			return nil
		})
	}
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-budgetCtx.Done():
		m.logger.Printf("mcp manager: shutdown budget elapsed, abandoning remaining shutdowns")
	}
}
