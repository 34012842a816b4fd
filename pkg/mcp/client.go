package mcp

import (
	"context"
	"fmt"
)

// Client owns a transport and speaks the MCP handshake, tool-list,
// and tool-call protocol over it. It does not raise past its
// boundary for individual tool-call failures: CallTool always
// returns a result, converting server-side errors into an `{error}`
// record instead.
type Client struct {
	transport Transport
	ids       idCounter

	initialized bool
	serverInfo  ServerInfo
	clientInfo  ClientInfo
}

// ClientConfig names this host during the handshake.
type ClientConfig struct {
	ClientName    string
	ClientVersion string
}

// NewClient creates a client bound to transport, not yet initialized.
func NewClient(transport Transport, cfg ClientConfig) *Client {
	if cfg.ClientName == "" {
		cfg.ClientName = "mcphost-python"
	}
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = "0.1.0"
	}
	return &Client{
		transport: transport,
		clientInfo: ClientInfo{
			Name:    cfg.ClientName,
			Version: cfg.ClientVersion,
		},
	}
}

// Initialize starts the transport and performs the MCP handshake. On
// any failure it attempts transport shutdown and returns an error;
// the caller (ClientManager) excludes the server from its set.
func (c *Client) Initialize(ctx context.Context) error {
	if err := c.transport.Start(ctx); err != nil {
		_ = c.transport.Stop(ctx)
		return fmt.Errorf("start transport: %w", err)
	}

	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ClientCapabilities{},
		ClientInfo:      c.clientInfo,
	}
	req, err := newRequest(c.ids.Next(), "initialize", params)
	if err != nil {
		_ = c.transport.Stop(ctx)
		return err
	}
	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		_ = c.transport.Stop(ctx)
		return fmt.Errorf("initialize: %w", err)
	}
	if resp.Error != nil {
		_ = c.transport.Stop(ctx)
		return fmt.Errorf("initialize: %w", errFromRPC(resp.Error))
	}

	var result InitializeResult
	if err := parseResult(resp, &result); err != nil {
		_ = c.transport.Stop(ctx)
		return fmt.Errorf("parse initialize result: %w", err)
	}
	c.serverInfo = result.ServerInfo

	notif, err := newNotification("notifications/initialized", nil)
	if err != nil {
		_ = c.transport.Stop(ctx)
		return err
	}
	if _, err := c.transport.Send(ctx, notif); err != nil {
		_ = c.transport.Stop(ctx)
		return fmt.Errorf("send initialized notification: %w", err)
	}

	c.initialized = true
	return nil
}

// ListTools sends `tools/list` and returns its tools, or an empty
// list on any error (logged by the caller). Lazily initializes if
// not already initialized.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	if !c.initialized {
		if err := c.Initialize(ctx); err != nil {
			return nil, err
		}
	}

	req, err := newRequest(c.ids.Next(), "tools/list", struct{}{})
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, errFromRPC(resp.Error)
	}

	var result ListToolsResult
	if err := parseResult(resp, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool sends `tools/call` with the given name and arguments. It
// never returns an error for server-side or transport failures: those
// are converted into a `{"error": "..."}` record so the caller can
// fold the outcome straight into result normalization.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]interface{}) (map[string]interface{}, error) {
	if !c.initialized {
		if err := c.Initialize(ctx); err != nil {
			return map[string]interface{}{"error": err.Error()}, nil
		}
	}

	params := CallToolParams{Name: name, Arguments: arguments}
	req, err := newRequest(c.ids.Next(), "tools/call", params)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}, nil
	}
	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}, nil
	}
	if resp.Error != nil {
		return map[string]interface{}{"error": resp.Error.Message}, nil
	}

	var result CallToolResult
	if err := parseResult(resp, &result); err != nil {
		return map[string]interface{}{"error": err.Error()}, nil
	}

	content := make([]interface{}, 0, len(result.Content))
	for _, c := range result.Content {
		content = append(content, map[string]interface{}{
			"type":     c.Type,
			"text":     c.Text,
			"data":     c.Data,
			"mimeType": c.MimeType,
			"uri":      c.URI,
		})
	}
	return map[string]interface{}{"content": content, "isError": result.IsError}, nil
}

// Shutdown disconnects the transport. Idempotent.
func (c *Client) Shutdown(ctx context.Context) error {
	c.initialized = false
	return c.transport.Stop(ctx)
}

// ServerInfo returns the identity the server reported at handshake.
func (c *Client) ServerInfo() ServerInfo {
	return c.serverInfo
}
