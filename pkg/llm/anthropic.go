// Package llm provides ModelProvider implementations that call a
// backend model API directly over HTTP, without any generation/
// streaming/embedding abstraction layer — a chat session only ever
// needs one non-streaming round trip per iteration.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/digitallysavvy/mcphost/pkg/chat"
)

const defaultAnthropicBaseURL = "https://api.anthropic.com"
const anthropicVersion = "2023-06-01"

// AnthropicProvider implements chat.ModelProvider against the
// Anthropic Messages API (POST /v1/messages, non-streaming).
type AnthropicProvider struct {
	apiKey     string
	model      string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
}

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	BaseURL   string // defaults to defaultAnthropicBaseURL
	MaxTokens int    // defaults to 4096
}

// NewAnthropicProvider builds a provider bound to one model.
func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	return &AnthropicProvider{
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		baseURL:   baseURL,
		maxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type anthropicRequest struct {
	Model     string              `json:"model"`
	MaxTokens int                 `json:"max_tokens"`
	Messages  []anthropicMessage  `json:"messages"`
	Tools     []anthropicToolSpec `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type      string      `json:"type"`
	Text      string      `json:"text,omitempty"`
	ID        string      `json:"id,omitempty"`
	Name      string      `json:"name,omitempty"`
	Input     interface{} `json:"input,omitempty"`
	ToolUseID string      `json:"tool_use_id,omitempty"`
	Content   string      `json:"content,omitempty"`
}

type anthropicToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// CreateMessage sends the full history plus the offered tool catalog
// to the Messages API and converts the reply back into a chat.Message.
func (p *AnthropicProvider) CreateMessage(ctx context.Context, history []chat.Message, tools []chat.ToolDescriptor) (chat.Message, error) {
	reqBody := anthropicRequest{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		Messages:  convertHistoryToAnthropic(history),
		Tools:     convertToolsToAnthropic(tools),
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return chat.Message{}, fmt.Errorf("anthropic: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(data))
	if err != nil {
		return chat.Message{}, fmt.Errorf("anthropic: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return chat.Message{}, fmt.Errorf("anthropic: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return chat.Message{}, fmt.Errorf("anthropic: reading response: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return chat.Message{}, fmt.Errorf("anthropic: decoding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return chat.Message{}, fmt.Errorf("anthropic: %s: %s", parsed.Error.Type, parsed.Error.Message)
		}
		return chat.Message{}, fmt.Errorf("anthropic: unexpected status %d", resp.StatusCode)
	}

	return convertAnthropicContentToMessage(parsed.Content), nil
}

func convertHistoryToAnthropic(history []chat.Message) []anthropicMessage {
	out := make([]anthropicMessage, 0, len(history))
	for _, m := range history {
		role := string(m.Role)
		if m.Role == chat.RoleTool {
			role = "user"
		}
		out = append(out, anthropicMessage{Role: role, Content: convertBlocksToAnthropic(m.Content)})
	}
	return out
}

func convertBlocksToAnthropic(blocks []chat.ContentBlock) []anthropicContent {
	out := make([]anthropicContent, 0, len(blocks))
	for _, b := range blocks {
		switch v := b.(type) {
		case chat.TextBlock:
			out = append(out, anthropicContent{Type: "text", Text: v.Text})
		case chat.ToolUseBlock:
			out = append(out, anthropicContent{Type: "tool_use", ID: v.ID, Name: v.Name, Input: v.Input})
		case chat.ToolResultBlock:
			var text string
			for _, item := range v.Content {
				if ri, ok := item.(chat.ResultItemBlock); ok {
					text += ri.DisplayText()
				}
			}
			out = append(out, anthropicContent{Type: "tool_result", ToolUseID: v.ToolUseID, Content: text})
		}
	}
	return out
}

func convertToolsToAnthropic(tools []chat.ToolDescriptor) []anthropicToolSpec {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropicToolSpec, 0, len(tools))
	for _, t := range tools {
		schema := t.InputSchema
		if schema == nil {
			schema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		out = append(out, anthropicToolSpec{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return out
}

func convertAnthropicContentToMessage(content []anthropicContent) chat.Message {
	blocks := make([]chat.ContentBlock, 0, len(content))
	for _, c := range content {
		switch c.Type {
		case "text":
			blocks = append(blocks, chat.TextBlock{Text: c.Text})
		case "tool_use":
			blocks = append(blocks, chat.ToolUseBlock{ID: c.ID, Name: c.Name, Input: c.Input})
		}
	}
	return chat.Message{Role: chat.RoleAssistant, Content: blocks}
}
