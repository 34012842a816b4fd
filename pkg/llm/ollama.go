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

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaProvider implements chat.ModelProvider against a local or
// remote Ollama server (POST /api/chat, non-streaming).
type OllamaProvider struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

// OllamaConfig configures an OllamaProvider.
type OllamaConfig struct {
	Model   string
	BaseURL string // defaults to defaultOllamaBaseURL
}

// NewOllamaProvider builds a provider bound to one model.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &OllamaProvider{
		model:   cfg.Model,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function ollamaFunctionCall `json:"function"`
}

type ollamaFunctionCall struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type ollamaTool struct {
	Type     string         `json:"type"`
	Function ollamaFunction `json:"function"`
}

type ollamaFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type ollamaResponse struct {
	Message ollamaMessage `json:"message"`
	Error   string        `json:"error,omitempty"`
}

// CreateMessage sends the full history plus the offered tool catalog
// to /api/chat and converts the reply back into a chat.Message.
func (p *OllamaProvider) CreateMessage(ctx context.Context, history []chat.Message, tools []chat.ToolDescriptor) (chat.Message, error) {
	reqBody := ollamaRequest{
		Model:    p.model,
		Stream:   false,
		Messages: convertHistoryToOllama(history),
		Tools:    convertToolsToOllama(tools),
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return chat.Message{}, fmt.Errorf("ollama: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return chat.Message{}, fmt.Errorf("ollama: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return chat.Message{}, fmt.Errorf("ollama: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return chat.Message{}, fmt.Errorf("ollama: reading response: %w", err)
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return chat.Message{}, fmt.Errorf("ollama: decoding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != "" {
			return chat.Message{}, fmt.Errorf("ollama: %s", parsed.Error)
		}
		return chat.Message{}, fmt.Errorf("ollama: unexpected status %d", resp.StatusCode)
	}

	return convertOllamaMessageToChat(parsed.Message), nil
}

func convertHistoryToOllama(history []chat.Message) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(history))
	for _, m := range history {
		role := string(m.Role)
		if m.Role == chat.RoleTool {
			role = "tool"
		}
		out = append(out, ollamaMessage{Role: role, Content: m.Text(), ToolCalls: convertToolUsesToOllama(m.ToolUses())})
	}
	return out
}

func convertToolUsesToOllama(uses []chat.ToolUseBlock) []ollamaToolCall {
	if len(uses) == 0 {
		return nil
	}
	out := make([]ollamaToolCall, 0, len(uses))
	for _, u := range uses {
		args, _ := u.Input.(map[string]interface{})
		out = append(out, ollamaToolCall{Function: ollamaFunctionCall{Name: u.Name, Arguments: args}})
	}
	return out
}

func convertToolsToOllama(tools []chat.ToolDescriptor) []ollamaTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]ollamaTool, 0, len(tools))
	for _, t := range tools {
		params := t.InputSchema
		if params == nil {
			params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		out = append(out, ollamaTool{
			Type: "function",
			Function: ollamaFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func convertOllamaMessageToChat(m ollamaMessage) chat.Message {
	var blocks []chat.ContentBlock
	if m.Content != "" {
		blocks = append(blocks, chat.TextBlock{Text: m.Content})
	}
	for i, tc := range m.ToolCalls {
		blocks = append(blocks, chat.ToolUseBlock{
			ID:    fmt.Sprintf("call_%d", i),
			Name:  tc.Function.Name,
			Input: tc.Function.Arguments,
		})
	}
	return chat.Message{Role: chat.RoleAssistant, Content: blocks}
}
