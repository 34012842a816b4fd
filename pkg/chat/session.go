package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/digitallysavvy/mcphost/pkg/mcp"
)

// maxIterations is the iteration cap N: at most this many model
// invocations per call to ProcessPrompt.
const maxIterations = 5

// sentinelReply is returned verbatim when the iteration cap is
// reached without the model producing a final text answer.
const sentinelReply = "I've reached the maximum number of tool interactions (5)."

// Logger is the diagnostic sink a ChatSession is constructed with.
// Mirrors mcp.Logger so callers can share one implementation across
// both packages. The session itself writes nothing to it: tool-map
// collisions and dispatch failures are not logged.
type Logger interface {
	Printf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

// ToolCaller is the subset of *mcp.ClientManager a ChatSession needs.
// Narrowing to an interface keeps this package testable without a
// real ClientManager.
type ToolCaller interface {
	GetAllTools(ctx context.Context, skipRefresh bool) []mcp.ToolDescriptor
	CallTool(ctx context.Context, namespacedName string, arguments map[string]interface{}) map[string]interface{}
}

// ChatSession maintains bounded message history, offers a namespaced
// tool catalog to a ModelProvider, dispatches the tool calls the
// model requests, and re-prompts until the model returns a plain text
// reply or the iteration cap is reached.
type ChatSession struct {
	provider ModelProvider
	tools    ToolCaller
	history  *History
	logger   Logger

	mu      sync.Mutex
	toolMap map[string]string // unqualified or namespaced -> namespaced
	catalog []ToolDescriptor

	// limiter bounds the rate of outbound tools/call dispatch within
	// one assistant turn; a burst of tool_use blocks from a single
	// model reply is throttled rather than fired all at once.
	limiter *rate.Limiter
}

// NewChatSession creates a session over the given provider and tool
// caller, with history bounded to window (DefaultWindow if <= 0).
func NewChatSession(provider ModelProvider, tools ToolCaller, window int, logger Logger) *ChatSession {
	if logger == nil {
		logger = noopLogger{}
	}
	return &ChatSession{
		provider: provider,
		tools:    tools,
		history:  NewHistory(window),
		logger:   logger,
		toolMap:  make(map[string]string),
		limiter:  rate.NewLimiter(rate.Limit(20), 5),
	}
}

// ProcessPrompt is the entry point: it appends text as a user turn
// and iterates the model/tool loop at most maxIterations times,
// returning the final assistant text.
func (s *ChatSession) ProcessPrompt(ctx context.Context, text string) (string, error) {
	for iteration := 0; iteration < maxIterations; iteration++ {
		if iteration == 0 {
			s.history.Append(NewUserText(text))
			s.refreshToolMapping(ctx)
		}

		var offered []ToolDescriptor
		if iteration != maxIterations-1 {
			offered = s.currentCatalog()
		}

		assistant, err := s.provider.CreateMessage(ctx, s.history.Messages(), offered)
		if err != nil {
			return "", fmt.Errorf("model invocation: %w", err)
		}
		s.history.Append(assistant)

		toolUses := assistant.ToolUses()
		if len(toolUses) == 0 {
			if t := assistant.Text(); t != "" {
				return t, nil
			}
			return s.generateFallback(), nil
		}

		for _, tu := range toolUses {
			if err := s.limiter.Wait(ctx); err != nil {
				return "", err
			}
			s.dispatchToolUse(ctx, tu)
		}
	}

	return sentinelReply, nil
}

func (s *ChatSession) currentCatalog() []ToolDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog
}

// refreshToolMapping performs a forced (non-cached) catalog refresh
// and rebuilds the unqualified -> namespaced tool map. Later entries
// overwrite earlier ones on unqualified-suffix collision
// (last-writer-wins, per the Open Question decision in SPEC_FULL.md).
func (s *ChatSession) refreshToolMapping(ctx context.Context) {
	descriptors := s.tools.GetAllTools(ctx, false)

	catalog := make([]ToolDescriptor, 0, len(descriptors))
	toolMap := make(map[string]string, len(descriptors)*2)
	for _, d := range descriptors {
		catalog = append(catalog, ToolDescriptor{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		})
		toolMap[d.Name] = d.Name
		if _, unqualified, ok := strings.Cut(d.Name, "__"); ok {
			toolMap[unqualified] = d.Name
		}
	}

	s.mu.Lock()
	s.catalog = catalog
	s.toolMap = toolMap
	s.mu.Unlock()
}

// resolveToolName returns the namespaced name for a model-supplied
// tool name: used as-is if already namespaced, else looked up in the
// tool map.
func (s *ChatSession) resolveToolName(name string) (string, bool) {
	if strings.Contains(name, "__") {
		return name, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	namespaced, ok := s.toolMap[name]
	return namespaced, ok
}

// dispatchToolUse resolves, post-processes arguments for, calls, and
// appends the result of one tool_use block. It never propagates an
// error out of ProcessPrompt: every failure becomes a tool_result or
// error text block instead.
func (s *ChatSession) dispatchToolUse(ctx context.Context, tu ToolUseBlock) {
	input := normalizeToolInput(tu.Input)

	namespaced, ok := s.resolveToolName(tu.Name)
	if !ok {
		s.history.Append(NewToolResult(tu.ID, ResultText(
			fmt.Sprintf("Error: Tool '%s' not found or not available in any connected server.", tu.Name),
		)))
		return
	}

	args, ok := input.(map[string]interface{})
	if !ok {
		args = map[string]interface{}{}
	}
	args = postProcessArguments(namespaced, args)

	result := s.tools.CallTool(ctx, namespaced, args)
	content := normalizeResult(result)
	s.history.Append(NewToolResult(tu.ID, content))
}

// normalizeToolInput parses a string input as JSON, falling back to
// {"input": <string>} on failure; a nil input becomes {}.
func normalizeToolInput(input interface{}) interface{} {
	switch v := input.(type) {
	case nil:
		return map[string]interface{}{}
	case string:
		var parsed interface{}
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			return parsed
		}
		return map[string]interface{}{"input": v}
	default:
		return v
	}
}

// postProcessArguments defaults max_length/start_index for tools
// whose resolved name ends with "fetch" when those keys are
// present-but-null, applied before the general null-value drop.
func postProcessArguments(resolvedName string, args map[string]interface{}) map[string]interface{} {
	if strings.HasSuffix(resolvedName, "fetch") {
		if v, present := args["max_length"]; present && v == nil {
			args["max_length"] = 5000
		}
		if v, present := args["start_index"]; present && v == nil {
			args["start_index"] = 0
		}
	}

	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

// generateFallback synthesizes a reply for when the model returns no
// text and no further tool calls: recent tool payload, else recent
// user turn, else a generic clarification.
func (s *ChatSession) generateFallback() string {
	messages := s.history.Messages()

	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != RoleTool {
			continue
		}
		for _, b := range m.Content {
			tr, ok := b.(ToolResultBlock)
			if !ok || len(tr.Content) == 0 {
				continue
			}
			item, ok := tr.Content[0].(ResultItemBlock)
			if !ok {
				continue
			}
			payload := item.DisplayText()
			if payload == "" {
				continue
			}
			if name := toolNameFor(messages[:i], tr.ToolUseID); name != "" {
				return fmt.Sprintf("I retrieved the following information using the %s tool:\n\n%s", name, truncate(payload, 500))
			}
			return fmt.Sprintf("I retrieved the following information:\n\n%s", truncate(payload, 500))
		}
		break
	}

	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != RoleUser {
			continue
		}
		text := m.Text()
		if text == "" {
			continue
		}
		return fmt.Sprintf("I'm not sure how to respond. Could you clarify what you meant by: %q?", truncate(text, 50))
	}

	return "I'm not sure how to respond to that. Could you please provide more details or rephrase your request?"
}

// toolNameFor finds the tool_use block matching toolUseID in the
// messages preceding a tool_result, so the fallback can optionally
// name the tool that produced the information it is summarizing.
func toolNameFor(preceding []Message, toolUseID string) string {
	for i := len(preceding) - 1; i >= 0; i-- {
		for _, tu := range preceding[i].ToolUses() {
			if tu.ID == toolUseID {
				return tu.Name
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// normalizeResult applies the result-normalization cascade, in order,
// to the raw map a ClientManager.CallTool returns.
func normalizeResult(result map[string]interface{}) []ContentBlock {
	// Rule 1: a well-formed content list is carried through verbatim,
	// one ResultItemBlock per element, so non-text items (image data,
	// resource uri/mimeType) survive instead of being collapsed to text.
	if rawContent, ok := result["content"]; ok {
		if list, ok := rawContent.([]interface{}); ok && wellFormedContentList(list) {
			return contentListToBlocks(list)
		}
	}

	// Rule 3: an error field.
	if errVal, ok := result["error"]; ok {
		return ResultText(fmt.Sprintf("Error: %v", errVal))
	}

	// Rule 4: a text field.
	if textVal, ok := result["text"]; ok {
		if s, ok := textVal.(string); ok {
			return ResultText(s)
		}
	}

	// Rule 5: stringify the whole mapping as indented JSON.
	if len(result) > 0 {
		if data, err := json.MarshalIndent(result, "", "  "); err == nil {
			return ResultText(string(data))
		}
	}

	// Rule 6: fallback stringification.
	return ResultText(fmt.Sprintf("%v", result))
}

func wellFormedContentList(list []interface{}) bool {
	if len(list) == 0 {
		return false
	}
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return false
		}
		if _, hasType := m["type"]; !hasType {
			return false
		}
	}
	return true
}

// contentListToBlocks converts a well-formed server content list into
// ResultItemBlocks, keeping every field a non-text item carries.
func contentListToBlocks(list []interface{}) []ContentBlock {
	out := make([]ContentBlock, 0, len(list))
	for _, item := range list {
		m := item.(map[string]interface{})
		out = append(out, ResultItemBlock{
			Type:     stringField(m, "type"),
			Text:     stringField(m, "text"),
			Data:     stringField(m, "data"),
			MimeType: stringField(m, "mimeType"),
			URI:      stringField(m, "uri"),
		})
	}
	if len(out) == 0 {
		out = append(out, ResultItemBlock{Type: "text"})
	}
	return out
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
