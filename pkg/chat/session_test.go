package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitallysavvy/mcphost/pkg/mcp"
)

type stubTools struct {
	catalog  []mcp.ToolDescriptor
	calls    []string
	callResp map[string]map[string]interface{}
}

func (s *stubTools) GetAllTools(ctx context.Context, skipRefresh bool) []mcp.ToolDescriptor {
	return s.catalog
}

func (s *stubTools) CallTool(ctx context.Context, name string, args map[string]interface{}) map[string]interface{} {
	s.calls = append(s.calls, name)
	if resp, ok := s.callResp[name]; ok {
		return resp
	}
	return map[string]interface{}{"text": "ok"}
}

type scriptedProvider struct {
	replies []Message
	calls   int
}

func (p *scriptedProvider) CreateMessage(ctx context.Context, history []Message, tools []ToolDescriptor) (Message, error) {
	reply := p.replies[p.calls]
	p.calls++
	return reply, nil
}

func textReply(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentBlock{TextBlock{Text: text}}}
}

func toolUseReply(id, name string, input interface{}) Message {
	return Message{Role: RoleAssistant, Content: []ContentBlock{ToolUseBlock{ID: id, Name: name, Input: input}}}
}

func TestProcessPromptReturnsTextWithoutTools(t *testing.T) {
	provider := &scriptedProvider{replies: []Message{textReply("hello there")}}
	tools := &stubTools{}
	session := NewChatSession(provider, tools, 0, nil)

	reply, err := session.ProcessPrompt(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello there", reply)
	assert.Equal(t, 1, provider.calls)
}

func TestProcessPromptDispatchesNamespacedTool(t *testing.T) {
	provider := &scriptedProvider{replies: []Message{
		toolUseReply("1", "weather__forecast", map[string]interface{}{"city": "nyc"}),
		textReply("it is sunny"),
	}}
	tools := &stubTools{
		catalog: []mcp.ToolDescriptor{{Name: "weather__forecast"}},
	}
	session := NewChatSession(provider, tools, 0, nil)

	reply, err := session.ProcessPrompt(context.Background(), "weather?")
	require.NoError(t, err)
	assert.Equal(t, "it is sunny", reply)
	require.Len(t, tools.calls, 1)
	assert.Equal(t, "weather__forecast", tools.calls[0])
}

func TestProcessPromptResolvesUnqualifiedToolName(t *testing.T) {
	provider := &scriptedProvider{replies: []Message{
		toolUseReply("1", "forecast", nil),
		textReply("done"),
	}}
	tools := &stubTools{
		catalog: []mcp.ToolDescriptor{{Name: "weather__forecast"}},
	}
	session := NewChatSession(provider, tools, 0, nil)

	_, err := session.ProcessPrompt(context.Background(), "weather?")
	require.NoError(t, err)
	require.Len(t, tools.calls, 1)
	assert.Equal(t, "weather__forecast", tools.calls[0])
}

func TestProcessPromptUnknownToolProducesErrorResult(t *testing.T) {
	provider := &scriptedProvider{replies: []Message{
		toolUseReply("1", "ghost", nil),
		textReply("ok then"),
	}}
	tools := &stubTools{}
	session := NewChatSession(provider, tools, 0, nil)

	reply, err := session.ProcessPrompt(context.Background(), "do a thing")
	require.NoError(t, err)
	assert.Equal(t, "ok then", reply)
	assert.Empty(t, tools.calls)
}

func TestProcessPromptStopsAtIterationCapWithSentinel(t *testing.T) {
	replies := make([]Message, 0, maxIterations)
	for i := 0; i < maxIterations; i++ {
		replies = append(replies, toolUseReply("id", "svc__tool", nil))
	}
	provider := &scriptedProvider{replies: replies}
	tools := &stubTools{catalog: []mcp.ToolDescriptor{{Name: "svc__tool"}}}
	session := NewChatSession(provider, tools, 0, nil)

	reply, err := session.ProcessPrompt(context.Background(), "loop forever")
	require.NoError(t, err)
	assert.Equal(t, sentinelReply, reply)
	assert.Equal(t, maxIterations, provider.calls)
}

func TestProcessPromptWithholdsToolsOnFinalIteration(t *testing.T) {
	replies := make([]Message, 0, maxIterations)
	for i := 0; i < maxIterations-1; i++ {
		replies = append(replies, toolUseReply("id", "svc__tool", nil))
	}
	replies = append(replies, textReply("forced final answer"))

	var seenToolsOnLastCall []ToolDescriptor
	provider := &recordingProvider{
		replies: replies,
		onCall: func(tools []ToolDescriptor, callNum int) {
			if callNum == maxIterations {
				seenToolsOnLastCall = tools
			}
		},
	}
	tools := &stubTools{catalog: []mcp.ToolDescriptor{{Name: "svc__tool"}}}
	session := NewChatSession(provider, tools, 0, nil)

	reply, err := session.ProcessPrompt(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "forced final answer", reply)
	assert.Empty(t, seenToolsOnLastCall)
}

type recordingProvider struct {
	replies []Message
	calls   int
	onCall  func(tools []ToolDescriptor, callNum int)
}

func (p *recordingProvider) CreateMessage(ctx context.Context, history []Message, tools []ToolDescriptor) (Message, error) {
	p.calls++
	if p.onCall != nil {
		p.onCall(tools, p.calls)
	}
	reply := p.replies[p.calls-1]
	return reply, nil
}

func TestPostProcessArgumentsDropsNullAndDefaultsFetch(t *testing.T) {
	args := map[string]interface{}{
		"url":         "http://example.com",
		"max_length":  nil,
		"start_index": nil,
		"unused":      nil,
	}
	out := postProcessArguments("docs__fetch", args)
	assert.Equal(t, "http://example.com", out["url"])
	assert.Equal(t, 5000, out["max_length"])
	assert.Equal(t, 0, out["start_index"])
	_, present := out["unused"]
	assert.False(t, present)
}

func TestPostProcessArgumentsLeavesNonFetchToolsAlone(t *testing.T) {
	args := map[string]interface{}{"max_length": nil, "q": "hi"}
	out := postProcessArguments("search__query", args)
	_, present := out["max_length"]
	assert.False(t, present)
	assert.Equal(t, "hi", out["q"])
}

func TestNormalizeResultPrefersErrorField(t *testing.T) {
	blocks := normalizeResult(map[string]interface{}{"error": "boom"})
	require.Len(t, blocks, 1)
	assert.Equal(t, "Error: boom", blocks[0].(ResultItemBlock).Text)
}

func TestNormalizeResultPrefersTextField(t *testing.T) {
	blocks := normalizeResult(map[string]interface{}{"text": "plain text"})
	require.Len(t, blocks, 1)
	assert.Equal(t, "plain text", blocks[0].(ResultItemBlock).Text)
}

func TestNormalizeResultFlattensContentList(t *testing.T) {
	result := map[string]interface{}{
		"content": []interface{}{
			map[string]interface{}{"type": "text", "text": "first"},
			map[string]interface{}{"type": "text", "text": "second"},
		},
	}
	blocks := normalizeResult(result)
	require.Len(t, blocks, 2)
	assert.Equal(t, "first", blocks[0].(ResultItemBlock).Text)
	assert.Equal(t, "second", blocks[1].(ResultItemBlock).Text)
}

func TestNormalizeResultPreservesNonTextContentItems(t *testing.T) {
	result := map[string]interface{}{
		"content": []interface{}{
			map[string]interface{}{"type": "image", "data": "base64stuff", "mimeType": "image/png"},
			map[string]interface{}{"type": "resource", "uri": "file:///tmp/report.pdf", "mimeType": "application/pdf"},
		},
	}
	blocks := normalizeResult(result)
	require.Len(t, blocks, 2)

	image := blocks[0].(ResultItemBlock)
	assert.Equal(t, "image", image.Type)
	assert.Equal(t, "base64stuff", image.Data)
	assert.Equal(t, "image/png", image.MimeType)

	resource := blocks[1].(ResultItemBlock)
	assert.Equal(t, "resource", resource.Type)
	assert.Equal(t, "file:///tmp/report.pdf", resource.URI)
	assert.Equal(t, "application/pdf", resource.MimeType)
}

func TestGenerateFallbackUsesMostRecentToolResult(t *testing.T) {
	session := NewChatSession(&scriptedProvider{}, &stubTools{}, 0, nil)
	session.history.Append(NewUserText("find docs"))
	session.history.Append(NewToolResult("1", ResultText("lots of useful info")))

	reply := session.generateFallback()
	assert.Contains(t, reply, "lots of useful info")
}

func TestGenerateFallbackFallsBackToUserClarification(t *testing.T) {
	session := NewChatSession(&scriptedProvider{}, &stubTools{}, 0, nil)
	session.history.Append(NewUserText("what about the weather today"))

	reply := session.generateFallback()
	assert.Contains(t, reply, "weather today")
}

func TestGenerateFallbackGenericWhenHistoryEmpty(t *testing.T) {
	session := NewChatSession(&scriptedProvider{}, &stubTools{}, 0, nil)
	reply := session.generateFallback()
	assert.Equal(t, "I'm not sure how to respond to that. Could you please provide more details or rephrase your request?", reply)
}
