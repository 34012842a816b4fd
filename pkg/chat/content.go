package chat

import "fmt"

// Role identifies who produced a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentBlock is a tagged variant: exactly one of TextBlock,
// ToolUseBlock, ToolResultBlock, ResultItemBlock. BlockType is the tag
// the wire encoding keys off (`{"type": ...}`).
type ContentBlock interface {
	BlockType() string
}

// TextBlock is a plain string body.
type TextBlock struct {
	Text string
}

func (TextBlock) BlockType() string { return "text" }

// ToolUseBlock is an assistant-produced request to execute a named
// tool with a structured input.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input interface{}
}

func (ToolUseBlock) BlockType() string { return "tool_use" }

// ResultItemBlock is one element of a tool result's content list
// carried through verbatim: besides the text a "text" item holds, a
// "image" or "resource" item keeps its data/mimeType/uri instead of
// being collapsed to plain text.
type ResultItemBlock struct {
	Type     string
	Text     string
	Data     string
	MimeType string
	URI      string
}

func (b ResultItemBlock) BlockType() string {
	if b.Type == "" {
		return "text"
	}
	return b.Type
}

// DisplayText returns the text to show for this item in a
// human-facing summary: the item's own text for a "text" item, or a
// bracketed placeholder naming the type/uri for anything else.
func (b ResultItemBlock) DisplayText() string {
	if b.Type == "" || b.Type == "text" {
		return b.Text
	}
	if b.URI != "" {
		return fmt.Sprintf("[%s: %s]", b.Type, b.URI)
	}
	return fmt.Sprintf("[%s]", b.Type)
}

// ToolResultBlock carries the normalized output of a tool execution,
// tagged with the tool_use id it answers. Content preserves every
// item of a well-formed server content list verbatim (ResultItemBlock
// per element); non-list results are reduced to a single text item.
type ToolResultBlock struct {
	ToolUseID string
	Content   []ContentBlock
}

func (ToolResultBlock) BlockType() string { return "tool_result" }

// ResultText builds a single-item content list carrying plain text,
// the common case for errors, raw text results, and fallback
// stringification.
func ResultText(text string) []ContentBlock {
	return []ContentBlock{ResultItemBlock{Type: "text", Text: text}}
}

// Message is a (role, content) pair. A user message contains only
// text blocks; an assistant message contains text and/or tool_use
// blocks; a tool message contains exactly one tool_result block. A
// message with empty content is never stored (enforced by History,
// not by this type).
type Message struct {
	Role    Role
	Content []ContentBlock
}

// HasContent reports whether the message carries at least one block.
func (m Message) HasContent() bool {
	return len(m.Content) > 0
}

// Text concatenates the text of every TextBlock in the message.
func (m Message) Text() string {
	var out string
	for _, b := range m.Content {
		if t, ok := b.(TextBlock); ok {
			out += t.Text
		}
	}
	return out
}

// ToolUses returns every ToolUseBlock in the message, in order.
func (m Message) ToolUses() []ToolUseBlock {
	var out []ToolUseBlock
	for _, b := range m.Content {
		if tu, ok := b.(ToolUseBlock); ok {
			out = append(out, tu)
		}
	}
	return out
}

// NewUserText builds a user message with a single text block.
func NewUserText(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock{Text: text}}}
}

// NewToolResult builds a tool message carrying one tool_result block.
func NewToolResult(toolUseID string, content []ContentBlock) Message {
	return Message{
		Role:    RoleTool,
		Content: []ContentBlock{ToolResultBlock{ToolUseID: toolUseID, Content: content}},
	}
}
