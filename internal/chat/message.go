// Package chat implements the conversation core of the proxy: retrieved
// context injection, projection of UI history onto the completion wire
// format, reassembly of streamed completions, and the tool-call round loop.
package chat

import (
	"github.com/tjfontaine/rag-chat-proxy/internal/api/openai"
)

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one function call requested by the model. Index correlates
// stream fragments and is dropped from the wire format.
type ToolCall struct {
	Index     int
	ID        string
	Type      string
	Name      string
	Arguments string
}

// Message is one turn in a conversation.
//
// Content is nil only for an assistant turn that carries pending tool calls.
// A tool turn always answers a ToolCallID emitted earlier in the history.
type Message struct {
	Role       Role
	Content    *string
	Parts      []openai.ContentPart
	Name       string
	ToolCalls  []ToolCall
	ToolCallID string
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: &content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: &content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: &content}
}

// NewAssistantToolCallMessage creates an assistant message that requests tools.
// The text may be empty; the model can speak alongside its calls.
func NewAssistantToolCallMessage(content string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: &content, ToolCalls: calls}
}

// NewToolMessage creates a tool result answering toolCallID.
func NewToolMessage(toolCallID, content string) Message {
	return Message{Role: RoleTool, Content: &content, ToolCallID: toolCallID}
}

// Text returns the message content as plain text. Structured content keeps
// only its text parts.
func (m Message) Text() string {
	if m.Content != nil {
		return *m.Content
	}
	return openai.MessageContent{Parts: m.Parts}.String()
}

// FromWire converts wire messages into history messages.
func FromWire(messages []openai.ChatCompletionMessage) []Message {
	out := make([]Message, 0, len(messages))
	for _, wm := range messages {
		m := Message{
			Role:       Role(wm.Role),
			Content:    wm.Content.Text,
			Parts:      wm.Content.Parts,
			Name:       wm.Name,
			ToolCallID: wm.ToolCallID,
		}
		for i, tc := range wm.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, ToolCall{
				Index:     i,
				ID:        tc.ID,
				Type:      tc.Type,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		out = append(out, m)
	}
	return out
}

func cloneHistory(history []Message) []Message {
	out := make([]Message, len(history), len(history)+4)
	copy(out, history)
	return out
}
