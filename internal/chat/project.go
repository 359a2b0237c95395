package chat

import (
	"github.com/tjfontaine/rag-chat-proxy/internal/api/openai"
)

const toolTypeFunction = "function"

// Projector turns a history into the message list sent to the completion
// API. Output order always matches input order; the API relies on it to tie
// each tool result to the call it answers.
type Projector struct {
	// SystemPrompt, when set, replaces every system message in the history
	// with a single canonical system message at the front.
	SystemPrompt string
}

// Project applies the per-role serialization rules to history.
func (p Projector) Project(history []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if p.SystemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    string(RoleSystem),
			Content: openai.TextContent(p.SystemPrompt),
		})
	}

	for _, m := range history {
		switch m.Role {
		case RoleSystem:
			if p.SystemPrompt != "" {
				continue
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:    string(RoleSystem),
				Content: openai.MessageContent{Text: m.Content, Parts: m.Parts},
				Name:    m.Name,
			})

		case RoleUser:
			wm := openai.ChatCompletionMessage{Role: string(RoleUser), Name: m.Name}
			if m.Content == nil && len(m.Parts) > 0 {
				wm.Content = openai.MessageContent{Parts: m.Parts}
			} else {
				wm.Content = openai.TextContent(valueOrEmpty(m.Content))
			}
			out = append(out, wm)

		case RoleAssistant:
			if len(m.ToolCalls) > 0 {
				out = append(out, openai.ChatCompletionMessage{
					Role:      string(RoleAssistant),
					ToolCalls: wireToolCalls(m.ToolCalls),
				})
				continue
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:    string(RoleAssistant),
				Content: openai.TextContent(m.Text()),
			})

		case RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       string(RoleTool),
				Content:    openai.TextContent(valueOrEmpty(m.Content)),
				ToolCallID: m.ToolCallID,
			})
		}
	}

	return out
}

func wireToolCalls(calls []ToolCall) []openai.ToolCall {
	out := make([]openai.ToolCall, len(calls))
	for i, tc := range calls {
		typ := tc.Type
		if typ == "" {
			typ = toolTypeFunction
		}
		out[i] = openai.ToolCall{
			ID:   tc.ID,
			Type: typ,
			Function: openai.FunctionCall{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		}
	}
	return out
}

func valueOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
