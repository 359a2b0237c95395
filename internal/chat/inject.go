package chat

import (
	"strings"

	"github.com/tjfontaine/rag-chat-proxy/internal/api/openai"
)

// ContextLabel prefixes retrieved context inside the injected system message.
const ContextLabel = "[Retrieved Context from Knowledge Base]:\n"

// Inject layers retrieved context into a history as a system message.
//
// The message goes right after the first existing system message so an
// original persona prompt stays first; without one it is prepended. Blank
// context returns messages as given. The input slice is never modified.
func Inject(messages []Message, ragContext string) []Message {
	if strings.TrimSpace(ragContext) == "" {
		return messages
	}
	at := insertIndex(len(messages), func(i int) bool { return messages[i].Role == RoleSystem })
	return insertAt(messages, at, NewSystemMessage(ContextLabel+ragContext))
}

// InjectWire is Inject for messages already in wire form, as received by the
// proxy. Every other message passes through untouched.
func InjectWire(messages []openai.ChatCompletionMessage, ragContext string) []openai.ChatCompletionMessage {
	if strings.TrimSpace(ragContext) == "" {
		return messages
	}
	at := insertIndex(len(messages), func(i int) bool { return messages[i].Role == string(RoleSystem) })
	return insertAt(messages, at, openai.ChatCompletionMessage{
		Role:    string(RoleSystem),
		Content: openai.TextContent(ContextLabel + ragContext),
	})
}

func insertIndex(n int, isSystem func(i int) bool) int {
	for i := 0; i < n; i++ {
		if isSystem(i) {
			return i + 1
		}
	}
	return 0
}

func insertAt[T any](items []T, at int, item T) []T {
	out := make([]T, 0, len(items)+1)
	out = append(out, items[:at]...)
	out = append(out, item)
	out = append(out, items[at:]...)
	return out
}
