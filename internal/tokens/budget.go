package tokens

import (
	"log/slog"
	"unicode/utf8"
)

// charsPerToken is the fallback estimate when no tokenizer is available.
const charsPerToken = 4

// Budget caps retrieved context at MaxTokens for Model. A zero MaxTokens
// leaves text untouched.
type Budget struct {
	Counter   *Counter
	Model     string
	MaxTokens int
	Logger    *slog.Logger
}

// Truncate trims text to the budget. If the tokenizer fails the cut falls
// back to an estimate of four characters per token.
func (b *Budget) Truncate(text string) string {
	if b == nil || b.MaxTokens <= 0 || text == "" {
		return text
	}

	counter := b.Counter
	if counter == nil {
		counter = NewCounter()
	}

	out, err := counter.Truncate(b.Model, text, b.MaxTokens)
	if err != nil {
		b.logger().Warn("token truncation failed, estimating", slog.String("error", err.Error()))
		return estimateTruncate(text, b.MaxTokens)
	}
	if len(out) < len(text) {
		b.logger().Info("retrieved context truncated",
			slog.Int("max_tokens", b.MaxTokens),
			slog.Int("original_length", utf8.RuneCountInString(text)),
			slog.Int("truncated_length", utf8.RuneCountInString(out)),
		)
	}
	return out
}

func (b *Budget) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

func estimateTruncate(text string, maxTokens int) string {
	limit := maxTokens * charsPerToken
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
