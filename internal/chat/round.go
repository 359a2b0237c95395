package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/rag-chat-proxy/internal/api/openai"
)

const tracerName = "github.com/tjfontaine/rag-chat-proxy/internal/chat"

// DefaultMaxIterations bounds completion calls within one Run.
const DefaultMaxIterations = 25

// ErrMaxIterations is returned when the model keeps requesting tools past
// the iteration limit.
var ErrMaxIterations = errors.New("tool call round exceeded iteration limit")

// Completer starts a streaming completion.
type Completer interface {
	Stream(ctx context.Context, req *openai.ChatCompletionRequest) (EventStream, error)
}

// ToolExecutor runs one tool call. Unknown tools and tool failures are
// reported in the returned string, never as an error.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]any) string
}

// ClientCompleter adapts an OpenAI client to Completer.
type ClientCompleter struct {
	Client  *openai.Client
	Options *openai.RequestOptions
}

// Stream implements Completer.
func (c ClientCompleter) Stream(ctx context.Context, req *openai.ChatCompletionRequest) (EventStream, error) {
	stream, err := c.Client.StreamChatCompletion(ctx, req, c.Options)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// Round runs completion passes until the model stops asking for tools.
type Round struct {
	Completer     Completer
	Executor      ToolExecutor
	Projector     Projector
	Model         string
	Tools         []openai.Tool
	Temperature   *float32
	MaxIterations int
	Logger        *slog.Logger
	Callbacks     StreamCallbacks
}

// Run drives the loop and returns the extended history. Each pass appends one
// assistant message; a pass that requested tools also appends one tool
// message per call, in index order, before the next pass. On error the
// history built so far is returned with it.
func (r *Round) Run(ctx context.Context, history []Message) ([]Message, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxIter := r.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	current := cloneHistory(history)
	for iter := 0; iter < maxIter; iter++ {
		result, err := r.pass(ctx, current, iter)
		if err != nil {
			return current, err
		}

		if !result.HasToolCalls() {
			current = append(current, NewAssistantMessage(result.Text))
			return current, nil
		}

		current = append(current, NewAssistantToolCallMessage(result.Text, result.ToolCalls))
		for _, call := range result.ToolCalls {
			args, perr := ParseArguments(call.Arguments)
			if perr != nil {
				logger.Warn("malformed tool arguments, using empty object",
					slog.String("tool", call.Name),
					slog.String("tool_call_id", call.ID),
					slog.String("error", perr.Error()),
				)
			}
			output := r.Executor.Execute(ctx, call.Name, args)
			logger.Debug("tool executed",
				slog.String("tool", call.Name),
				slog.String("tool_call_id", call.ID),
				slog.Int("result_length", len(output)),
			)
			current = append(current, NewToolMessage(call.ID, output))
		}
	}

	return current, fmt.Errorf("%w (%d)", ErrMaxIterations, maxIter)
}

func (r *Round) pass(ctx context.Context, history []Message, iter int) (Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "chat.round", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.Int("chat.iteration", iter))

	req := &openai.ChatCompletionRequest{
		Model:       r.Model,
		Messages:    r.Projector.Project(history),
		Tools:       r.Tools,
		Temperature: r.Temperature,
		Stream:      true,
	}

	stream, err := r.Completer.Stream(ctx, req)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}

	result, err := Consume(ctx, stream, r.Callbacks)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}

	span.SetAttributes(
		attribute.String("chat.finish_reason", result.FinishReason),
		attribute.Int("chat.tool_calls", len(result.ToolCalls)),
	)
	return result, nil
}

// ParseArguments decodes accumulated tool arguments. Empty input is an empty
// object. Malformed input also yields an empty object, alongside the error.
func ParseArguments(raw string) (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{}, fmt.Errorf("parse tool arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
