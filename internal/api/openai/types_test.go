package openai

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/tjfontaine/rag-chat-proxy/internal/domain"
)

func TestChatCompletionRequest_ExtraFieldsRoundTrip(t *testing.T) {
	in := `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}],"metadata":{"a":1},"logprobs":true,"parallel_tool_calls":false}`

	var req ChatCompletionRequest
	if err := json.Unmarshal([]byte(in), &req); err != nil {
		t.Fatal(err)
	}
	if len(req.Extra) != 3 {
		t.Fatalf("Extra = %v", req.Extra)
	}
	if _, ok := req.Extra["model"]; ok {
		t.Error("modeled fields must not land in Extra")
	}

	req.Model = "gpt-4o-mini"
	req.Extra["model"] = json.RawMessage(`"ignored"`)
	out, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}

	var fields map[string]any
	if err := json.Unmarshal(out, &fields); err != nil {
		t.Fatal(err)
	}
	if fields["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v, modeled field should win", fields["model"])
	}
	if fields["logprobs"] != true || fields["parallel_tool_calls"] != false {
		t.Errorf("extra fields lost: %s", out)
	}
}

func TestMessageContent(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantText string
		wantNull bool
		wantErr  bool
	}{
		{name: "string", in: `"hello"`, wantText: "hello"},
		{name: "empty string", in: `""`, wantText: ""},
		{name: "null", in: `null`, wantNull: true},
		{name: "parts", in: `[{"type":"text","text":"a"},{"type":"image_url","image_url":{"url":"u"}},{"type":"text","text":"b"}]`, wantText: "a b"},
		{name: "number", in: `42`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c MessageContent
			err := json.Unmarshal([]byte(tt.in), &c)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if tt.wantErr {
				return
			}
			if c.IsNull() != tt.wantNull || c.String() != tt.wantText {
				t.Errorf("content = %+v (null %v, text %q)", c, c.IsNull(), c.String())
			}

			out, err := json.Marshal(c)
			if err != nil {
				t.Fatal(err)
			}
			if string(out) != tt.in {
				t.Errorf("re-encoded %s, want %s", out, tt.in)
			}
		})
	}
}

func TestAssistantToolCallMessageEncodesNullContent(t *testing.T) {
	msg := ChatCompletionMessage{
		Role:      "assistant",
		ToolCalls: []ToolCall{{ID: "call_1", Type: "function", Function: FunctionCall{Name: "f", Arguments: "{}"}}},
	}
	out, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"role":"assistant","content":null,"tool_calls":[{"id":"call_1","type":"function","function":{"name":"f","arguments":"{}"}}]}`
	if string(out) != want {
		t.Errorf("got %s\nwant %s", out, want)
	}
}

func TestAPIError_ToCanonical(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		status   int
		wantType domain.ErrorType
		wantCode domain.ErrorCode
	}{
		{
			name:     "context length by code",
			body:     `{"error":{"message":"too long","type":"invalid_request_error","code":"context_length_exceeded"}}`,
			status:   http.StatusBadRequest,
			wantType: domain.ErrorTypeContextLength,
			wantCode: domain.ErrorCodeContextLengthExceeded,
		},
		{
			name:     "rate limit",
			body:     `{"error":{"message":"slow","type":"requests","code":"rate_limit_exceeded"}}`,
			status:   http.StatusTooManyRequests,
			wantType: domain.ErrorTypeRateLimit,
			wantCode: domain.ErrorCodeRateLimitExceeded,
		},
		{
			name:     "numeric code is stringified",
			body:     `{"error":{"message":"odd","type":"server_error","code":500}}`,
			status:   http.StatusInternalServerError,
			wantType: domain.ErrorTypeServer,
			wantCode: "500",
		},
		{
			name:     "overloaded",
			body:     `{"error":{"message":"busy","type":"overloaded_error","code":null}}`,
			status:   http.StatusServiceUnavailable,
			wantType: domain.ErrorTypeOverloaded,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr, err := ParseErrorResponse([]byte(tt.body))
			if err != nil || apiErr == nil {
				t.Fatalf("ParseErrorResponse = %v, %v", apiErr, err)
			}
			got := apiErr.ToCanonical(tt.status)
			if got.Type != tt.wantType || got.Code != tt.wantCode || got.StatusCode != tt.status {
				t.Errorf("canonical = %+v", got)
			}
		})
	}
}

func TestParseErrorResponse_NoError(t *testing.T) {
	apiErr, err := ParseErrorResponse([]byte(`{"id":"x"}`))
	if err != nil || apiErr != nil {
		t.Errorf("got %v, %v", apiErr, err)
	}
}
