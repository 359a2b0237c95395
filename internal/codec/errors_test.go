package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tjfontaine/rag-chat-proxy/internal/domain"
)

func decodeError(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var wrapper struct {
		Error map[string]any `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		t.Fatalf("unmarshal %q: %v", body, err)
	}
	return wrapper.Error
}

func TestFormatError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantFields map[string]any
		absent     []string
	}{
		{
			name:       "plain error becomes server error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantFields: map[string]any{"message": "boom", "type": "server_error"},
			absent:     []string{"code", "param"},
		},
		{
			name:       "invalid request",
			err:        domain.ErrInvalidRequest("messages array is required").WithCode(domain.ErrorCodeMissingMessages).WithParam("messages"),
			wantStatus: http.StatusBadRequest,
			wantFields: map[string]any{
				"message": "messages array is required",
				"type":    "invalid_request_error",
				"code":    "missing_messages",
				"param":   "messages",
			},
		},
		{
			name:       "configuration",
			err:        domain.ErrConfiguration("OPENAI_API_KEY not configured"),
			wantStatus: http.StatusInternalServerError,
			wantFields: map[string]any{"type": "server_error", "code": "missing_secret"},
		},
		{
			name: "upstream keeps its type and nulls",
			err: &domain.APIError{
				Type:         domain.ErrorTypeRateLimit,
				Message:      "slow down",
				StatusCode:   http.StatusTooManyRequests,
				UpstreamType: "requests",
			},
			wantStatus: http.StatusTooManyRequests,
			wantFields: map[string]any{"message": "slow down", "type": "requests", "code": nil, "param": nil},
		},
		{
			name:       "wrapped api error",
			err:        fmt.Errorf("call failed: %w", domain.ErrAuthentication("bad key")),
			wantStatus: http.StatusUnauthorized,
			wantFields: map[string]any{"type": "authentication_error", "code": "invalid_api_key"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := FormatError(tt.err)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			obj := decodeError(t, resp.Body)
			for k, want := range tt.wantFields {
				got, ok := obj[k]
				if !ok {
					t.Errorf("field %q missing in %v", k, obj)
					continue
				}
				if got != want {
					t.Errorf("field %q = %v, want %v", k, got, want)
				}
			}
			for _, k := range tt.absent {
				if _, ok := obj[k]; ok {
					t.Errorf("field %q should be absent in %v", k, obj)
				}
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, domain.ErrMethodNotAllowed("Method Not Allowed"))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	obj := decodeError(t, rec.Body.Bytes())
	if obj["type"] != "method_not_allowed" {
		t.Errorf("type = %v", obj["type"])
	}
}

func TestWriteStreamError(t *testing.T) {
	t.Run("non api error", func(t *testing.T) {
		var buf strings.Builder
		if err := WriteStreamError(&buf, errors.New("connection reset")); err != nil {
			t.Fatal(err)
		}
		want := `data: {"error":{"message":"connection reset","type":"stream_error"}}` + "\n\n" + "data: [DONE]\n\n"
		if buf.String() != want {
			t.Errorf("got %q\nwant %q", buf.String(), want)
		}
	})

	t.Run("upstream error", func(t *testing.T) {
		var buf strings.Builder
		apiErr := &domain.APIError{
			Type:         domain.ErrorTypeServer,
			Code:         "server_overloaded",
			Message:      "try later",
			UpstreamType: "server_error",
		}
		if err := WriteStreamError(&buf, apiErr); err != nil {
			t.Fatal(err)
		}
		events := strings.Split(strings.TrimSpace(buf.String()), "\n\n")
		if len(events) != 2 || events[1] != "data: [DONE]" {
			t.Fatalf("events = %q", events)
		}
		obj := decodeError(t, []byte(strings.TrimPrefix(events[0], "data: ")))
		if obj["type"] != "server_error" || obj["code"] != "server_overloaded" || obj["param"] != nil {
			t.Errorf("error object = %v", obj)
		}
	})

	t.Run("nil error", func(t *testing.T) {
		var buf strings.Builder
		_ = WriteStreamError(&buf, nil)
		if !strings.Contains(buf.String(), `"message":"Streaming error"`) {
			t.Errorf("got %q", buf.String())
		}
	})
}
