// Package codec writes canonical errors in the OpenAI wire shape, either as a
// JSON response or as an in-band event on an open stream.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tjfontaine/rag-chat-proxy/internal/domain"
)

// StreamErrorType is reported for failures that did not come from upstream.
const StreamErrorType = "stream_error"

// ErrorResponse is a formatted error ready to write.
type ErrorResponse struct {
	StatusCode int
	Body       []byte
}

// ToCanonicalError converts any error to a domain.APIError.
// If the error is already a domain.APIError, it returns it directly.
// Otherwise, it wraps the error in a generic server error.
func ToCanonicalError(err error) *domain.APIError {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return domain.ErrServer(err.Error())
}

// FormatError renders err as {"error":{message,type,code,param}}.
// Upstream errors keep their own type and always carry code and param,
// null when absent.
func FormatError(err error) *ErrorResponse {
	apiErr := ToCanonicalError(err)

	return &ErrorResponse{
		StatusCode: apiErr.HTTPStatusCode(),
		Body:       marshalError(errorObject(apiErr)),
	}
}

// WriteError writes err as a JSON error response. It must be called before
// any part of the response body is written.
func WriteError(w http.ResponseWriter, err error) {
	resp := FormatError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

// WriteStreamError reports err inside an already-open event stream and
// terminates it. Errors that are not canonical API errors are reported with
// type stream_error.
func WriteStreamError(w io.Writer, err error) error {
	var obj map[string]any
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		obj = errorObject(apiErr)
	} else {
		msg := "Streaming error"
		if err != nil && err.Error() != "" {
			msg = err.Error()
		}
		obj = map[string]any{"message": msg, "type": StreamErrorType}
	}

	if _, werr := fmt.Fprintf(w, "data: %s\n\n", marshalError(obj)); werr != nil {
		return werr
	}
	_, werr := io.WriteString(w, "data: [DONE]\n\n")
	return werr
}

func errorObject(apiErr *domain.APIError) map[string]any {
	if apiErr.UpstreamType != "" {
		obj := map[string]any{
			"message": apiErr.Message,
			"type":    apiErr.UpstreamType,
			"code":    nil,
			"param":   nil,
		}
		if apiErr.Code != "" {
			obj["code"] = string(apiErr.Code)
		}
		if apiErr.Param != "" {
			obj["param"] = apiErr.Param
		}
		return obj
	}

	obj := map[string]any{
		"message": apiErr.Message,
		"type":    mapDomainToOpenAIErrorType(apiErr.Type),
	}
	if apiErr.Code != "" {
		obj["code"] = string(apiErr.Code)
	}
	if apiErr.Param != "" {
		obj["param"] = apiErr.Param
	}
	return obj
}

func marshalError(obj map[string]any) []byte {
	body, _ := json.Marshal(map[string]any{"error": obj})
	return body
}

func mapDomainToOpenAIErrorType(t domain.ErrorType) string {
	switch t {
	case domain.ErrorTypeInvalidRequest, domain.ErrorTypeContextLength:
		return "invalid_request_error"
	case domain.ErrorTypeAuthentication:
		return "authentication_error"
	case domain.ErrorTypePermission:
		return "permission_denied"
	case domain.ErrorTypeNotFound:
		return "not_found"
	case domain.ErrorTypeMethodNotAllowed:
		return "method_not_allowed"
	case domain.ErrorTypeRateLimit:
		return "rate_limit_error"
	case domain.ErrorTypeOverloaded:
		return "service_unavailable"
	default:
		return "server_error"
	}
}
