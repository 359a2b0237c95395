package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const defaultBaseURL = "https://api.openai.com/v1"

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithQueryParam adds a query parameter to every request. Clients of the
// proxy use it to pass ragEnabled=false.
func WithQueryParam(key, value string) ClientOption {
	return func(c *Client) {
		c.query.Set(key, value)
	}
}

// Client is an HTTP client for OpenAI-compatible APIs, including this proxy.
type Client struct {
	apiKey     string
	baseURL    string
	query      url.Values
	httpClient *http.Client
}

// NewClient creates a new OpenAI API client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		query:      url.Values{},
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestOptions contains per-request options.
type RequestOptions struct {
	// UserAgent is forwarded as-is to the upstream API when set.
	UserAgent string
}

// Completion is the result of Create: a stream when the request asked for
// one, otherwise a complete response. Exactly one field is set.
type Completion struct {
	Stream   *Stream
	Response *ChatCompletionResponse
}

// Create sends req and returns the variant matching req.Stream.
func (c *Client) Create(ctx context.Context, req *ChatCompletionRequest, opts *RequestOptions) (*Completion, error) {
	if req.Stream {
		stream, err := c.StreamChatCompletion(ctx, req, opts)
		if err != nil {
			return nil, err
		}
		return &Completion{Stream: stream}, nil
	}
	resp, err := c.CreateChatCompletion(ctx, req, opts)
	if err != nil {
		return nil, err
	}
	return &Completion{Response: resp}, nil
}

// CreateChatCompletion sends a non-streaming chat completion request.
func (c *Client) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest, opts *RequestOptions) (*ChatCompletionResponse, error) {
	resp, err := c.post(ctx, "/chat/completions", req, opts)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result ChatCompletionResponse
	raw, err := decodeResponse(resp, &result)
	if err != nil {
		return nil, err
	}
	result.RawResponse = raw
	return &result, nil
}

// StreamChatCompletion sends a streaming chat completion request. The caller
// owns the returned stream and must Close it.
func (c *Client) StreamChatCompletion(ctx context.Context, req *ChatCompletionRequest, opts *RequestOptions) (*Stream, error) {
	req.Stream = true

	resp, err := c.post(ctx, "/chat/completions", req, opts)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, upstreamError(resp.StatusCode, respBody)
	}

	return NewStream(resp.Body), nil
}

// CreateEmbeddings embeds each input string.
func (c *Client) CreateEmbeddings(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	resp, err := c.post(ctx, "/embeddings", req, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result EmbeddingResponse
	if _, err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, opts *RequestOptions) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(httpReq, opts)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func (c *Client) endpoint(path string) string {
	u := c.baseURL + path
	if len(c.query) > 0 {
		u += "?" + c.query.Encode()
	}
	return u
}

func decodeResponse(resp *http.Response, out any) (json.RawMessage, error) {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return respBody, nil
}

func upstreamError(status int, body []byte) error {
	if apiErr, err := ParseErrorResponse(body); err == nil && apiErr != nil {
		return apiErr.ToCanonical(status)
	}
	return fmt.Errorf("API error (status %d): %s", status, string(body))
}

func (c *Client) setHeaders(req *http.Request, opts *RequestOptions) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	if opts != nil && opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	} else {
		req.Header.Set("User-Agent", "rag-chat-proxy/1.0")
	}
}
