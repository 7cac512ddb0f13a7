// Package ollama implements the HTTP client for a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"ollamaweb/internal/models"
)

// Client talks to one Ollama base URL. It is safe for concurrent use;
// per-request deadlines come from the caller's context.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the given base URL, e.g.
// "http://localhost:11434". The underlying http.Client carries no
// timeout of its own so that streaming responses can outlive any
// fixed request deadline.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// BaseURL reports the upstream address the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// IsAvailable probes the upstream with the model listing call,
// folding every failure into false.
func (c *Client) IsAvailable(ctx context.Context) bool {
	_, err := c.ListModels(ctx)
	return err == nil
}

// Chat sends a non-streaming chat request and returns the assistant
// reply. A non-empty systemPrompt is prepended as a system message
// unless the history already opens with one.
func (c *Client) Chat(ctx context.Context, model string, messages []models.ChatMessage, systemPrompt string) (*ChatResponse, error) {
	resp, err := c.doChat(ctx, model, messages, systemPrompt, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeDecode, Message: "decode chat response", Cause: err}
	}
	if result.Error != "" {
		return nil, &ClientError{Type: ErrTypeHTTP, Message: result.Error}
	}
	return &result, nil
}

// OpenStream sends a streaming chat request and hands back the raw
// response body. The caller owns the body and must close it; the
// upstream writes one JSON object per line until a frame with
// done=true.
func (c *Client) OpenStream(ctx context.Context, model string, messages []models.ChatMessage, systemPrompt string) (io.ReadCloser, error) {
	resp, err := c.doChat(ctx, model, messages, systemPrompt, true)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// ListModels retrieves the locally installed models from /api/tags.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpError(resp)
	}

	var result listModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeDecode, Message: "decode model list", Cause: err}
	}
	return result.Models, nil
}

// ShowModel fetches detailed information for one model via /api/show.
func (c *Client) ShowModel(ctx context.Context, name string) (*ModelDetails, error) {
	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return nil, &ClientError{Type: ErrTypeDecode, Message: "marshal show request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/show", bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpError(resp)
	}

	var result ModelDetails
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeDecode, Message: "decode model details", Cause: err}
	}
	return &result, nil
}

func (c *Client) doChat(ctx context.Context, model string, messages []models.ChatMessage, systemPrompt string, stream bool) (*http.Response, error) {
	reqBody := ChatRequest{
		Model:    model,
		Messages: withSystemPrompt(messages, systemPrompt),
		Stream:   stream,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeDecode, Message: "marshal chat request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	if resp.StatusCode != http.StatusOK {
		err := httpError(resp)
		drainAndClose(resp.Body)
		return nil, err
	}
	return resp, nil
}

// withSystemPrompt prepends prompt as a system message. The history
// wins when it already starts with its own system message.
func withSystemPrompt(messages []models.ChatMessage, prompt string) []models.ChatMessage {
	if prompt == "" {
		return messages
	}
	if len(messages) > 0 && messages[0].Role == models.RoleSystem {
		return messages
	}
	out := make([]models.ChatMessage, 0, len(messages)+1)
	out = append(out, models.ChatMessage{Role: models.RoleSystem, Content: prompt})
	return append(out, messages...)
}

func classifyTransportErr(err error) *ClientError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
	case errors.Is(err, context.Canceled):
		return &ClientError{Type: ErrTypeCanceled, Message: "request canceled", Cause: err}
	default:
		return &ClientError{Type: ErrTypeConnection, Message: "upstream unreachable", Cause: err}
	}
}

// httpError builds a ClientError from a non-200 response, preferring
// the upstream's own error text when the body carries one.
func httpError(resp *http.Response) *ClientError {
	msg := "unexpected status " + resp.Status
	var upstream struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&upstream); err == nil && upstream.Error != "" {
		msg = upstream.Error
	}
	return &ClientError{Type: ErrTypeHTTP, StatusCode: resp.StatusCode, Message: msg}
}

func drainAndClose(r io.ReadCloser) {
	io.Copy(io.Discard, r)
	r.Close()
}

// IsTimeout reports whether err is an upstream timeout.
func IsTimeout(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce) && ce.Type == ErrTypeTimeout
}

// IsUnreachable reports whether err means the upstream could not be
// reached at all.
func IsUnreachable(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce) && ce.Type == ErrTypeConnection
}
