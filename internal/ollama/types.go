package ollama

import (
	"fmt"
	"time"

	"ollamaweb/internal/models"
)

// ErrorType classifies upstream failures so handlers can map them to
// meaningful HTTP responses.
type ErrorType string

const (
	ErrTypeConnection ErrorType = "connection"
	ErrTypeTimeout    ErrorType = "timeout"
	ErrTypeHTTP       ErrorType = "http"
	ErrTypeDecode     ErrorType = "decode"
	ErrTypeCanceled   ErrorType = "canceled"
)

// ClientError wraps an upstream failure with its classification.
type ClientError struct {
	Type       ErrorType
	StatusCode int
	Message    string
	Cause      error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ollama %s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("ollama %s: %s", e.Type, e.Message)
}

func (e *ClientError) Unwrap() error { return e.Cause }

// ChatRequest is the body sent to /api/chat.
type ChatRequest struct {
	Model    string               `json:"model"`
	Messages []models.ChatMessage `json:"messages"`
	Stream   bool                 `json:"stream"`
}

// ChatResponse is one frame of the /api/chat reply. In streaming mode
// the upstream emits one of these per line; in non-streaming mode a
// single object carries the whole message.
type ChatResponse struct {
	Model     string             `json:"model"`
	CreatedAt time.Time          `json:"created_at"`
	Message   models.ChatMessage `json:"message"`
	Done      bool               `json:"done"`
	Error     string             `json:"error,omitempty"`
}

// ModelInfo is one entry of the /api/tags listing.
type ModelInfo struct {
	Name       string    `json:"name"`
	Model      string    `json:"model"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
	Digest     string    `json:"digest"`
}

type listModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// ModelDetails is the reply of /api/show for a single model.
type ModelDetails struct {
	License    string                 `json:"license,omitempty"`
	Modelfile  string                 `json:"modelfile,omitempty"`
	Parameters string                 `json:"parameters,omitempty"`
	Template   string                 `json:"template,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}
