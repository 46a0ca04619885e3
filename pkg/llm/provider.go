package llm

import (
	"context"

	"github.com/chorusml/chorus/pkg/errors"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single unit of communication.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest encapsulates the input for the LLM.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// ChatResponse encapsulates the output from the LLM.
type ChatResponse struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Provider defines the interface for interacting with LLM backends.
// Implementations are stateless; resilience wrapping (breakers, retry)
// happens outside.
type Provider interface {
	// Chat sends a chat request to the LLM and returns the response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// MaxPromptChars is the longest combined prompt an adapter accepts.
const MaxPromptChars = 25000

// ValidateRequest enforces the adapter contract on input size.
func ValidateRequest(req ChatRequest) error {
	total := 0
	for _, m := range req.Messages {
		total += len(m.Content)
	}
	if total == 0 {
		return errors.New(errors.CodeValidationError, "prompt must not be empty", nil)
	}
	if total > MaxPromptChars {
		return errors.New(errors.CodeValidationError, "prompt exceeds maximum length", nil).
			WithContext("length", total).
			WithContext("max", MaxPromptChars)
	}
	return nil
}
