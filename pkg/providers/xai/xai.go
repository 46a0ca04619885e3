// Copyright 2026 © The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package xai provides the xAI Grok model adapter for Chorus. The xAI
// API is OpenAI-compatible, so the adapter rides the openai-go client
// against api.x.ai.
package xai

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/chorusml/chorus/pkg/errors"
	"github.com/chorusml/chorus/pkg/llm"
)

// DefaultBaseURL is the xAI OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.x.ai/v1"

// Provider implements llm.Provider for the xAI API.
type Provider struct {
	client      openai.Client
	model       string
	callTimeout time.Duration
}

// Option configures the Provider.
type Option func(*Provider)

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithCallTimeout caps the per-call deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.callTimeout = d
	}
}

// New creates a new xAI provider with an explicit API key.
func New(apiKey string, opts ...Option) *Provider {
	return NewWithBaseURL(apiKey, DefaultBaseURL, opts...)
}

// NewWithBaseURL creates a new xAI provider against a custom endpoint.
func NewWithBaseURL(apiKey, baseURL string, opts ...Option) *Provider {
	p := &Provider{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
		),
		model:       "grok-4",
		callTimeout: 25 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := llm.ValidateRequest(req); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	if p.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.callTimeout)
		defer cancel()
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case llm.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	resp := &llm.ChatResponse{
		Usage: llm.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	if len(completion.Choices) > 0 {
		resp.Content = completion.Choices[0].Message.Content
	}
	return resp, nil
}

// classify maps SDK errors into the Chorus error taxonomy.
func classify(err error) error {
	var apierr *openai.Error
	if stderrors.As(err, &apierr) {
		return errors.ClassifyStatus(apierr.StatusCode, err)
	}
	return errors.Classify(err)
}

// Ensure Provider implements llm.Provider.
var _ llm.Provider = (*Provider)(nil)
