// Copyright 2026 © The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package openai

import (
	"context"
	"strings"
	"testing"

	"github.com/chorusml/chorus/pkg/errors"
	"github.com/chorusml/chorus/pkg/llm"
)

func TestNewProvider(t *testing.T) {
	p := New()
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
	if p.model != "gpt-4o" {
		t.Errorf("expected model gpt-4o, got %s", p.model)
	}
}

func TestWithModel(t *testing.T) {
	p := New(WithModel("gpt-4o-mini"))
	if p.model != "gpt-4o-mini" {
		t.Errorf("expected model gpt-4o-mini, got %s", p.model)
	}
}

func TestClientOptionsCompose(t *testing.T) {
	p := New(
		WithAPIKey("test-key"),
		WithBaseURL("https://proxy.internal/v1"),
		WithModel("gpt-4o-mini"),
	)
	if len(p.clientOpts) != 2 {
		t.Fatalf("expected key and base URL to accumulate, got %d client options", len(p.clientOpts))
	}
	if p.model != "gpt-4o-mini" {
		t.Errorf("expected model gpt-4o-mini, got %s", p.model)
	}
}

func TestChatRejectsOversizePrompt(t *testing.T) {
	p := New(WithAPIKey("test-key"))
	_, err := p.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: strings.Repeat("a", llm.MaxPromptChars+1)}},
	})
	ce := errors.AsChorusError(err)
	if ce == nil || ce.Code != errors.CodeValidationError {
		t.Errorf("expected VALIDATION_ERROR without network call, got %v", err)
	}
}
