// Copyright 2026 © The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package gemini

import (
	"context"
	"strings"
	"testing"

	"github.com/chorusml/chorus/pkg/errors"
	"github.com/chorusml/chorus/pkg/llm"
)

func TestNewWithAPIKey(t *testing.T) {
	p, err := NewWithAPIKey(context.Background(), "test-key")
	if err != nil {
		t.Fatalf("client construction should not fail: %v", err)
	}
	if p.model != "gemini-2.5-flash" {
		t.Errorf("unexpected default model %s", p.model)
	}
}

func TestChatRejectsOversizePrompt(t *testing.T) {
	p, err := NewWithAPIKey(context.Background(), "test-key")
	if err != nil {
		t.Fatal(err)
	}
	_, cerr := p.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: strings.Repeat("a", llm.MaxPromptChars+1)}},
	})
	ce := errors.AsChorusError(cerr)
	if ce == nil || ce.Code != errors.CodeValidationError {
		t.Errorf("expected VALIDATION_ERROR without network call, got %v", cerr)
	}
}

func TestConvertMessagesSplitsSystem(t *testing.T) {
	contents, system := convertMessages([]llm.Message{
		{Role: llm.RoleSystem, Content: "be brief"},
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
	})
	if system != "be brief" {
		t.Errorf("system instruction not extracted: %q", system)
	}
	if len(contents) != 2 {
		t.Fatalf("expected 2 contents, got %d", len(contents))
	}
	if contents[1].Role != "model" {
		t.Errorf("assistant should map to model role, got %s", contents[1].Role)
	}
}
