package llm

import (
	"context"
	"strings"
	"testing"

	cerrors "github.com/chorusml/chorus/pkg/errors"
)

func TestValidateRequestBounds(t *testing.T) {
	ok := ChatRequest{Messages: []Message{{Role: RoleUser, Content: strings.Repeat("a", MaxPromptChars)}}}
	if err := ValidateRequest(ok); err != nil {
		t.Errorf("prompt at limit should pass: %v", err)
	}

	over := ChatRequest{Messages: []Message{{Role: RoleUser, Content: strings.Repeat("a", MaxPromptChars+1)}}}
	err := ValidateRequest(over)
	if err == nil {
		t.Fatal("prompt over limit should fail")
	}
	if ce := cerrors.AsChorusError(err); ce.Code != cerrors.CodeValidationError {
		t.Errorf("expected VALIDATION_ERROR, got %s", ce.Code)
	}

	if err := ValidateRequest(ChatRequest{}); err == nil {
		t.Error("empty prompt should fail")
	}
}

func TestMockProvider(t *testing.T) {
	m := &MockProvider{Response: "hello"}
	resp, err := m.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "hello" {
		t.Errorf("unexpected content: %s", resp.Content)
	}
	if resp.Usage.TotalTokens != 20 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
}

func TestScriptedMockProvider(t *testing.T) {
	s := NewScriptedMockProvider("one", "two")
	r1, _ := s.Chat(context.Background(), ChatRequest{})
	r2, _ := s.Chat(context.Background(), ChatRequest{})
	if r1.Content != "one" || r2.Content != "two" {
		t.Error("scripted responses should pop in order")
	}
	if _, err := s.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Error("exhausted script should error")
	}
	if s.CallCount != 3 {
		t.Errorf("expected 3 calls, got %d", s.CallCount)
	}
}
