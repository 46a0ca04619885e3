// SPDX-License-Identifier: Apache-2.0
package core

import (
	"strings"
	"testing"
)

func validRequest() Request {
	return Request{Prompt: "What is 2+2?", UserID: "u1", SessionID: "s1", Tier: TierFree}
}

func TestRequestValidate(t *testing.T) {
	if err := validRequest().Validate(); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}
}

func TestRequestPromptBounds(t *testing.T) {
	r := validRequest()
	r.Prompt = strings.Repeat("a", MaxPromptChars)
	if err := r.Validate(); err != nil {
		t.Errorf("prompt at max length should pass: %v", err)
	}

	r.Prompt = strings.Repeat("a", MaxPromptChars+1)
	if err := r.Validate(); err == nil {
		t.Error("prompt over max length should be rejected")
	}

	r.Prompt = "a"
	if err := r.Validate(); err != nil {
		t.Errorf("single char prompt should pass: %v", err)
	}
}

func TestRequestRequiredFields(t *testing.T) {
	r := validRequest()
	r.UserID = ""
	if err := r.Validate(); err == nil {
		t.Error("empty userId should be rejected")
	}

	r = validRequest()
	r.SessionID = ""
	if err := r.Validate(); err == nil {
		t.Error("empty sessionId should be rejected")
	}

	r = validRequest()
	r.Tier = "enterprise"
	if err := r.Validate(); err == nil {
		t.Error("unknown tier should be rejected")
	}
}

func TestFulfilledRequiresContent(t *testing.T) {
	o := RoleOutput{Role: "gpt4o", Status: StatusFulfilled, Content: ""}
	if o.Fulfilled() {
		t.Error("fulfilled status with empty content must not count as fulfilled")
	}
	o.Content = "4"
	if !o.Fulfilled() {
		t.Error("fulfilled status with content should count as fulfilled")
	}
}

func TestConfidenceLabel(t *testing.T) {
	cases := map[float64]string{
		0.95: "very_high",
		0.7:  "high",
		0.5:  "medium",
		0.3:  "low",
		0.05: "very_low",
	}
	for score, want := range cases {
		if got := ConfidenceLabel(score); got != want {
			t.Errorf("ConfidenceLabel(%f) = %s, want %s", score, got, want)
		}
	}
}

func TestFulfilledOutputs(t *testing.T) {
	outputs := []RoleOutput{
		{Role: "a", Status: StatusFulfilled, Content: "x"},
		{Role: "b", Status: StatusFailed},
		{Role: "c", Status: StatusFulfilled, Content: "y"},
	}
	got := FulfilledOutputs(outputs)
	if len(got) != 2 {
		t.Errorf("expected 2 fulfilled, got %d", len(got))
	}
}
