// Copyright 2026 © The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package ensemble

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/chorusml/chorus/pkg/errors"
)

func TestSeverityMapping(t *testing.T) {
	cases := []struct {
		err  *errors.ChorusError
		want string
	}{
		{errors.New(errors.CodeRateLimited, "429", nil), SeverityWarning},
		{errors.New(errors.CodeAuthError, "401", nil), SeverityError},
		{errors.New(errors.CodeInternal, "nil dereference", nil).WithOperational(false), SeverityCritical},
	}
	for _, tc := range cases {
		if got := severityOf(tc.err); got != tc.want {
			t.Errorf("severityOf(%s) = %q, want %q", tc.err.Code, got, tc.want)
		}
	}
}

func TestAdvicePerType(t *testing.T) {
	cases := []struct {
		typ        errors.EnvelopeType
		automatic  bool
		recoverSec int
	}{
		{errors.TypeRateLimit, true, 30},
		{errors.TypeTimeout, false, 10},
		{errors.TypeServerError, true, 60},
		{errors.TypeAuthError, true, 3600},
		{errors.TypeValidationError, false, 0},
	}
	for _, tc := range cases {
		advice := adviceFor(tc.typ, errors.New(errors.CodeInternal, "x", nil))
		if len(advice.Suggestions) == 0 {
			t.Errorf("%s: no suggestions", tc.typ)
		}
		if len(advice.Actions) == 0 {
			t.Fatalf("%s: no actions", tc.typ)
		}
		if advice.Actions[0].Automatic != tc.automatic {
			t.Errorf("%s: automatic = %t, want %t", tc.typ, advice.Actions[0].Automatic, tc.automatic)
		}
		if advice.EstimatedRecoveryTime != tc.recoverSec {
			t.Errorf("%s: estimated recovery = %d, want %d", tc.typ, advice.EstimatedRecoveryTime, tc.recoverSec)
		}
	}
}

func TestAdviceHonorsRetryAfter(t *testing.T) {
	cause := errors.CircuitOpen("openai", time.Now().Add(12*time.Second))
	advice := adviceFor(errors.TypeRateLimit, cause)
	if advice.Actions[0].DelayMs < 11000 || advice.Actions[0].DelayMs > 12000 {
		t.Errorf("delay = %d, want roughly 12000", advice.Actions[0].DelayMs)
	}
}

func TestEnvelopeSerializesToWireShape(t *testing.T) {
	env := BuildEnvelope(errors.New(errors.CodeTimeout, "slow upstream", nil), AudienceUser, "corr-7")
	payload, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	body := string(payload)
	for _, field := range []string{`"status":"error"`, `"type":"timeout"`, `"correlationId":"corr-7"`, `"recovery"`, `"suggestions"`} {
		if !strings.Contains(body, field) {
			t.Errorf("envelope missing %s: %s", field, body)
		}
	}
	if !strings.Contains(env.Error.Code, "ENS-TIM-") {
		t.Errorf("code = %q, want ENS-TIM- prefix", env.Error.Code)
	}
}
