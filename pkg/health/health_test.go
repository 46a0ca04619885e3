// SPDX-License-Identifier: Apache-2.0
package health

import (
	"errors"
	"testing"
	"time"
)

func TestScoreEMA(t *testing.T) {
	tr := NewTracker()
	if tr.Score("openai") != 1.0 {
		t.Error("unseen services start at 1.0")
	}

	tr.Record("openai", 100*time.Millisecond, errors.New("boom"))
	if s := tr.Score("openai"); s < 0.89 || s > 0.91 {
		t.Errorf("expected 0.9 after one failure, got %f", s)
	}

	tr.Record("openai", 100*time.Millisecond, nil)
	want := 0.9*0.9 + 0.1
	if s := tr.Score("openai"); s < want-1e-9 || s > want+1e-9 {
		t.Errorf("expected %f after success, got %f", want, s)
	}
}

func TestSnapshotRates(t *testing.T) {
	tr := NewTracker()
	tr.Record("gemini", 50*time.Millisecond, nil)
	tr.Record("gemini", 150*time.Millisecond, errors.New("503"))

	sh, ok := tr.Service("gemini")
	if !ok {
		t.Fatal("expected service record")
	}
	if sh.SuccessRate != 0.5 {
		t.Errorf("expected success rate 0.5, got %f", sh.SuccessRate)
	}
	if sh.AvgLatency != 100*time.Millisecond {
		t.Errorf("expected avg latency 100ms, got %v", sh.AvgLatency)
	}
	if sh.LastError == "" {
		t.Error("last error should be recorded")
	}
}

func TestSuccessClearsLastError(t *testing.T) {
	tr := NewTracker()
	tr.Record("openai", 100*time.Millisecond, errors.New("429 too many requests"))
	tr.Record("openai", 100*time.Millisecond, nil)

	sh, ok := tr.Service("openai")
	if !ok {
		t.Fatal("expected service record")
	}
	if sh.LastError != "" {
		t.Errorf("last error should clear on success, got %q", sh.LastError)
	}
	if sh.LastErrorAt.IsZero() {
		t.Error("last error timestamp stays as history")
	}
}

func TestCompositeBounds(t *testing.T) {
	healthy := ServiceHealth{SuccessRate: 1, AvgLatency: 50 * time.Millisecond, Score: 1}
	if c := Composite(healthy); c < 0.95 {
		t.Errorf("healthy service composite too low: %f", c)
	}

	sick := ServiceHealth{SuccessRate: 0, AvgLatency: 20 * time.Second, Score: 0}
	if c := Composite(sick); c > 0.05 {
		t.Errorf("sick service composite too high: %f", c)
	}
}

func TestCriticalityWeights(t *testing.T) {
	if Core.Weight() != 4 || Important.Weight() != 3 || Optional.Weight() != 2 || Enhancement.Weight() != 1 {
		t.Error("criticality weights must be 4/3/2/1")
	}
}

func TestDeclareSetsCriticality(t *testing.T) {
	tr := NewTracker()
	tr.Declare("synthesis", Core)
	sh, _ := tr.Service("synthesis")
	if sh.Criticality != Core {
		t.Error("criticality should be set by Declare")
	}
}
