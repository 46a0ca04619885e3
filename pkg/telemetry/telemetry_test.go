// Copyright 2026 © The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestInitNoneExporterIsNoOp(t *testing.T) {
	shutdown, err := InitWithConfig("chorus-test", "0.0.0", Config{Exporter: "none"})
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("none shutdown: %v", err)
	}
}

func TestInitRejectsUnknownExporter(t *testing.T) {
	if _, err := InitWithConfig("chorus-test", "0.0.0", Config{Exporter: "graphite"}); err == nil {
		t.Error("unknown exporter should fail")
	}
}

func TestInitOTLPRequiresEndpoint(t *testing.T) {
	if _, err := InitWithConfig("chorus-test", "0.0.0", Config{Exporter: "otlp"}); err == nil {
		t.Error("otlp without endpoint should fail")
	}
}

func TestConfigureSlogJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "info", "json")
	logger.Info("hello", slog.String("k", "v"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("not JSON: %v (%q)", err, buf.String())
	}
	if record["msg"] != "hello" || record["k"] != "v" {
		t.Errorf("unexpected record: %v", record)
	}
}

func TestLogLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "warn", "text")
	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, "kept") {
		t.Error("warn record should pass")
	}
}

func TestCorrelationIDInjectedFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "info", "json")

	ctx := WithCorrelationID(context.Background(), "corr-123")
	logger.InfoContext(ctx, "traced")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatal(err)
	}
	if record["correlation_id"] != "corr-123" {
		t.Errorf("correlation_id missing from record: %v", record)
	}
}

func TestCorrelationIDRoundTrip(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "abc")
	if got := CorrelationID(ctx); got != "abc" {
		t.Errorf("CorrelationID = %q", got)
	}
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("empty context should yield empty id, got %q", got)
	}
}
