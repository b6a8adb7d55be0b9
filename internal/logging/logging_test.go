package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestPreInitLoggerUsesConfiguredHandler(t *testing.T) {
	logger := L("session")

	var buf bytes.Buffer
	Init("text", "info", &buf)

	logger.Info("connection accepted", "remote", "127.0.0.1:51000")

	out := buf.String()
	if strings.Contains(out, `msg="INFO connection accepted`) {
		t.Fatalf("unexpected nested severity prefix in message: %s", out)
	}
	if !strings.Contains(out, `msg="connection accepted"`) {
		t.Fatalf("expected plain message, got: %s", out)
	}
	if !strings.Contains(out, "component=session") {
		t.Fatalf("expected component field, got: %s", out)
	}
	if !strings.Contains(out, "remote=127.0.0.1:51000") {
		t.Fatalf("expected remote field, got: %s", out)
	}
}

func TestPreInitLoggerRespectsConfiguredLevel(t *testing.T) {
	logger := L("session")

	var buf bytes.Buffer
	Init("text", "warn", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info log should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn log should be emitted: %s", out)
	}
}

func TestWithSessionAttachesSessionID(t *testing.T) {
	var buf bytes.Buffer
	Init("text", "info", &buf)

	logger := WithSession(L("session"), "abc-123")
	logger.Info("frame processed")

	out := buf.String()
	if !strings.Contains(out, "sessionId=abc-123") {
		t.Fatalf("expected sessionId field, got: %s", out)
	}
}
