package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestStructuredLogging_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "DEBUG", "text", false)

	Info("session created", "session_id", "abc", "store_id", "def")

	out := buf.String()
	if !strings.Contains(out, "session created") {
		t.Errorf("expected message in output, got: %s", out)
	}
	if !strings.Contains(out, "session_id=abc") {
		t.Errorf("expected session_id attr in output, got: %s", out)
	}
	if !strings.Contains(out, "[INFO]") {
		t.Errorf("expected INFO level marker, got: %s", out)
	}
}

func TestStructuredLogging_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json", false)

	Info("commit finished", "store_id", "aabb", "bytes", 42)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "commit finished" {
		t.Errorf("expected msg 'commit finished', got %v", entry["msg"])
	}
	if entry["store_id"] != "aabb" {
		t.Errorf("expected store_id 'aabb', got %v", entry["store_id"])
	}
}

func TestConsoleValueRendering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "DEBUG", "text", false)

	Info("transfer stats", "count", 42, "ratio", 0.5, "ok", true, "wait", 250*time.Millisecond)

	out := buf.String()
	for _, want := range []string{"count=42", "ratio=0.5", "ok=true", "wait=250ms"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got: %s", want, out)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text", false)

	Debug("should not appear")
	Info("should not appear either")
	Warn("visible warning")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Errorf("debug/info output leaked through WARN level: %s", out)
	}
	if !strings.Contains(out, "visible warning") {
		t.Errorf("warn output missing: %s", out)
	}
}

func TestSetLevel_InvalidIgnored(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	SetLevel("NOISY") // no such level, must be a no-op

	Info("still info")
	if !strings.Contains(buf.String(), "still info") {
		t.Errorf("valid level lost after invalid SetLevel: %s", buf.String())
	}
}

func TestContextFields_Injected(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "DEBUG", "text", false)

	lc := NewLogContext("10.0.0.7")
	lc = lc.WithStore("ff00").WithSession("sess-1")
	ctx := WithContext(context.Background(), lc)

	InfoCtx(ctx, "upload chunk")

	out := buf.String()
	for _, want := range []string{"client_ip=10.0.0.7", "store_id=ff00", "session_id=sess-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got: %s", want, out)
		}
	}
}

func TestContextFields_NilContextSafe(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "DEBUG", "text", false)

	InfoCtx(context.Background(), "no log context")
	if !strings.Contains(buf.String(), "no log context") {
		t.Errorf("message lost without LogContext: %s", buf.String())
	}
}
