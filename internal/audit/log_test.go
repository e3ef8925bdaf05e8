package audit

import (
	"context"
	"testing"
)

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "   ", nil); err == nil {
		t.Fatalf("expected error for blank event name")
	}
	if err := LogEvent(context.Background(), "auth.token.issued", map[string]any{"user_id": "u1"}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
}

func TestWithRequestIDIgnoresBlank(t *testing.T) {
	ctx := context.Background()
	if got := WithRequestID(ctx, "  "); got != ctx {
		t.Fatalf("expected unchanged context for blank request id")
	}
	ctx = WithRequestID(ctx, "req-1")
	if rid := requestIDFromContext(ctx); rid != "req-1" {
		t.Fatalf("unexpected request id %q", rid)
	}
}
