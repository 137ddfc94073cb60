package requestctx

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerTagsContextIDs(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx := WithActorID(WithRequestID(context.Background(), "req-1"), "emp-1")
	Logger(ctx).Info("leave request denied")
	out := buf.String()
	if !strings.Contains(out, "requestId=req-1") || !strings.Contains(out, "actorId=emp-1") {
		t.Fatalf("expected ids in log line, got %q", out)
	}

	buf.Reset()
	Logger(context.Background()).Info("plain")
	if strings.Contains(buf.String(), "requestId") {
		t.Fatalf("expected untagged line, got %q", buf.String())
	}
}
