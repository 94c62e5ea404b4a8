package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPropagateToLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-123")
	ctx = WithUpdateID(ctx, 77)
	ctx = WithUserID(ctx, 42)
	ctx = WithSessionKey(ctx, "user:42")

	traced := PropagateToLogger(ctx, logger)
	traced.Info().Msg("test message")

	output := buf.String()
	for _, want := range []string{`"trace_id":"trace-123"`, `"update_id":77`, `"user_id":42`, `"session_key":"user:42"`} {
		if !strings.Contains(output, want) {
			t.Errorf("Log output missing %s: %s", want, output)
		}
	}
}

func TestLoggerFromContextWithoutValues(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	plain := LoggerFromContext(context.Background(), logger)
	plain.Info().Msg("plain")

	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("Unexpected trace_id in output: %s", buf.String())
	}
}

func TestMergeContext(t *testing.T) {
	source := WithTraceID(context.Background(), "trace-src")
	source = WithUserID(source, 42)

	target := WithTraceID(context.Background(), "trace-dst")
	merged := MergeContext(target, source)

	if GetTraceID(merged) != "trace-dst" {
		t.Error("MergeContext overwrote an existing trace ID")
	}
	if GetUserID(merged) != 42 {
		t.Error("MergeContext did not copy the user ID")
	}
}

func TestDetach(t *testing.T) {
	reqCtx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	reqCtx = WithTraceID(reqCtx, "trace-req")
	cancel()

	detached := Detach(context.Background(), reqCtx)

	if detached.Err() != nil {
		t.Error("Detached context inherited cancellation")
	}
	if GetTraceID(detached) != "trace-req" {
		t.Error("Detached context lost the trace ID")
	}
}
