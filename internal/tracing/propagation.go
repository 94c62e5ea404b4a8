package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	if tc.TraceID != "" {
		logger = logger.With().Str("trace_id", tc.TraceID).Logger()
	}
	if tc.UpdateID != 0 {
		logger = logger.With().Int("update_id", tc.UpdateID).Logger()
	}
	if tc.UserID != 0 {
		logger = logger.With().Int64("user_id", tc.UserID).Logger()
	}
	if tc.SessionKey != "" {
		logger = logger.With().Str("session_key", tc.SessionKey).Logger()
	}

	return logger
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}

// MergeContext merges tracing information from source context into target context
// without overwriting values already present in target
func MergeContext(target, source context.Context) context.Context {
	tc := FromContext(source)

	if tc.TraceID != "" && GetTraceID(target) == "" {
		target = WithTraceID(target, tc.TraceID)
	}
	if tc.UpdateID != 0 && GetUpdateID(target) == 0 {
		target = WithUpdateID(target, tc.UpdateID)
	}
	if tc.UserID != 0 && GetUserID(target) == 0 {
		target = WithUserID(target, tc.UserID)
	}
	if tc.SessionKey != "" && GetSessionKey(target) == "" {
		target = WithSessionKey(target, tc.SessionKey)
	}

	return target
}

// Detach copies tracing information from ctx onto base. Work that outlives an
// HTTP request uses it to keep the request's trace without its cancellation.
func Detach(base, ctx context.Context) context.Context {
	return NewContext(base, FromContext(ctx))
}
