package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span represents a logical unit of client work, typically one REST call or
// one live-channel session.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time
}

// StartSpan derives a span from the provided context, enriching the logger
// with a request identifier when none is present yet. It returns the derived
// context and the span handle.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := FromContext(ctx)

	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = WithRequestID(ctx, requestID)
		logger = logger.With(slog.String("request_id", requestID))
	}

	logger = logger.With(slog.String("operation", name))
	ctx = WithLogger(ctx, logger)

	span := &Span{
		name:   name,
		logger: logger,
		start:  time.Now(),
	}

	return ctx, span
}

// End finalizes the span and emits a completion log entry.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.logger.Debug("operation completed", slog.Duration("duration", time.Since(s.start)))
}
