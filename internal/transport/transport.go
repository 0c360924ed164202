// Package transport carries text to an identity. The core never retries a
// failed send; callers log it and move on.
package transport

import (
	"context"
	"log/slog"
)

type Sender interface {
	SendText(ctx context.Context, recipient int64, text string) error
}

// LogSender writes every message to the logger. It is the fallback when no
// real transport is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) SendText(ctx context.Context, recipient int64, text string) error {
	s.logger.InfoContext(ctx, "deliver", "recipient", recipient, "text", text)
	return nil
}
