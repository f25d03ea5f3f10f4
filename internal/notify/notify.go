package notify

import (
	"context"
	"log/slog"
)

// Notifier pushes a short text alert to the operators' channel.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }

// Log writes alerts to the process log; used when no chat channel is configured.
type Log struct{}

func (Log) Notify(_ context.Context, text string) error {
	slog.Info("alert", "text", text)
	return nil
}
