package messaging

import (
	"context"
	"log/slog"

	"github.com/ruteri/heirloom/interfaces"
)

// LogMessenger writes every message to the logger and always succeeds.
type LogMessenger struct {
	log *slog.Logger
}

func NewLogMessenger(log *slog.Logger) *LogMessenger {
	return &LogMessenger{log: log}
}

func (m *LogMessenger) Send(ctx context.Context, msg interfaces.Message) error {
	m.log.Info("Verification message",
		slog.String("channel", string(msg.Channel)),
		slog.String("recipient", msg.Recipient),
		slog.String("entity_id", msg.EntityID),
		slog.String("kind", string(msg.Kind)),
		slog.Int("stage", msg.Stage),
		slog.Int("attempt", msg.Attempt),
		slog.Int("max_attempts", msg.MaxAttempts))
	return nil
}
