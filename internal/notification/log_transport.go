package notification

import (
	"context"

	"github.com/rs/zerolog"
)

// LogTransport writes messages to the log instead of sending them.
// Used in development and when no SMTP server is configured.
type LogTransport struct {
	logger zerolog.Logger
}

func NewLogTransport(logger zerolog.Logger) *LogTransport {
	return &LogTransport{logger: logger.With().Str("component", "mail").Logger()}
}

func (t *LogTransport) Send(_ context.Context, msg *Message) error {
	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.Name)
	}
	t.logger.Info().
		Str("to", msg.To.Email).
		Str("subject", msg.Subject).
		Strs("attachments", names).
		Msg("mail (not sent)")
	return nil
}
