package notification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/infrastructure/config"
	"github.com/cassiomorais/studiopay/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/wneessen/go-mail"
)

// sender is the part of *mail.Client the transport uses.
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPTransport sends mail through an SMTP relay behind a circuit breaker,
// so a dead relay fails jobs fast instead of holding workers for the
// full timeout.
type SMTPTransport struct {
	client   sender
	from     string
	fromName string
	breaker  *gobreaker.CircuitBreaker[struct{}]
	logger   zerolog.Logger
}

func NewSMTPTransport(cfg config.MailConfig, metrics *observability.Metrics, logger zerolog.Logger) (*SMTPTransport, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
		mail.WithTLSPolicy(tlsPolicy(cfg.TLSPolicy)),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return newSMTPTransport(client, cfg, metrics, logger), nil
}

func newSMTPTransport(client sender, cfg config.MailConfig, metrics *observability.Metrics, logger zerolog.Logger) *SMTPTransport {
	t := &SMTPTransport{
		client:   client,
		from:     cfg.From,
		fromName: cfg.FromName,
		logger:   observability.Component(logger, "smtp"),
	}
	t.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			t.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})
	return t
}

func (t *SMTPTransport) Send(ctx context.Context, msg *Message) error {
	m, err := t.build(msg)
	if err != nil {
		// A message that cannot be built will not build on retry either,
		// but the job's retry budget still bounds it.
		return domainErrors.NewTransportError(err)
	}

	_, err = t.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, t.client.DialAndSendWithContext(ctx, m)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domainErrors.NewTransportError(fmt.Errorf("smtp circuit open: %w", err))
	}
	if err != nil {
		return domainErrors.NewTransportError(err)
	}
	return nil
}

func (t *SMTPTransport) build(msg *Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(t.fromName, t.from); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if err := m.AddToFormat(msg.To.Name, msg.To.Email); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.TextBody)
	if msg.HTMLBody != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTMLBody)
	}
	for _, a := range msg.Attachments {
		ct := a.ContentType
		if i := strings.Index(ct, ";"); i >= 0 {
			ct = ct[:i]
		}
		if err := m.AttachReader(a.Name, bytes.NewReader(a.Data), mail.WithFileContentType(mail.ContentType(ct))); err != nil {
			return nil, fmt.Errorf("attach %s: %w", a.Name, err)
		}
	}
	return m, nil
}

func tlsPolicy(policy string) mail.TLSPolicy {
	switch strings.ToLower(policy) {
	case "mandatory":
		return mail.TLSMandatory
	case "none":
		return mail.NoTLS
	default:
		return mail.TLSOpportunistic
	}
}
