package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/domain/job"
	"github.com/cassiomorais/studiopay/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Transport delivers a rendered message. Failures are returned as
// TransportError so the job queue retries them.
type Transport interface {
	Send(ctx context.Context, msg *Message) error
}

// Dispatcher renders a job, attaches its documents and sends it.
type Dispatcher struct {
	renderer    *Renderer
	documents   *Documents
	transport   Transport
	sendTimeout time.Duration
	logger      zerolog.Logger
}

func NewDispatcher(renderer *Renderer, documents *Documents, transport Transport, sendTimeout time.Duration, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		renderer:    renderer,
		documents:   documents,
		transport:   transport,
		sendTimeout: sendTimeout,
		logger:      observability.Component(logger, "dispatcher"),
	}
}

// Dispatch delivers one job. Errors matching ErrUnknownJobType or
// ErrInvalidPayload are permanent; see IsPermanent.
func (d *Dispatcher) Dispatch(ctx context.Context, j *job.NotificationJob) (err error) {
	ctx, span := observability.StartSpan(ctx, "notification.Dispatch",
		attribute.String("job.id", j.ID.String()),
		attribute.String("job.type", string(j.Type)),
		attribute.Int("job.attempts", j.Attempts))
	defer func() { observability.EndSpan(span, err) }()

	if j.PayloadErr != nil {
		return j.PayloadErr
	}

	msg, err := d.renderer.Render(j.Type, j.Payload)
	if err != nil {
		return err
	}

	if d.documents != nil {
		docs, err := d.documents.ForPayload(ctx, j.Payload)
		if err != nil {
			return fmt.Errorf("documents: %w", err)
		}
		for _, doc := range docs {
			msg.Attachments = append(msg.Attachments, Attachment{
				Name:        doc.Name,
				ContentType: doc.ContentType,
				Data:        doc.Data,
			})
		}
	}

	sendCtx := ctx
	if d.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
	}
	if err := d.transport.Send(sendCtx, msg); err != nil {
		var tErr *domainErrors.TransportError
		if !errors.As(err, &tErr) {
			err = domainErrors.NewTransportError(err)
		}
		return err
	}

	d.logger.Debug().
		Str("job_id", j.ID.String()).
		Str("job_type", string(j.Type)).
		Int("attachments", len(msg.Attachments)).
		Msg("notification sent")
	return nil
}

// IsPermanent reports whether retrying the job cannot help.
func IsPermanent(err error) bool {
	return errors.Is(err, domainErrors.ErrUnknownJobType) || errors.Is(err, domainErrors.ErrInvalidPayload)
}
