package controller

import (
	"context"
	"net/http"

	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/domain/fulfillment"
	"github.com/cassiomorais/studiopay/internal/domain/job"
	"github.com/cassiomorais/studiopay/internal/domain/payment"
	"github.com/cassiomorais/studiopay/internal/middleware"
	"github.com/cassiomorais/studiopay/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type OperatorService interface {
	JobStats(ctx context.Context) (map[job.Status]int, error)
	RecentJobs(ctx context.Context, status *job.Status, limit int) ([]*job.NotificationJob, error)
	RequeueJob(ctx context.Context, id uuid.UUID) (*job.NotificationJob, error)
	RetryFulfillment(ctx context.Context, reference string) (*payment.Payment, error)
	ListUnfulfilled(ctx context.Context, limit int) ([]*payment.Payment, error)
	CancelBooking(ctx context.Context, id uuid.UUID) (*service.CancelResult, error)
	EditBooking(ctx context.Context, id uuid.UUID, edit service.BookingEdit) (*fulfillment.Booking, error)
	CancelOrder(ctx context.Context, id uuid.UUID) (*service.CancelResult, error)
}

// OperatorController serves the /admin surface.
type OperatorController struct {
	ops    OperatorService
	logger zerolog.Logger
}

func NewOperatorController(ops OperatorService, logger zerolog.Logger) *OperatorController {
	return &OperatorController{ops: ops, logger: logger.With().Str("component", "operator_controller").Logger()}
}

func (c *OperatorController) JobStats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.ops.JobStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make(map[string]int, len(job.Statuses))
	for _, s := range job.Statuses {
		resp[string(s)] = stats[s]
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListJobs returns recent jobs, optionally filtered with ?status=.
func (c *OperatorController) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var status *job.Status
	if s := r.URL.Query().Get("status"); s != "" {
		st := job.Status(s)
		if !st.Valid() {
			writeError(w, domainErrors.NewValidationError("status", "unknown job status"))
			return
		}
		status = &st
	}

	jobs, err := c.ops.RecentJobs(r.Context(), status, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]*JobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp = append(resp, FromJob(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (c *OperatorController) RequeueJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	j, err := c.ops.RequeueJob(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	c.audit(r, "job_requeued").Str("job_id", id.String()).Send()
	writeJSON(w, http.StatusOK, FromJob(j))
}

func (c *OperatorController) RetryFulfillment(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	p, err := c.ops.RetryFulfillment(r.Context(), reference)
	if err != nil {
		writeError(w, err)
		return
	}
	c.audit(r, "fulfillment_retried").Str("reference", reference).Send()
	writeJSON(w, http.StatusOK, FromPayment(p))
}

func (c *OperatorController) ListUnfulfilled(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	payments, err := c.ops.ListUnfulfilled(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]*PaymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, FromPayment(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (c *OperatorController) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := c.ops.CancelBooking(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	c.audit(r, "booking_cancelled").Str("booking_id", id.String()).Int("released", result.Released).Send()
	writeJSON(w, http.StatusOK, CancelResponse{Released: result.Released, Remaining: result.Remaining})
}

func (c *OperatorController) EditBooking(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req EditBookingRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	b, err := c.ops.EditBooking(r.Context(), id, service.BookingEdit{Participants: req.Participants, Note: req.Note})
	if err != nil {
		writeError(w, err)
		return
	}
	c.audit(r, "booking_edited").Str("booking_id", id.String()).Int("participants", b.Participants).Send()
	writeJSON(w, http.StatusOK, FromBooking(b))
}

func (c *OperatorController) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := c.ops.CancelOrder(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	c.audit(r, "order_cancelled").Str("order_id", id.String()).Int("released", result.Released).Send()
	writeJSON(w, http.StatusOK, CancelResponse{Released: result.Released, Remaining: result.Remaining})
}

func (c *OperatorController) audit(r *http.Request, action string) *zerolog.Event {
	e := c.logger.Info().Str("action", action)
	if operator, ok := middleware.GetOperator(r.Context()); ok {
		e = e.Str("operator", operator)
	}
	return e
}
