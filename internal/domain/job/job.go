package job

import (
	"strings"
	"time"

	"github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/google/uuid"
)

// Status represents the job status in the queue state machine
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Statuses lists every status, in lifecycle order.
var Statuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// NotificationJob is one notification to deliver.
type NotificationJob struct {
	ID        uuid.UUID
	PaymentID uuid.UUID
	Type      Type
	Payload   Payload
	// PayloadErr is set when a stored payload could not be decoded.
	PayloadErr    error
	Status        Status
	Attempts      int
	MaxRetries    int
	NextAttemptAt time.Time
	LockedAt      *time.Time
	// LeasedAt is the lock time of the current claim. It survives
	// Complete and Fail so the store can check the lease is still ours.
	LeasedAt    time.Time
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// New validates the payload and creates a PENDING job due now.
func New(paymentID uuid.UUID, payload Payload, maxRetries int) (*NotificationJob, error) {
	if payload == nil {
		return nil, errors.ErrInvalidPayload
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	now := time.Now().UTC()
	return &NotificationJob{
		ID:            uuid.New(),
		PaymentID:     paymentID,
		Type:          payload.JobType(),
		Payload:       payload,
		Status:        StatusPending,
		Attempts:      0,
		MaxRetries:    maxRetries,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Claim marks the job as taken by a worker.
func (j *NotificationJob) Claim(now time.Time) error {
	if j.Status != StatusPending {
		return errors.NewDomainError("invalid_transition",
			"cannot claim job in status "+string(j.Status), errors.ErrInvalidTransition)
	}
	j.Status = StatusProcessing
	j.LockedAt = &now
	j.LeasedAt = now
	j.UpdatedAt = now
	return nil
}

// Complete finishes a claimed job successfully.
func (j *NotificationJob) Complete(now time.Time) error {
	if j.Status != StatusProcessing {
		return errors.ErrJobNotClaimed
	}
	j.Status = StatusCompleted
	j.LockedAt = nil
	j.UpdatedAt = now
	j.CompletedAt = &now
	return nil
}

// Fail records a failed attempt. The job goes back to PENDING with a later
// next_attempt_at while attempts < MaxRetries, otherwise it becomes FAILED.
func (j *NotificationJob) Fail(cause error, now time.Time, policy RetryPolicy) error {
	if j.Status != StatusProcessing {
		return errors.ErrJobNotClaimed
	}
	msg := truncateError(cause)
	j.LastError = &msg
	j.LockedAt = nil
	j.UpdatedAt = now

	if j.Attempts < j.MaxRetries {
		j.Attempts++
		next := now.Add(policy.Backoff(j.Attempts))
		if !next.After(j.NextAttemptAt) {
			next = j.NextAttemptAt.Add(time.Millisecond)
		}
		j.NextAttemptAt = next
		j.Status = StatusPending
		return nil
	}

	j.Attempts++
	j.Status = StatusFailed
	return nil
}

// Abandon fails a job permanently regardless of the remaining retry budget.
func (j *NotificationJob) Abandon(cause error, now time.Time) error {
	if j.Status != StatusProcessing {
		return errors.ErrJobNotClaimed
	}
	msg := truncateError(cause)
	j.LastError = &msg
	j.LockedAt = nil
	j.UpdatedAt = now
	j.Attempts++
	j.Status = StatusFailed
	return nil
}

// Requeue is the operator action that returns a FAILED job to PENDING
// with a fresh budget of retries.
func (j *NotificationJob) Requeue(now time.Time, retries int) error {
	if j.Status != StatusFailed {
		return errors.ErrJobNotFailed
	}
	j.Status = StatusPending
	j.MaxRetries = j.Attempts + retries
	if now.After(j.NextAttemptAt) {
		j.NextAttemptAt = now
	} else {
		j.NextAttemptAt = j.NextAttemptAt.Add(time.Millisecond)
	}
	j.UpdatedAt = now
	return nil
}

// IsStale reports whether a PROCESSING lease is older than staleAfter.
func (j *NotificationJob) IsStale(now time.Time, staleAfter time.Duration) bool {
	return j.Status == StatusProcessing && j.LockedAt != nil && now.Sub(*j.LockedAt) > staleAfter
}

const maxErrorLength = 2000

func truncateError(err error) string {
	if err == nil {
		return "unknown error"
	}
	msg := strings.TrimSpace(err.Error())
	if len(msg) > maxErrorLength {
		msg = msg[:maxErrorLength]
	}
	return msg
}
