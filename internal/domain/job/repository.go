package job

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the durable job queue.
type Repository interface {
	// Enqueue inserts a PENDING job. Returns ErrDuplicateJob when the payment
	// already has one.
	Enqueue(ctx context.Context, j *NotificationJob) error

	// ClaimBatch atomically moves up to limit due PENDING jobs to PROCESSING
	// and returns them oldest first.
	ClaimBatch(ctx context.Context, limit int, now time.Time) ([]*NotificationJob, error)

	// Finish persists the outcome of an attempt. Only succeeds while the row
	// is still PROCESSING, otherwise ErrJobNotClaimed.
	Finish(ctx context.Context, j *NotificationJob) error

	// LockStale selects PROCESSING jobs locked before cutoff, skipping rows
	// other transactions hold. Call inside a transaction.
	LockStale(ctx context.Context, cutoff time.Time, limit int) ([]*NotificationJob, error)

	// Requeue persists an operator re-queue. Only succeeds while FAILED.
	Requeue(ctx context.Context, j *NotificationJob) error

	GetByID(ctx context.Context, id uuid.UUID) (*NotificationJob, error)
	GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*NotificationJob, error)

	// Stats returns the number of jobs per status.
	Stats(ctx context.Context) (map[Status]int, error)

	// Recent returns the most recently updated jobs, optionally by status.
	Recent(ctx context.Context, status *Status, limit int) ([]*NotificationJob, error)
}
