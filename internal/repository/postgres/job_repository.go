package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/domain/job"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, payment_id, job_type, payload, status, attempts, max_retries,
		        next_attempt_at, locked_at, last_error, created_at, updated_at, completed_at`

// JobRepository is the durable notification job queue.
type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Enqueue inserts a new job. payment_id is unique, so a payment never
// gets a second notification.
func (r *JobRepository) Enqueue(ctx context.Context, j *job.NotificationJob) error {
	payload, err := job.EncodePayload(j.Payload)
	if err != nil {
		return err
	}
	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO notification_jobs
		 (id, payment_id, job_type, payload, status, attempts, max_retries,
		  next_attempt_at, locked_at, last_error, created_at, updated_at, completed_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		j.ID, j.PaymentID, string(j.Type), payload, string(j.Status), j.Attempts, j.MaxRetries,
		j.NextAttemptAt, j.LockedAt, j.LastError, j.CreatedAt, j.UpdatedAt, j.CompletedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domainErrors.ErrDuplicateJob
		}
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// ClaimBatch flips due PENDING rows to PROCESSING in one statement. SKIP
// LOCKED lets concurrent workers claim disjoint batches.
func (r *JobRepository) ClaimBatch(ctx context.Context, limit int, now time.Time) ([]*job.NotificationJob, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db(ctx).Query(ctx,
		`UPDATE notification_jobs SET status = 'processing', locked_at = $1, updated_at = $1
		 WHERE id IN (
		     SELECT id FROM notification_jobs
		     WHERE status = 'pending' AND next_attempt_at <= $1
		     ORDER BY created_at ASC
		     LIMIT $2
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+jobColumns,
		now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	jobs, err := r.collect(rows)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(jobs, func(a, b *job.NotificationJob) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return jobs, nil
}

// Finish writes the outcome of an attempt. The lease check makes a late
// write from a worker whose claim was reaped a no-op.
func (r *JobRepository) Finish(ctx context.Context, j *job.NotificationJob) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE notification_jobs SET
		   status = $1, attempts = $2, max_retries = $3, next_attempt_at = $4,
		   locked_at = $5, last_error = $6, updated_at = $7, completed_at = $8
		 WHERE id = $9 AND status = 'processing' AND locked_at = $10`,
		string(j.Status), j.Attempts, j.MaxRetries, j.NextAttemptAt,
		j.LockedAt, j.LastError, j.UpdatedAt, j.CompletedAt,
		j.ID, j.LeasedAt)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrJobNotClaimed
	}
	return nil
}

// LockStale returns PROCESSING jobs whose lease predates cutoff and keeps
// them row-locked until the surrounding transaction ends.
func (r *JobRepository) LockStale(ctx context.Context, cutoff time.Time, limit int) ([]*job.NotificationJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+jobColumns+` FROM notification_jobs
		 WHERE status = 'processing' AND locked_at < $1
		 ORDER BY locked_at ASC
		 LIMIT $2
		 FOR UPDATE SKIP LOCKED`,
		cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("lock stale jobs: %w", err)
	}
	return r.collect(rows)
}

func (r *JobRepository) Requeue(ctx context.Context, j *job.NotificationJob) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE notification_jobs SET status = $1, max_retries = $2, next_attempt_at = $3, updated_at = $4
		 WHERE id = $5 AND status = 'failed'`,
		string(j.Status), j.MaxRetries, j.NextAttemptAt, j.UpdatedAt, j.ID)
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrJobNotFailed
	}
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*job.NotificationJob, error) {
	return r.scanJob(r.db(ctx).QueryRow(ctx, `SELECT `+jobColumns+` FROM notification_jobs WHERE id = $1`, id))
}

func (r *JobRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*job.NotificationJob, error) {
	return r.scanJob(r.db(ctx).QueryRow(ctx, `SELECT `+jobColumns+` FROM notification_jobs WHERE payment_id = $1`, paymentID))
}

// Stats counts jobs per status. Every status is present in the result.
func (r *JobRepository) Stats(ctx context.Context) (map[job.Status]int, error) {
	rows, err := r.db(ctx).Query(ctx, `SELECT status, COUNT(*) FROM notification_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[job.Status]int, len(job.Statuses))
	for _, s := range job.Statuses {
		stats[s] = 0
	}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan job stats: %w", err)
		}
		stats[job.Status(status)] = count
	}
	return stats, rows.Err()
}

func (r *JobRepository) Recent(ctx context.Context, status *job.Status, limit int) ([]*job.NotificationJob, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows pgx.Rows
		err  error
	)
	if status != nil {
		rows, err = r.db(ctx).Query(ctx,
			`SELECT `+jobColumns+` FROM notification_jobs WHERE status = $1
			 ORDER BY updated_at DESC LIMIT $2`, string(*status), limit)
	} else {
		rows, err = r.db(ctx).Query(ctx,
			`SELECT `+jobColumns+` FROM notification_jobs ORDER BY updated_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("recent jobs: %w", err)
	}
	return r.collect(rows)
}

func (r *JobRepository) collect(rows pgx.Rows) ([]*job.NotificationJob, error) {
	defer rows.Close()
	var jobs []*job.NotificationJob
	for rows.Next() {
		j, err := r.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// scanJob never fails on a payload it cannot decode. The job is returned
// with PayloadErr set so the worker can fail it visibly.
func (r *JobRepository) scanJob(row scanner) (*job.NotificationJob, error) {
	var (
		j               job.NotificationJob
		jobType, status string
		payload         []byte
	)
	err := row.Scan(&j.ID, &j.PaymentID, &jobType, &payload, &status, &j.Attempts, &j.MaxRetries,
		&j.NextAttemptAt, &j.LockedAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrJobNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	j.Type = job.Type(jobType)
	j.Status = job.Status(status)
	if j.LockedAt != nil {
		j.LeasedAt = *j.LockedAt
	}
	j.Payload, j.PayloadErr = job.DecodePayload(j.Type, payload)
	return &j, nil
}
