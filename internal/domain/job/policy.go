package job

import "time"

// RetryPolicy controls how failed jobs are rescheduled.
type RetryPolicy struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy returns three retries starting at 30 seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  3,
		BaseBackoff: 30 * time.Second,
		MaxBackoff:  6 * time.Hour,
	}
}

// Backoff returns base * 2^attempts, capped at MaxBackoff.
func (p RetryPolicy) Backoff(attempts int) time.Duration {
	base := p.BaseBackoff
	if base <= 0 {
		base = time.Second
	}
	if attempts < 0 {
		attempts = 0
	}
	d := base
	for i := 0; i < attempts; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}
