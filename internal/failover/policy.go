package failover

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy defaults
const (
	DefaultPollInterval        = 5 * time.Second
	DefaultMaxPollDeadline     = 30 * time.Minute
	DefaultTransientRetryLimit = 3
	DefaultMaxParallelism      = 8
	DefaultMaxPollInterval     = time.Minute
	DefaultRetryDelay          = 250 * time.Millisecond
)

// BackoffKind selects the wait between convergence polls
type BackoffKind string

const (
	BackoffConstant    BackoffKind = "constant"
	BackoffExponential BackoffKind = "exponential"
)

// Policy holds the timing, retry and concurrency knobs for one
// orchestration call. Zero fields take the defaults above.
type Policy struct {
	// PollInterval is the fixed wait between polls, or the first wait
	// when Backoff is exponential.
	PollInterval time.Duration
	// MaxPollDeadline bounds each cluster's convergence wait.
	MaxPollDeadline time.Duration
	// TransientRetryLimit is how many transport failures one poll loop
	// absorbs before giving up. Also the attempt count for inventory reads.
	TransientRetryLimit int
	// Parallelism caps concurrent sequences. The effective value is
	// min(len(identifiers), Parallelism).
	Parallelism int
	Backoff     BackoffKind
	// MaxPollInterval caps exponential backoff.
	MaxPollInterval time.Duration
	// RetryDelay is the base delay between inventory read attempts.
	RetryDelay time.Duration
}

// DefaultPolicy returns the documented defaults
func DefaultPolicy() Policy {
	return Policy{
		PollInterval:        DefaultPollInterval,
		MaxPollDeadline:     DefaultMaxPollDeadline,
		TransientRetryLimit: DefaultTransientRetryLimit,
		Parallelism:         DefaultMaxParallelism,
		Backoff:             BackoffConstant,
		MaxPollInterval:     DefaultMaxPollInterval,
		RetryDelay:          DefaultRetryDelay,
	}
}

// Validate rejects negative or unknown settings
func (p Policy) Validate() error {
	switch {
	case p.PollInterval < 0:
		return fmt.Errorf("failover: negative poll interval %s", p.PollInterval)
	case p.MaxPollDeadline < 0:
		return fmt.Errorf("failover: negative poll deadline %s", p.MaxPollDeadline)
	case p.TransientRetryLimit < 0:
		return fmt.Errorf("failover: negative transient retry limit %d", p.TransientRetryLimit)
	case p.Parallelism < 0:
		return fmt.Errorf("failover: negative parallelism %d", p.Parallelism)
	case p.MaxPollInterval < 0:
		return fmt.Errorf("failover: negative max poll interval %s", p.MaxPollInterval)
	case p.RetryDelay < 0:
		return fmt.Errorf("failover: negative retry delay %s", p.RetryDelay)
	}
	switch p.Backoff {
	case "", BackoffConstant, BackoffExponential:
	default:
		return fmt.Errorf("failover: unknown backoff %q", p.Backoff)
	}
	return nil
}

// WithDefaults fills zero fields from DefaultPolicy
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	if p.PollInterval == 0 {
		p.PollInterval = d.PollInterval
	}
	if p.MaxPollDeadline == 0 {
		p.MaxPollDeadline = d.MaxPollDeadline
	}
	if p.TransientRetryLimit == 0 {
		p.TransientRetryLimit = d.TransientRetryLimit
	}
	if p.Parallelism == 0 {
		p.Parallelism = d.Parallelism
	}
	if p.Backoff == "" {
		p.Backoff = d.Backoff
	}
	if p.MaxPollInterval == 0 {
		p.MaxPollInterval = d.MaxPollInterval
	}
	if p.MaxPollInterval < p.PollInterval {
		p.MaxPollInterval = p.PollInterval
	}
	if p.RetryDelay == 0 {
		p.RetryDelay = d.RetryDelay
	}
	return p
}

// ParallelismFor returns the worker count for n requested clusters
func (p Policy) ParallelismFor(n int) int {
	limit := p.Parallelism
	if limit <= 0 {
		limit = DefaultMaxParallelism
	}
	if n < limit {
		limit = n
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// NewBackOff returns a fresh backoff for one poll loop
func (p Policy) NewBackOff() backoff.BackOff {
	if p.Backoff == BackoffExponential {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = p.PollInterval
		b.MaxInterval = p.MaxPollInterval
		b.Multiplier = 2
		b.RandomizationFactor = 0.2
		b.Reset()
		return b
	}
	return backoff.NewConstantBackOff(p.PollInterval)
}
