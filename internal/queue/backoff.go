package queue

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const (
	// DefaultMaxRetries is the number of rate-limit retries before giving up.
	DefaultMaxRetries = 5
	// DefaultInitialDelay is the first backoff delay when no Retry-After hint is given.
	DefaultInitialDelay = time.Second
)

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	HTTPStatus() int
}

// RetryAfterer is implemented by errors that carry a server-provided retry hint.
type RetryAfterer interface {
	RetryAfter() (time.Duration, bool)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy configures rate-limit retries.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	Sleep        SleepFunc
	Now          func() time.Time
}

// DefaultPolicy returns the standard retry policy: 5 retries starting at 1s.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: DefaultInitialDelay,
		Sleep:        Sleep,
		Now:          time.Now,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.Sleep == nil {
		p.Sleep = Sleep
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return p
}

// Phase is a step of the retry state machine.
type Phase int

const (
	// Attempting means the operation is about to run.
	Attempting Phase = iota
	// Waiting means a rate-limit backoff is in progress.
	Waiting
	// Exhausted means the operation failed and will not be retried.
	Exhausted
	// Succeeded means the operation returned without error.
	Succeeded
)

func (p Phase) String() string {
	switch p {
	case Attempting:
		return "attempting"
	case Waiting:
		return "waiting"
	case Exhausted:
		return "exhausted"
	case Succeeded:
		return "succeeded"
	default:
		return "unknown"
	}
}

// State is the retry state. Retries counts rate-limit retries taken so far.
// Delay and Until are set only in the Waiting phase.
type State struct {
	Phase   Phase
	Retries int
	Delay   time.Duration
	Until   time.Time
}

// Next returns the state that follows s after an attempt finished with err.
// It is a pure function of its inputs.
func Next(p Policy, s State, now time.Time, err error) State {
	if err == nil {
		return State{Phase: Succeeded, Retries: s.Retries}
	}
	if !IsRateLimited(err) || s.Retries >= p.MaxRetries {
		return State{Phase: Exhausted, Retries: s.Retries}
	}

	delay := p.InitialDelay << s.Retries
	if hint, ok := retryAfter(err); ok {
		delay = hint
	}
	return State{
		Phase:   Waiting,
		Retries: s.Retries + 1,
		Delay:   delay,
		Until:   now.Add(delay),
	}
}

// Call runs op, retrying on HTTP 429 according to p. Any other error, or a
// 429 after the retries are exhausted, is returned unchanged.
func Call[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	p = p.withDefaults()
	state := State{Phase: Attempting}

	for {
		result, err := op(ctx)
		state = Next(p, state, p.Now(), err)

		switch state.Phase {
		case Succeeded:
			return result, nil
		case Exhausted:
			return result, err
		}

		if sleepErr := p.Sleep(ctx, state.Delay); sleepErr != nil {
			return result, sleepErr
		}
		state.Phase = Attempting
	}
}

// IsRateLimited reports whether err carries HTTP status 429.
func IsRateLimited(err error) bool {
	var sc StatusCoder
	return errors.As(err, &sc) && sc.HTTPStatus() == http.StatusTooManyRequests
}

func retryAfter(err error) (time.Duration, bool) {
	var ra RetryAfterer
	if !errors.As(err, &ra) {
		return 0, false
	}
	return ra.RetryAfter()
}

// Sleep waits for d, returning early with ctx.Err() if ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
