// Package queue serializes calls to the Spotify Web API.
//
// A single Queue is shared by everything that talks to the catalog so the
// outbound request rate stays bounded no matter how many playlist operations
// are in flight. Every operation is wrapped in the rate-limit backoff of
// [Call], and the backoff sleeps hold the queue's execution slot.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultSpacing is the pause after each operation before the next one starts.
const DefaultSpacing = 50 * time.Millisecond

// ErrClosed is returned for operations submitted to, or still pending in, a
// closed queue.
var ErrClosed = errors.New("request queue closed")

// Operation is a unit of work executed by the queue.
type Operation func(ctx context.Context) error

type entry struct {
	ctx  context.Context
	op   Operation
	done chan error
}

// Queue executes operations one at a time in submission order.
type Queue struct {
	policy  Policy
	spacing time.Duration
	log     *zap.Logger

	mu      sync.Mutex
	pending []*entry
	closed  bool
	wake    chan struct{}
	stop    chan struct{}
	stopped chan struct{}
}

// Option configures a Queue.
type Option func(*Queue)

// WithSpacing sets the pause between consecutive operations.
func WithSpacing(d time.Duration) Option {
	return func(q *Queue) {
		if d >= 0 {
			q.spacing = d
		}
	}
}

// WithPolicy sets the rate-limit retry policy.
func WithPolicy(p Policy) Option {
	return func(q *Queue) {
		q.policy = p.withDefaults()
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.log = l
		}
	}
}

// New creates a queue and starts its worker.
func New(opts ...Option) *Queue {
	q := &Queue{
		policy:  DefaultPolicy(),
		spacing: DefaultSpacing,
		log:     zap.NewNop(),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}

	go q.run()
	return q
}

// Submit enqueues op and waits for it to finish.
//
// If ctx is done before op starts, op is removed from the queue and ctx.Err()
// is returned. Once op has started it receives ctx and Submit waits for it.
func (q *Queue) Submit(ctx context.Context, op Operation) error {
	e := &entry{ctx: ctx, op: op, done: make(chan error, 1)}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.pending = append(q.pending, e)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	select {
	case err := <-e.done:
		return err
	case <-ctx.Done():
		if q.remove(e) {
			return ctx.Err()
		}
		// Already running; the operation sees the cancelled ctx.
		return <-e.done
	}
}

// Do enqueues op on q and returns its result.
func Do[T any](ctx context.Context, q *Queue, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := q.Submit(ctx, func(ctx context.Context) error {
		var err error
		result, err = op(ctx)
		return err
	})
	return result, err
}

// Len returns the number of operations waiting to start.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops the worker after the running operation finishes. Pending
// operations fail with ErrClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, e := range pending {
		e.done <- ErrClosed
	}
	close(q.stop)
	<-q.stopped
}

// remove drops e from the pending list. It reports false if e already started.
func (q *Queue) remove(e *entry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, p := range q.pending {
		if p == e {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return true
		}
	}
	return false
}

func (q *Queue) pop() *entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}
	e := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return e
}

func (q *Queue) run() {
	defer close(q.stopped)

	for {
		e := q.pop()
		if e == nil {
			select {
			case <-q.wake:
				continue
			case <-q.stop:
				return
			}
		}

		start := time.Now()
		_, err := Call(e.ctx, q.policy, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, e.op(ctx)
		})
		e.done <- err

		if err != nil {
			q.log.Debug("queued operation failed",
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err))
		}

		if q.spacing > 0 {
			select {
			case <-time.After(q.spacing):
			case <-q.stop:
				return
			}
		}
	}
}
