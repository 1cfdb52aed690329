// Package optimistic orchestrates write operations against a remote API
// while keeping a cache.Store responsive: the intended change is applied to
// the cache before the network call, confirmed entities replace placeholders
// on success, and the prior state is restored verbatim on failure.
package optimistic

import (
	"context"
	"fmt"
	"time"

	"claimstack/internal/cache"
)

// Resource is a client-local handle created during the optimistic phase
// (e.g. an in-memory file preview) that must be released once the mutation
// settles, on both the success and the error path.
type Resource interface {
	Release()
}

// ReleaseFunc adapts a plain function to the Resource interface.
type ReleaseFunc func()

// Release invokes the wrapped function.
func (f ReleaseFunc) Release() { f() }

// Context threads per-invocation state from the optimistic phase through to
// settlement: the snapshots needed for rollback, the placeholder identity,
// and any resources to release.
type Context struct {
	store     *cache.Store
	snapshots []keySnapshot

	// TempID names the placeholder entity synthesized during the optimistic
	// phase, when the mutation creates one.
	TempID string

	resources []Resource
}

type keySnapshot struct {
	key  cache.Key
	snap cache.Snapshot
}

// Capture supersedes in-flight reads for key and snapshots its current
// value. The order is fixed: cancelling first closes the window where a read
// issued before the optimistic write could resolve after it and clobber it.
// Every key the mutation will write optimistically must be captured before
// the write. Capturing a key a second time within the same invocation is a
// no-op: the first snapshot holds the pre-mutation value, which is what
// rollback must restore.
func (c *Context) Capture(key cache.Key) {
	for _, ks := range c.snapshots {
		if ks.key.String() == key.String() {
			return
		}
	}
	c.store.CancelInFlight(key)
	c.snapshots = append(c.snapshots, keySnapshot{key: key, snap: c.store.TakeSnapshot(key)})
}

// AddResource registers a resource released when the mutation settles.
func (c *Context) AddResource(r Resource) {
	if r != nil {
		c.resources = append(c.resources, r)
	}
}

func (c *Context) restore() {
	for _, ks := range c.snapshots {
		c.store.Restore(ks.key, ks.snap)
	}
}

func (c *Context) release() {
	for _, r := range c.resources {
		r.Release()
	}
	c.resources = nil
}

// Mutation describes one write operation through its lifecycle hooks.
// OnMutate runs synchronously before Execute begins; exactly one of
// OnSuccess / OnError fires after Execute settles.
type Mutation[I, R any] struct {
	// Name identifies the operation in logs and metrics.
	Name string

	// OnMutate applies the optimistic change: capture affected keys through
	// mctx, synthesize a placeholder entity when the operation creates a
	// visible one, and write the optimistic value into the cache. An error
	// aborts the mutation before any network traffic.
	OnMutate func(ctx context.Context, input I, mctx *Context) error

	// Execute performs the network call. It runs after OnMutate returned,
	// concurrently with the UI already reflecting the optimistic state.
	Execute func(ctx context.Context, input I) (R, error)

	// OnSuccess reconciles the cache with the confirmed result, typically by
	// replacing the placeholder entity through Replace. The executor releases
	// resources afterward.
	OnSuccess func(input I, result R, mctx *Context)

	// OnError runs after the executor restored every captured snapshot. Most
	// mutations leave it nil; it exists for cleanup beyond rollback.
	OnError func(err error, input I, mctx *Context)

	// FailureMessage renders the user-visible failure notification. When nil
	// a generic message derived from Name is used; a failed mutation is
	// never silent.
	FailureMessage func(input I, err error) string

	// SuccessMessage, when set, emits a success notification. Most mutations
	// leave it nil: success is communicated optimistically and confirmed
	// silently.
	SuccessMessage func(input I, result R) string
}

// Executor runs mutations against one cache store. It does not serialize
// overlapping mutations on the same key: each invocation snapshots the state
// it found, so last write wins. Callers needing stricter ordering disable
// duplicate submissions themselves.
type Executor struct {
	store    *cache.Store
	notifier Notifier
	logger   Logger
	metrics  MetricsRecorder
	timeout  time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithNotifier sets the user-visible notification sink.
func WithNotifier(n Notifier) Option {
	return func(e *Executor) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithLogger injects a structured logger.
func WithLogger(l Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records per-mutation outcomes through the recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(e *Executor) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithTimeout bounds Execute. A hung call rejects at the deadline so the
// rollback path always eventually fires; zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// DefaultTimeout bounds Execute when no explicit timeout is configured.
const DefaultTimeout = 30 * time.Second

// NewExecutor constructs an executor over store.
func NewExecutor(store *cache.Store, opts ...Option) *Executor {
	e := &Executor{
		store:    store,
		notifier: NoopNotifier{},
		logger:   noopLogger{},
		metrics:  noopMetrics{},
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the cache store mutations operate on.
func (e *Executor) Store() *cache.Store { return e.store }

// Run executes m through the fixed lifecycle. OnMutate completes before
// Execute begins; exactly one of OnSuccess / OnError fires. On failure the
// cache is restored to the captured snapshots wholesale, never leaving a
// partially applied state; resources are released, and the failure is
// surfaced through the notifier. The error is also returned so callers can
// keep the original input available for retry.
func Run[I, R any](ctx context.Context, e *Executor, m Mutation[I, R], input I) (R, error) {
	var zero R
	started := time.Now()
	mctx := &Context{store: e.store}

	if m.OnMutate != nil {
		if err := m.OnMutate(ctx, input, mctx); err != nil {
			mctx.restore()
			mctx.release()
			e.observe(ctx, m.Name, false, started)
			return zero, fmt.Errorf("%s: %w", m.Name, err)
		}
	}

	execCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	result, err := m.Execute(execCtx, input)
	if err != nil {
		mctx.restore()
		if m.OnError != nil {
			m.OnError(err, input, mctx)
		}
		mctx.release()
		e.notifier.Error(failureMessage(m, input, err))
		e.logger.Warn("mutation rolled back", "mutation", m.Name, "error", err)
		e.observe(ctx, m.Name, false, started)
		return zero, fmt.Errorf("%s: %w", m.Name, err)
	}

	if m.OnSuccess != nil {
		m.OnSuccess(input, result, mctx)
	}
	mctx.release()
	if m.SuccessMessage != nil {
		e.notifier.Success(m.SuccessMessage(input, result))
	}
	e.observe(ctx, m.Name, true, started)
	return result, nil
}

func failureMessage[I, R any](m Mutation[I, R], input I, err error) string {
	if m.FailureMessage != nil {
		return m.FailureMessage(input, err)
	}
	return fmt.Sprintf("%s failed: %v", m.Name, err)
}

func (e *Executor) observe(ctx context.Context, operation string, success bool, started time.Time) {
	e.metrics.Observe(ctx, operation, success, time.Since(started))
}
