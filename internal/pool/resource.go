package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned by Access and Initialize after Close.
var ErrClosed = errors.New("resource handle is closed")

// Handle is the lifecycle contract shared by every pooled resource.
type Handle interface {
	// Name identifies the handle in the registry and in logs.
	Name() string
	// Initialize creates the underlying client if absent. It is idempotent.
	Initialize(ctx context.Context) error
	// Probe checks liveness and re-initialises on failure. It reports whether
	// the handle ended up healthy; failures never escape as errors.
	Probe(ctx context.Context) bool
	// Recycle replaces the underlying client with a fresh one.
	Recycle(ctx context.Context) error
	// IsStale reports whether the handle has been idle longer than its idle timeout.
	IsStale(now time.Time) bool
	// Close releases the underlying client. Double close is a no-op.
	Close() error
}

// ResourceOptions describes how to build, check and tear down a client.
type ResourceOptions[T any] struct {
	Name        string
	IdleTimeout time.Duration
	Open        func(ctx context.Context) (T, error)
	// Probe is a cheap round-trip against the client. Nil means always alive.
	Probe func(ctx context.Context, client T) error
	// Close releases the client. Nil means nothing to release.
	Close  func(client T) error
	Logger *slog.Logger
	// OnReinit is called after a failed probe discarded the client.
	OnReinit func(name string)
}

type holder[T any] struct {
	client T
}

// Resource is a lazily-initialised, self-healing wrapper around one client.
// Reads of an initialised client take no lock; creation and replacement are
// serialised by a per-resource mutex.
type Resource[T any] struct {
	opts ResourceOptions[T]

	mu      sync.Mutex
	current atomic.Pointer[holder[T]]
	closed  atomic.Bool

	lastAccess atomic.Int64
	now        func() time.Time
}

var _ Handle = (*Resource[struct{}])(nil)

// NewResource creates an empty resource. Nothing is opened until the first
// Access or Initialize.
func NewResource[T any](opts ResourceOptions[T]) *Resource[T] {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := &Resource[T]{opts: opts, now: time.Now}
	r.lastAccess.Store(r.now().UnixNano())
	return r
}

// Name implements Handle.
func (r *Resource[T]) Name() string {
	return r.opts.Name
}

// Initialize implements Handle. Concurrent callers observe the same client.
func (r *Resource[T]) Initialize(ctx context.Context) error {
	_, err := r.initialize(ctx)
	return err
}

func (r *Resource[T]) initialize(ctx context.Context) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Load() {
		var zero T
		return zero, ErrClosed
	}
	if h := r.current.Load(); h != nil {
		return h.client, nil
	}

	client, err := r.opts.Open(ctx)
	if err != nil {
		r.opts.Logger.Error("failed to initialize resource",
			"resource", r.opts.Name,
			"error", err)
		var zero T
		return zero, fmt.Errorf("initialize %s: %w", r.opts.Name, err)
	}

	r.current.Store(&holder[T]{client: client})
	r.touch()
	r.opts.Logger.Debug("resource initialized", "resource", r.opts.Name)
	return client, nil
}

// Access returns the client, initialising it on first use.
func (r *Resource[T]) Access(ctx context.Context) (T, error) {
	if r.closed.Load() {
		var zero T
		return zero, ErrClosed
	}
	if h := r.current.Load(); h != nil {
		r.touch()
		return h.client, nil
	}
	return r.initialize(ctx)
}

// Probe implements Handle. An uninitialised resource is initialised rather
// than probed, which keeps it warm for the next request.
func (r *Resource[T]) Probe(ctx context.Context) bool {
	if r.closed.Load() {
		return false
	}
	h := r.current.Load()
	if h == nil {
		return r.Initialize(ctx) == nil
	}
	if r.opts.Probe == nil {
		return true
	}

	err := r.opts.Probe(ctx, h.client)
	if err == nil {
		return true
	}

	r.opts.Logger.Warn("resource probe failed, reinitializing",
		"resource", r.opts.Name,
		"error", err)
	r.discard(h)
	if r.opts.OnReinit != nil {
		r.opts.OnReinit(r.opts.Name)
	}
	return r.Initialize(ctx) == nil
}

// Recycle implements Handle.
func (r *Resource[T]) Recycle(ctx context.Context) error {
	if h := r.current.Load(); h != nil {
		r.discard(h)
	}
	return r.Initialize(ctx)
}

// discard drops h if it is still the current client. A concurrent
// replacement wins over a stale discard.
func (r *Resource[T]) discard(h *holder[T]) {
	r.mu.Lock()
	swapped := r.current.CompareAndSwap(h, nil)
	r.mu.Unlock()
	if swapped {
		if err := r.closeClient(h.client); err != nil {
			r.opts.Logger.Debug("error closing discarded client",
				"resource", r.opts.Name,
				"error", err)
		}
	}
}

// IsStale implements Handle.
func (r *Resource[T]) IsStale(now time.Time) bool {
	if r.opts.IdleTimeout <= 0 {
		return false
	}
	last := time.Unix(0, r.lastAccess.Load())
	return now.Sub(last) > r.opts.IdleTimeout
}

// Initialized reports whether a client currently exists.
func (r *Resource[T]) Initialized() bool {
	return r.current.Load() != nil
}

// Close implements Handle.
func (r *Resource[T]) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Swap(true) {
		return nil
	}
	h := r.current.Swap(nil)
	if h == nil {
		return nil
	}
	return r.closeClient(h.client)
}

func (r *Resource[T]) closeClient(client T) (err error) {
	if r.opts.Close == nil {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("close %s panicked: %v", r.opts.Name, p)
		}
	}()
	return r.opts.Close(client)
}

func (r *Resource[T]) touch() {
	r.lastAccess.Store(r.now().UnixNano())
}
