// Package gate bounds concurrent renders and owns the shared renderer handle.
//
// Admission is a FIFO weighted semaphore: at most MaxConcurrent callers run inside WithSlot at once and
// waiters are admitted in arrival order. The renderer handle is launched lazily on first use, shared by
// every render, and supervised: when the engine disconnects the handle is dropped and the next caller
// launches a fresh one. Each successful launch gets a new generation number so stale invalidations from
// renders that used an older handle are ignored.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/shotapi/internal/capture"
	"github.com/JakeFAU/shotapi/internal/metrics"
)

// DefaultMaxConcurrent is the render bound when none is configured.
const DefaultMaxConcurrent = 5

// unhealthyAfter is the number of consecutive launch failures that marks the gate unhealthy.
const unhealthyAfter = 3

var (
	// ErrQueueTimeout is returned when a slot could not be acquired within the queue timeout.
	ErrQueueTimeout = errors.New("timed out waiting for a render slot")
	// ErrClosed is returned once the gate has been closed.
	ErrClosed = errors.New("render gate closed")
)

// Options configures a Gate.
type Options struct {
	MaxConcurrent int
	// QueueTimeout bounds the wait for a slot; zero waits until the caller's context ends.
	QueueTimeout time.Duration
	Launcher     capture.Launcher
	Logger       *zap.Logger
}

// Lease is a handle together with the generation it was launched in.
type Lease struct {
	Handle     capture.Handle
	Generation uint64
}

// launch is one in-progress launch shared by every caller that arrives while it runs.
type launch struct {
	done  chan struct{}
	lease Lease
	err   error
}

// Gate is the admission controller and renderer supervisor.
type Gate struct {
	sem          *semaphore.Weighted
	max          int64
	queueTimeout time.Duration
	launcher     capture.Launcher
	logger       *zap.Logger
	inflight     atomic.Int64

	mu         sync.Mutex
	handle     capture.Handle
	generation uint64
	pending    *launch
	failures   int
	closed     bool
}

// New constructs a Gate.
func New(opts Options) (*Gate, error) {
	if opts.Launcher == nil {
		return nil, fmt.Errorf("renderer launcher is required")
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Gate{
		sem:          semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		max:          int64(opts.MaxConcurrent),
		queueTimeout: opts.QueueTimeout,
		launcher:     opts.Launcher,
		logger:       opts.Logger.Named("gate"),
	}, nil
}

// WithSlot runs fn while holding one render slot. The slot is released on every exit path, including
// panics in fn.
func (g *Gate) WithSlot(ctx context.Context, fn func(context.Context) error) error {
	start := time.Now()
	acquireCtx := ctx
	if g.queueTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, g.queueTimeout)
		defer cancel()
	}
	if err := g.sem.Acquire(acquireCtx, 1); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("wait for render slot: %w", ctxErr)
		}
		return ErrQueueTimeout
	}
	metrics.ObserveQueueWait(time.Since(start))
	g.inflight.Add(1)
	metrics.IncRendersInflight()
	defer func() {
		g.inflight.Add(-1)
		metrics.DecRendersInflight()
		g.sem.Release(1)
	}()
	return fn(ctx)
}

// InFlight reports how many callers currently hold a slot.
func (g *Gate) InFlight() int {
	return int(g.inflight.Load())
}

// Handle returns the live renderer handle, launching one if needed. Callers arriving during a launch
// wait for that launch and share its outcome.
//
// The launch itself is detached from ctx and bounded only by the launcher, so one caller's deadline never
// fails the launch for the others. A caller whose ctx ends first gets a plain context error.
func (g *Gate) Handle(ctx context.Context) (Lease, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return Lease{}, ErrClosed
	}
	if g.handle != nil {
		lease := Lease{Handle: g.handle, Generation: g.generation}
		g.mu.Unlock()
		return lease, nil
	}
	l := g.pending
	if l == nil {
		l = &launch{done: make(chan struct{})}
		g.pending = l
		go g.runLaunch(context.WithoutCancel(ctx), l)
	}
	g.mu.Unlock()

	select {
	case <-l.done:
		return l.lease, l.err
	case <-ctx.Done():
		return Lease{}, fmt.Errorf("wait for renderer launch: %w", ctx.Err())
	}
}

func (g *Gate) runLaunch(ctx context.Context, l *launch) {
	l.lease, l.err = g.launch(ctx)

	g.mu.Lock()
	g.pending = nil
	g.mu.Unlock()
	close(l.done)
}

func (g *Gate) launch(ctx context.Context) (Lease, error) {
	h, err := g.launcher.Launch(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.failures++
		metrics.ObserveRendererLaunch("failure")
		g.logger.Error("renderer launch failed", zap.Int("consecutive_failures", g.failures), zap.Error(err))
		return Lease{}, fmt.Errorf("%w: %w", capture.ErrRendererUnavailable, err)
	}
	if g.closed {
		if cerr := h.Close(); cerr != nil {
			g.logger.Warn("close renderer launched during shutdown", zap.Error(cerr))
		}
		return Lease{}, ErrClosed
	}
	g.failures = 0
	g.generation++
	g.handle = h
	metrics.ObserveRendererLaunch("success")
	g.logger.Info("renderer launched", zap.Uint64("generation", g.generation))

	lease := Lease{Handle: h, Generation: g.generation}
	go g.supervise(lease)
	return lease, nil
}

// supervise drops the handle once its engine disconnects.
func (g *Gate) supervise(lease Lease) {
	<-lease.Handle.Done()
	if g.drop(lease.Generation) {
		g.logger.Warn("renderer disconnected; next render relaunches", zap.Uint64("generation", lease.Generation))
	}
}

// Invalidate discards the handle of the given generation so the next caller relaunches. It is a no-op
// when generation is stale or the handle is already gone.
func (g *Gate) Invalidate(generation uint64) {
	if g.drop(generation) {
		g.logger.Warn("renderer invalidated", zap.Uint64("generation", generation))
	}
}

func (g *Gate) drop(generation uint64) bool {
	g.mu.Lock()
	if g.handle == nil || generation != g.generation {
		g.mu.Unlock()
		return false
	}
	h := g.handle
	g.handle = nil
	g.mu.Unlock()

	if err := h.Close(); err != nil {
		g.logger.Debug("close dropped renderer", zap.Error(err))
	}
	return true
}

// Generation returns the generation of the most recent successful launch.
func (g *Gate) Generation() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generation
}

// Healthy reports false after several consecutive launch failures.
func (g *Gate) Healthy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.closed && g.failures < unhealthyAfter
}

// Ready reports whether renders can proceed. An unhealthy gate attempts one launch so readiness recovers
// without waiting for traffic.
func (g *Gate) Ready(ctx context.Context) error {
	if g.Healthy() {
		return nil
	}
	if _, err := g.Handle(ctx); err != nil {
		return err
	}
	return nil
}

// Close waits (bounded by ctx) for in-flight renders to finish, then closes the handle. Further calls to
// Handle return ErrClosed.
func (g *Gate) Close(ctx context.Context) error {
	drained := g.sem.Acquire(ctx, g.max) == nil

	g.mu.Lock()
	g.closed = true
	h := g.handle
	g.handle = nil
	g.mu.Unlock()

	if drained {
		g.sem.Release(g.max)
	} else {
		g.logger.Warn("closing renderer with renders still in flight", zap.Int("in_flight", g.InFlight()))
	}
	if h == nil {
		return nil
	}
	if err := h.Close(); err != nil {
		return fmt.Errorf("close renderer: %w", err)
	}
	return nil
}
