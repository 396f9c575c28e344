// Package pipeline orchestrates one capture: derive the key, consult the cache, and on a miss render
// inside a gate slot and store the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/shotapi/internal/cache"
	"github.com/JakeFAU/shotapi/internal/cachekey"
	"github.com/JakeFAU/shotapi/internal/capture"
	"github.com/JakeFAU/shotapi/internal/clock/system"
	"github.com/JakeFAU/shotapi/internal/gate"
	"github.com/JakeFAU/shotapi/internal/id/uuid"
	"github.com/JakeFAU/shotapi/internal/metrics"
)

// DefaultTTL applies when a request does not set cacheTime.
const DefaultTTL = time.Hour

const emitTimeout = 10 * time.Second

// Cache is the subset of the tiered cache the pipeline uses.
type Cache interface {
	Get(ctx context.Context, key string) (cache.Entry, bool)
	Set(ctx context.Context, key string, payload []byte, kind capture.ContentKind, ttl time.Duration) error
}

// Gate is the subset of the render gate the pipeline uses.
type Gate interface {
	WithSlot(ctx context.Context, fn func(context.Context) error) error
	Handle(ctx context.Context) (gate.Lease, error)
	Invalidate(generation uint64)
}

// Options configures a Pipeline.
type Options struct {
	// DefaultTTL is used when a request leaves cacheTime unset. Zero disables caching by default.
	DefaultTTL time.Duration
	// Coalesce shares one render between concurrent misses for the same key.
	Coalesce  bool
	Recorder  capture.Recorder
	Publisher capture.Publisher
	Topic     string
	Clock     capture.Clock
	IDs       capture.IDGenerator
	Logger    *zap.Logger
}

// Result is a served capture.
type Result struct {
	Payload []byte
	Kind    capture.ContentKind
	Status  capture.CacheStatus
	Key     string
}

// Pipeline is the capture orchestrator. It is safe for concurrent use.
type Pipeline struct {
	deriver    *cachekey.Deriver
	cache      Cache
	gate       Gate
	defaultTTL time.Duration
	coalesce   bool
	recorder   capture.Recorder
	publisher  capture.Publisher
	topic      string
	clock      capture.Clock
	ids        capture.IDGenerator
	logger     *zap.Logger

	flights singleflight.Group

	mu     sync.Mutex
	closed bool
	bg     conc.WaitGroup
}

// New wires a Pipeline.
func New(deriver *cachekey.Deriver, c Cache, g Gate, opts Options) (*Pipeline, error) {
	if deriver == nil || c == nil || g == nil {
		return nil, fmt.Errorf("deriver, cache, and gate are required")
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.IDs == nil {
		opts.IDs = uuid.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Pipeline{
		deriver:    deriver,
		cache:      c,
		gate:       g,
		defaultTTL: opts.DefaultTTL,
		coalesce:   opts.Coalesce,
		recorder:   opts.Recorder,
		publisher:  opts.Publisher,
		topic:      opts.Topic,
		clock:      opts.Clock,
		ids:        opts.IDs,
		logger:     opts.Logger.Named("pipeline"),
	}, nil
}

// Capture serves req from the cache or renders it.
func (p *Pipeline) Capture(ctx context.Context, req capture.Request) (Result, error) {
	start := p.clock.Now()
	spec := req.Spec()
	key := p.deriver.Derive(req.Params).String()

	ttl := p.defaultTTL
	if req.CacheTime != nil {
		ttl = *req.CacheTime
	}

	var (
		res Result
		err error
	)
	switch {
	case ttl <= 0:
		var art capture.Artifact
		art, err = p.render(ctx, spec)
		res = Result{Payload: art.Payload, Kind: art.Kind, Status: capture.StatusDisabled, Key: key}
	default:
		if entry, ok := p.cache.Get(ctx, key); ok {
			res = Result{Payload: entry.Payload, Kind: entry.Kind, Status: capture.StatusHit, Key: key}
			break
		}
		var art capture.Artifact
		art, err = p.miss(ctx, key, spec, ttl)
		res = Result{Payload: art.Payload, Kind: art.Kind, Status: capture.StatusMiss, Key: key}
	}

	p.finish(ctx, req, res, err, start)
	if err != nil {
		return Result{Key: key}, err
	}
	return res, nil
}

// miss renders and stores, sharing the work with concurrent misses for the same key when coalescing.
func (p *Pipeline) miss(ctx context.Context, key string, spec capture.Spec, ttl time.Duration) (capture.Artifact, error) {
	if !p.coalesce {
		return p.renderAndStore(ctx, key, spec, ttl)
	}
	// The shared flight outlives any single caller; each render is still bounded by its own deadline.
	// Followers receive the leader's artifact, so the leader's spec wins when requests that share a key
	// differ only in the rendered URL (a trailing slash).
	flightCtx := context.WithoutCancel(ctx)
	ch := p.flights.DoChan(key, func() (any, error) {
		return p.renderAndStore(flightCtx, key, spec, ttl)
	})
	select {
	case out := <-ch:
		if out.Err != nil {
			return capture.Artifact{}, out.Err
		}
		if out.Shared {
			p.logger.Debug("coalesced render", zap.String("key", key))
		}
		return out.Val.(capture.Artifact), nil
	case <-ctx.Done():
		return capture.Artifact{}, fmt.Errorf("wait for render: %w", ctx.Err())
	}
}

func (p *Pipeline) renderAndStore(ctx context.Context, key string, spec capture.Spec, ttl time.Duration) (capture.Artifact, error) {
	art, err := p.render(ctx, spec)
	if err != nil {
		return capture.Artifact{}, err
	}
	if err := p.cache.Set(ctx, key, art.Payload, art.Kind, ttl); err != nil {
		p.logger.Warn("cache store failed; serving uncached", zap.String("key", key), zap.Error(err))
	}
	return art, nil
}

// render runs one render inside a gate slot. A render that loses its handle is retried once on a
// freshly launched handle.
func (p *Pipeline) render(ctx context.Context, spec capture.Spec) (capture.Artifact, error) {
	var art capture.Artifact
	err := p.gate.WithSlot(ctx, func(ctx context.Context) error {
		renderCtx, cancel := context.WithTimeout(ctx, spec.Deadline())
		defer cancel()

		for attempt := 1; ; attempt++ {
			lease, err := p.gate.Handle(renderCtx)
			if err != nil {
				if errors.Is(renderCtx.Err(), context.DeadlineExceeded) {
					err = fmt.Errorf("%w: %w", capture.ErrRenderTimeout, err)
				}
				return err
			}
			started := time.Now()
			art, err = lease.Handle.Render(renderCtx, spec)
			elapsed := time.Since(started)
			if err == nil {
				metrics.ObserveRender(string(art.Kind), "success", elapsed)
				return nil
			}
			if errors.Is(err, capture.ErrHandleLost) {
				p.gate.Invalidate(lease.Generation)
				if attempt == 1 {
					p.logger.Warn("renderer lost mid-render; retrying on a fresh handle",
						zap.Uint64("generation", lease.Generation), zap.Error(err))
					continue
				}
				err = fmt.Errorf("%w: %w", capture.ErrRendererUnavailable, err)
			}
			if errors.Is(renderCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, capture.ErrRenderTimeout) {
				err = fmt.Errorf("%w: %w", capture.ErrRenderTimeout, err)
			}
			metrics.ObserveRender(string(spec.Kind), outcome(err), elapsed)
			return err
		}
	})
	if errors.Is(err, gate.ErrQueueTimeout) {
		err = fmt.Errorf("%w: %w", capture.ErrRenderTimeout, err)
	}
	return art, err
}

func (p *Pipeline) finish(ctx context.Context, req capture.Request, res Result, err error, start time.Time) {
	elapsed := p.clock.Now().Sub(start)
	status := string(res.Status)
	if err != nil {
		status = "ERROR"
	}
	metrics.ObserveCapture(req.URL, status, len(res.Payload))

	fields := []zap.Field{
		zap.String("key", res.Key),
		zap.String("url", req.URL),
		zap.String("cache", status),
		zap.Duration("duration", elapsed),
	}
	if err != nil {
		p.logger.Warn("capture failed", append(fields, zap.Error(err))...)
	} else {
		p.logger.Info("capture served", append(fields, zap.String("size", humanize.Bytes(uint64(len(res.Payload)))))...)
	}

	rec := capture.Record{
		Key:        res.Key,
		URL:        req.URL,
		Kind:       res.Kind,
		Status:     res.Status,
		Bytes:      len(res.Payload),
		Duration:   elapsed,
		CapturedAt: start,
	}
	if err != nil {
		rec.Kind = req.Spec().Kind
		rec.Error = err.Error()
	}
	p.emit(ctx, rec)
}

// emit hands the record to the recorder and publisher in the background.
func (p *Pipeline) emit(ctx context.Context, rec capture.Record) {
	if p.recorder == nil && p.publisher == nil {
		return
	}
	id, err := p.ids.NewID()
	if err != nil {
		p.logger.Warn("generate record id", zap.Error(err))
		return
	}
	rec.ID = id

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	bgCtx := context.WithoutCancel(ctx)
	p.bg.Go(func() {
		ctx, cancel := context.WithTimeout(bgCtx, emitTimeout)
		defer cancel()
		if p.recorder != nil {
			if err := p.recorder.RecordCapture(ctx, rec); err != nil {
				p.logger.Warn("record capture", zap.String("id", rec.ID), zap.Error(err))
			}
		}
		if p.publisher != nil {
			if _, err := p.publisher.Publish(ctx, p.topic, rec); err != nil {
				p.logger.Warn("publish capture event", zap.String("id", rec.ID), zap.Error(err))
			}
		}
	})
}

// Close stops accepting background work and waits, bounded by ctx, for pending emits.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if r := p.bg.WaitAndRecover(); r != nil {
			p.logger.Error("background emit panicked", zap.String("panic", r.String()))
		}
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain capture events: %w", ctx.Err())
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, capture.ErrRenderTimeout):
		return "timeout"
	case errors.Is(err, capture.ErrTargetUnreachable):
		return "unreachable"
	case errors.Is(err, capture.ErrElementNotFound):
		return "element_not_found"
	case errors.Is(err, capture.ErrRendererUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
