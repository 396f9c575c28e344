package headless

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/shotapi/internal/capture"
)

// Browser is a running Chrome instance shared by many renders.
type Browser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger
	done        chan struct{}
	closeOnce   sync.Once
}

var _ capture.Handle = (*Browser)(nil)

func newBrowser(ctx context.Context, cancel, allocCancel context.CancelFunc, logger *zap.Logger) *Browser {
	b := &Browser{
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		logger:      logger,
		done:        make(chan struct{}),
	}
	var lost <-chan struct{}
	if c := chromedp.FromContext(ctx); c != nil && c.Browser != nil {
		lost = c.Browser.LostConnection
	}
	go func() {
		defer close(b.done)
		select {
		case <-ctx.Done():
		case <-lost:
			logger.Warn("browser connection lost")
		}
	}()
	return b
}

// Done is closed once the browser disconnects or is closed.
func (b *Browser) Done() <-chan struct{} { return b.done }

// Close shuts the browser down gracefully and releases the allocator.
func (b *Browser) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = chromedp.Cancel(b.ctx)
		b.cancel()
		b.allocCancel()
	})
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

func (b *Browser) lost() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Render captures spec in a fresh tab.
func (b *Browser) Render(ctx context.Context, spec capture.Spec) (capture.Artifact, error) {
	if b.lost() {
		return capture.Artifact{}, capture.ErrHandleLost
	}

	tabCtx, cancelTab := chromedp.NewContext(b.ctx)
	defer cancelTab()

	var (
		taskCtx    context.Context
		cancelTask context.CancelFunc
	)
	if deadline, ok := ctx.Deadline(); ok {
		taskCtx, cancelTask = context.WithDeadline(tabCtx, deadline)
	} else {
		taskCtx, cancelTask = context.WithTimeout(tabCtx, spec.Deadline())
	}
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	lc := newLifecycle()
	chromedp.ListenTarget(tabCtx, func(ev any) {
		switch e := ev.(type) {
		case *page.EventLifecycleEvent:
			lc.observe(e.LoaderID, e.Name)
		case *fetch.EventRequestPaused:
			go b.interceptRequest(tabCtx, e)
		}
	})

	art, err := b.run(taskCtx, spec, lc)
	if err != nil {
		return capture.Artifact{}, classify(err, b.lost(), taskCtx.Err())
	}
	return art, nil
}

// interceptRequest fails requests to ad and tracker hosts and lets everything else through. Only
// active when the Fetch domain was enabled for the tab.
func (b *Browser) interceptRequest(tabCtx context.Context, ev *fetch.EventRequestPaused) {
	c := chromedp.FromContext(tabCtx)
	if c == nil || c.Target == nil {
		return
	}
	execCtx := cdp.WithExecutor(tabCtx, c.Target)
	var err error
	if ev.Request != nil && isAdURL(ev.Request.URL) {
		err = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
	} else {
		err = fetch.ContinueRequest(ev.RequestID).Do(execCtx)
	}
	if err != nil {
		b.logger.Debug("resolve paused request", zap.Error(err))
	}
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
