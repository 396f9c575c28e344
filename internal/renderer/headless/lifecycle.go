package headless

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/cdp"

	"github.com/JakeFAU/shotapi/internal/capture"
)

// lifecycle records page lifecycle events per loader so a navigation can wait for the condition the
// caller asked for.
type lifecycle struct {
	mu     sync.Mutex
	seen   map[cdp.LoaderID]map[string]struct{}
	notify chan struct{}
}

func newLifecycle() *lifecycle {
	return &lifecycle{
		seen:   make(map[cdp.LoaderID]map[string]struct{}),
		notify: make(chan struct{}),
	}
}

func (l *lifecycle) observe(loader cdp.LoaderID, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if name == "init" || l.seen[loader] == nil {
		l.seen[loader] = make(map[string]struct{})
	}
	if name != "init" {
		l.seen[loader][name] = struct{}{}
	}
	close(l.notify)
	l.notify = make(chan struct{})
}

func (l *lifecycle) reached(loader cdp.LoaderID, name string) (bool, <-chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[loader][name]
	return ok, l.notify
}

// wait blocks until loader has emitted the named event or ctx ends.
func (l *lifecycle) wait(ctx context.Context, loader cdp.LoaderID, name string) error {
	for {
		ok, changed := l.reached(loader, name)
		if ok {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// lifecycleEvent maps a wait condition to the event Chrome emits for it.
func lifecycleEvent(w capture.WaitCondition) string {
	switch w {
	case capture.WaitLoad:
		return "load"
	case capture.WaitDOMContentLoaded:
		return "DOMContentLoaded"
	case capture.WaitNetworkIdle0:
		return "networkIdle"
	default:
		return "networkAlmostIdle"
	}
}
