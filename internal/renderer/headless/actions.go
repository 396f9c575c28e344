package headless

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/shotapi/internal/capture"
)

const spaSettle = time.Second

var adPatterns = []string{
	"googlesyndication.com",
	"doubleclick.net",
	"adservice.",
	"/ads/",
	"analytics.",
	"tracking.",
}

// spaProbe reports whether the page mounts one of the common client-side app roots.
const spaProbe = `['#__nuxt', '#app', '#root', '#__next', '.main-content'].some((s) => document.querySelector(s) !== null)`

func isAdURL(raw string) bool {
	raw = strings.ToLower(raw)
	for _, p := range adPatterns {
		if strings.Contains(raw, p) {
			return true
		}
	}
	return false
}

func (b *Browser) run(ctx context.Context, spec capture.Spec, lc *lifecycle) (capture.Artifact, error) {
	var art capture.Artifact
	err := chromedp.Run(ctx,
		setup(spec),
		navigate(spec, lc),
		settle(spec, b.logger),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			art, err = output(ctx, spec)
			return err
		}),
	)
	return art, err
}

// setup prepares the tab: viewport, identity, headers, media emulation and interception.
func setup(spec capture.Spec) chromedp.Tasks {
	headers := make(network.Headers, len(spec.Headers))
	for k, v := range spec.Headers {
		headers[k] = v
	}
	tasks := chromedp.Tasks{
		network.Enable(),
		page.SetLifecycleEventsEnabled(true),
		emulation.SetDeviceMetricsOverride(int64(spec.Width), int64(spec.Height), 1, false),
		emulation.SetUserAgentOverride(spec.UserAgent),
		network.SetExtraHTTPHeaders(headers),
	}
	if spec.DarkMode {
		tasks = append(tasks, emulation.SetEmulatedMedia().WithFeatures([]*emulation.MediaFeature{
			{Name: "prefers-color-scheme", Value: "dark"},
		}))
	}
	if spec.Transparent {
		tasks = append(tasks, emulation.SetDefaultBackgroundColorOverride().WithColor(&cdp.RGBA{}))
	}
	if spec.BlockAds {
		tasks = append(tasks, fetch.Enable().WithPatterns([]*fetch.RequestPattern{{URLPattern: "*"}}))
	}
	return tasks
}

// navigate loads the target and waits for the requested lifecycle event of the new document.
func navigate(spec capture.Spec, lc *lifecycle) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		_, loader, errorText, _, err := page.Navigate(spec.URL).Do(ctx)
		if err != nil {
			return fmt.Errorf("navigate: %w", err)
		}
		if errorText != "" {
			return fmt.Errorf("%w: %s", capture.ErrTargetUnreachable, errorText)
		}
		if loader == "" {
			return nil
		}
		if err := lc.wait(ctx, loader, lifecycleEvent(spec.WaitUntil)); err != nil {
			return fmt.Errorf("wait for %s: %w", spec.WaitUntil, err)
		}
		return nil
	}
}

// settle gives the page time to finish client-side work before it is captured. Only the fixed
// minimum load time is a hard requirement; the selector and font waits are best effort.
func settle(spec capture.Spec, logger *zap.Logger) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		if spec.MinLoadTime > 0 {
			if err := sleep(ctx, spec.MinLoadTime); err != nil {
				return err
			}
		}

		if spec.WaitForSelector != "" {
			waitCtx, cancel := context.WithTimeout(ctx, softTimeout(ctx, spec.Timeout))
			err := chromedp.WaitVisible(spec.WaitForSelector, chromedp.ByQuery).Do(waitCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warn("selector did not appear, continuing",
					zap.String("selector", spec.WaitForSelector),
					zap.Error(err),
				)
			}
		}

		var spa bool
		if err := chromedp.Evaluate(spaProbe, &spa).Do(ctx); err == nil && spa {
			if err := sleep(ctx, spaSettle); err != nil {
				return err
			}
		}

		_, _, err := runtime.Evaluate(`document.fonts.ready.then(() => true)`).
			WithAwaitPromise(true).
			Do(ctx)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}
}

// softTimeout bounds an optional wait so it never consumes more than half of what is left.
func softTimeout(ctx context.Context, limit time.Duration) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return limit
	}
	if half := time.Until(deadline) / 2; half < limit {
		return half
	}
	return limit
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// selectorExists evaluates document.querySelector without waiting for the node to appear.
func selectorExists(ctx context.Context, selector string) (bool, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return false, fmt.Errorf("encode selector: %w", err)
	}
	var found bool
	expr := fmt.Sprintf("document.querySelector(%s) !== null", quoted)
	if err := chromedp.Evaluate(expr, &found).Do(ctx); err != nil {
		return false, fmt.Errorf("query selector: %w", err)
	}
	return found, nil
}
