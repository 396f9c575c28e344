// Package headless renders captures with headless Chrome via chromedp.
//
// A Launcher starts one browser process; the resulting Browser is the shared renderer handle. Each
// Render opens its own tab, so concurrent renders share the process but not page state.
package headless

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/shotapi/internal/capture"
)

const defaultLaunchTimeout = 30 * time.Second

// Config controls how the browser is launched.
type Config struct {
	// ExecPath overrides browser discovery.
	ExecPath string `mapstructure:"exec_path"`
	// ExtraArgs are additional command-line switches, e.g. "--lang=de-DE".
	ExtraArgs     []string      `mapstructure:"extra_args"`
	LaunchTimeout time.Duration `mapstructure:"launch_timeout"`
	// Headful runs a visible browser, for local debugging only.
	Headful bool `mapstructure:"headful"`
}

// Launcher implements capture.Launcher for Chrome.
type Launcher struct {
	cfg    Config
	logger *zap.Logger
}

var _ capture.Launcher = (*Launcher)(nil)

// NewLauncher creates a Launcher.
func NewLauncher(cfg Config, logger *zap.Logger) *Launcher {
	if cfg.LaunchTimeout <= 0 {
		cfg.LaunchTimeout = defaultLaunchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{cfg: cfg, logger: logger.Named("headless")}
}

// Launch starts a browser and waits, bounded by ctx and the launch timeout, until it accepts commands.
// The browser's lifetime is independent of ctx; it ends when the returned handle is closed or the
// process dies.
func (l *Launcher) Launch(ctx context.Context) (capture.Handle, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(l.logger.Sugar().Debugf),
	)

	ctx, cancel := context.WithTimeout(ctx, l.cfg.LaunchTimeout)
	defer cancel()

	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()

	var err error
	select {
	case err = <-started:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return newBrowser(browserCtx, browserCancel, allocCancel, l.logger), nil
}

// allocatorOptions layers the capture flags over chromedp's defaults. Later flags win.
func (l *Launcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-accelerated-2d-canvas", true),
		chromedp.Flag("font-render-hinting", "none"),
		chromedp.Flag("disable-web-security", true),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if l.cfg.Headful {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	for _, arg := range l.cfg.ExtraArgs {
		name, value, ok := parseSwitch(arg)
		if !ok {
			l.logger.Warn("ignoring malformed browser switch", zap.String("arg", arg))
			continue
		}
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// parseSwitch turns "--name=value" or "--name" into a chromedp flag.
func parseSwitch(arg string) (string, any, bool) {
	arg = strings.TrimSpace(arg)
	if !strings.HasPrefix(arg, "--") {
		return "", nil, false
	}
	name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
	if name == "" {
		return "", nil, false
	}
	if !hasValue {
		return name, true, true
	}
	return name, value, true
}
