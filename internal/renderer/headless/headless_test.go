package headless

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"testing"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/shotapi/internal/capture"
)

func TestParseSwitch(t *testing.T) {
	t.Parallel()

	cases := []struct {
		arg   string
		name  string
		value any
		ok    bool
	}{
		{"--lang=de-DE", "lang", "de-DE", true},
		{"--mute-audio", "mute-audio", true, true},
		{"  --proxy-server=socks5://h:1080 ", "proxy-server", "socks5://h:1080", true},
		{"lang=de", "", nil, false},
		{"--", "", nil, false},
	}
	for _, tc := range cases {
		name, value, ok := parseSwitch(tc.arg)
		if ok != tc.ok || name != tc.name || value != tc.value {
			t.Fatalf("parseSwitch(%q) = %q, %v, %v", tc.arg, name, value, ok)
		}
	}
}

func TestNewLauncherDefaults(t *testing.T) {
	t.Parallel()

	l := NewLauncher(Config{}, nil)
	if l.cfg.LaunchTimeout != defaultLaunchTimeout {
		t.Fatalf("expected default launch timeout, got %v", l.cfg.LaunchTimeout)
	}
	if l.logger == nil {
		t.Fatal("expected a logger")
	}
	base := len(l.allocatorOptions())
	l = NewLauncher(Config{ExtraArgs: []string{"--lang=fr", "bogus"}, ExecPath: "/usr/bin/chromium"}, nil)
	if got := len(l.allocatorOptions()); got != base+2 {
		t.Fatalf("expected %d options, got %d", base+2, got)
	}
}

func TestIsAdURL(t *testing.T) {
	t.Parallel()

	blocked := []string{
		"https://pagead2.googlesyndication.com/pagead/js/adsbygoogle.js",
		"https://stats.g.doubleclick.net/r/collect",
		"https://adservice.google.com/ddm/fls",
		"https://example.com/ads/banner.png",
		"https://ANALYTICS.example.com/a.js",
		"https://tracking.example.org/pixel",
	}
	for _, u := range blocked {
		if !isAdURL(u) {
			t.Fatalf("expected %s to be blocked", u)
		}
	}
	for _, u := range []string{"https://example.com/", "https://cdn.example.com/app.js"} {
		if isAdURL(u) {
			t.Fatalf("expected %s to pass", u)
		}
	}
}

func TestLifecycleWait(t *testing.T) {
	t.Parallel()

	lc := newLifecycle()
	lc.observe("old", "networkIdle")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- lc.wait(ctx, "new", "networkIdle") }()

	lc.observe("new", "init")
	lc.observe("new", "load")
	select {
	case err := <-done:
		t.Fatalf("wait returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	lc.observe("new", "networkIdle")
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLifecycleInitResets(t *testing.T) {
	t.Parallel()

	lc := newLifecycle()
	lc.observe("l", "load")
	lc.observe("l", "init")
	if ok, _ := lc.reached("l", "load"); ok {
		t.Fatal("init should clear earlier events")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := lc.wait(ctx, "l", "load"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestLifecycleEvent(t *testing.T) {
	t.Parallel()

	cases := map[capture.WaitCondition]string{
		capture.WaitLoad:             "load",
		capture.WaitDOMContentLoaded: "DOMContentLoaded",
		capture.WaitNetworkIdle0:     "networkIdle",
		capture.WaitNetworkIdle2:     "networkAlmostIdle",
		"":                           "networkAlmostIdle",
	}
	for in, want := range cases {
		if got := lifecycleEvent(in); got != want {
			t.Fatalf("lifecycleEvent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPaperSize(t *testing.T) {
	t.Parallel()

	w, h, err := paperSize("")
	if err != nil || w != 8.27 || h != 11.7 {
		t.Fatalf("default paper = %v x %v, %v", w, h, err)
	}
	w, h, err = paperSize("Letter")
	if err != nil || w != 8.5 || h != 11 {
		t.Fatalf("letter = %v x %v, %v", w, h, err)
	}
	if _, _, err := paperSize("B5"); !errors.Is(err, capture.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMarginInches(t *testing.T) {
	t.Parallel()

	cases := map[string]float64{
		"":       0,
		"0":      0,
		"96":     1,
		"48px":   0.5,
		"1in":    1,
		"2.54cm": 2.54 * 37.8 / 96,
		"10mm":   10 * 3.78 / 96,
	}
	for in, want := range cases {
		got, err := marginInches(in)
		if err != nil {
			t.Fatalf("marginInches(%q): %v", in, err)
		}
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("marginInches(%q) = %v, want %v", in, got, want)
		}
	}
	for _, in := range []string{"abc", "-1px", "1pt"} {
		if _, err := marginInches(in); !errors.Is(err, capture.ErrValidation) {
			t.Fatalf("expected validation error for %q, got %v", in, err)
		}
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	cases := []struct {
		name    string
		err     error
		lost    bool
		taskErr error
		want    error
	}{
		{"unreachable kept", capture.ErrTargetUnreachable, false, nil, capture.ErrTargetUnreachable},
		{"element kept", capture.ErrElementNotFound, true, nil, capture.ErrElementNotFound},
		{"browser lost", base, true, context.Canceled, capture.ErrHandleLost},
		{"deadline", base, false, context.DeadlineExceeded, capture.ErrRenderTimeout},
		{"canceled", base, false, context.Canceled, context.Canceled},
		{"channel closed", chromedp.ErrChannelClosed, false, nil, capture.ErrHandleLost},
		{"net error", errors.New("page load error net::ERR_NAME_NOT_RESOLVED"), false, nil, capture.ErrTargetUnreachable},
		{"other", base, false, nil, base},
	}
	for _, tc := range cases {
		if got := classify(tc.err, tc.lost, tc.taskErr); !errors.Is(got, tc.want) {
			t.Fatalf("%s: classify = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestToJPEG(t *testing.T) {
	t.Parallel()

	img := image.NewNRGBA(image.Rect(0, 0, 16, 8))
	for x := 0; x < 16; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 16), G: 80, B: 200, A: 255})
		}
	}
	var src bytes.Buffer
	if err := png.Encode(&src, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	out, err := toJPEG(src.Bytes(), 0)
	if err != nil {
		t.Fatalf("toJPEG: %v", err)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not jpeg: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 16 || b.Dy() != 8 {
		t.Fatalf("unexpected bounds %v", b)
	}

	if _, err := toJPEG([]byte("not an image"), 80); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestSoftTimeout(t *testing.T) {
	t.Parallel()

	if got := softTimeout(context.Background(), 3*time.Second); got != 3*time.Second {
		t.Fatalf("expected limit without deadline, got %v", got)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if got := softTimeout(ctx, 30*time.Second); got > time.Second {
		t.Fatalf("expected at most half the remaining time, got %v", got)
	}
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	defer stop()
	cancelParent()

	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("child was not canceled")
	}
}

func TestNoopLaunch(t *testing.T) {
	t.Parallel()

	h, err := NewNoop().Launch(context.Background())
	if err == nil || h != nil {
		t.Fatalf("expected launch failure, got %v, %v", h, err)
	}
}
