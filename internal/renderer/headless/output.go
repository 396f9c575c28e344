package headless

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/shotapi/internal/capture"
)

// paperSizes holds sheet dimensions in inches.
var paperSizes = map[string][2]float64{
	"letter":  {8.5, 11},
	"legal":   {8.5, 14},
	"tabloid": {11, 17},
	"a0":      {33.1, 46.8},
	"a1":      {23.4, 33.1},
	"a2":      {16.54, 23.4},
	"a3":      {11.7, 16.54},
	"a4":      {8.27, 11.7},
	"a5":      {5.83, 8.27},
}

// pixelsPer converts CSS units to pixels at 96 dpi.
var pixelsPer = map[string]float64{
	"px": 1,
	"in": 96,
	"cm": 37.8,
	"mm": 3.78,
}

func output(ctx context.Context, spec capture.Spec) (capture.Artifact, error) {
	switch {
	case spec.Selector != "":
		return element(ctx, spec)
	case spec.Kind == capture.KindPDF:
		return printPDF(ctx, spec.PDF)
	default:
		return screenshot(ctx, spec)
	}
}

func screenshot(ctx context.Context, spec capture.Spec) (capture.Artifact, error) {
	params := page.CaptureScreenshot().WithFromSurface(true)
	if spec.Kind == capture.KindJPEG {
		params = params.WithFormat(page.CaptureScreenshotFormatJpeg).WithQuality(int64(spec.Quality))
	} else {
		params = params.WithFormat(page.CaptureScreenshotFormatPng)
	}
	if spec.FullPage {
		_, _, _, _, _, content, err := page.GetLayoutMetrics().Do(ctx)
		if err != nil {
			return capture.Artifact{}, fmt.Errorf("layout metrics: %w", err)
		}
		params = params.WithCaptureBeyondViewport(true).WithClip(&page.Viewport{
			Width:  math.Ceil(content.Width),
			Height: math.Ceil(content.Height),
			Scale:  1,
		})
	}
	buf, err := params.Do(ctx)
	if err != nil {
		return capture.Artifact{}, fmt.Errorf("capture screenshot: %w", err)
	}
	return capture.Artifact{Payload: buf, Kind: spec.Kind}, nil
}

// element captures the first node matching the selector. Chrome only clips nodes to PNG, so JPEG
// output is re-encoded afterwards.
func element(ctx context.Context, spec capture.Spec) (capture.Artifact, error) {
	found, err := selectorExists(ctx, spec.Selector)
	if err != nil {
		return capture.Artifact{}, err
	}
	if !found {
		return capture.Artifact{}, fmt.Errorf("%w: %q", capture.ErrElementNotFound, spec.Selector)
	}

	var nodes []*cdp.Node
	if err := chromedp.Nodes(spec.Selector, &nodes, chromedp.ByQuery).Do(ctx); err != nil {
		return capture.Artifact{}, fmt.Errorf("resolve element: %w", err)
	}
	var buf []byte
	if err := chromedp.ScreenshotNodes(nodes[:1], 1, &buf).Do(ctx); err != nil {
		return capture.Artifact{}, fmt.Errorf("capture element: %w", err)
	}

	if spec.Kind != capture.KindJPEG {
		return capture.Artifact{Payload: buf, Kind: capture.KindPNG}, nil
	}
	jpg, err := toJPEG(buf, spec.Quality)
	if err != nil {
		return capture.Artifact{}, err
	}
	return capture.Artifact{Payload: jpg, Kind: capture.KindJPEG}, nil
}

func printPDF(ctx context.Context, opts capture.PDFOptions) (capture.Artifact, error) {
	width, height, err := paperSize(opts.Format)
	if err != nil {
		return capture.Artifact{}, err
	}
	var margins [4]float64
	for i, raw := range []string{opts.MarginTop, opts.MarginRight, opts.MarginBottom, opts.MarginLeft} {
		if margins[i], err = marginInches(raw); err != nil {
			return capture.Artifact{}, err
		}
	}
	buf, _, err := page.PrintToPDF().
		WithPaperWidth(width).
		WithPaperHeight(height).
		WithPrintBackground(opts.PrintBackground).
		WithMarginTop(margins[0]).
		WithMarginRight(margins[1]).
		WithMarginBottom(margins[2]).
		WithMarginLeft(margins[3]).
		Do(ctx)
	if err != nil {
		return capture.Artifact{}, fmt.Errorf("print pdf: %w", err)
	}
	return capture.Artifact{Payload: buf, Kind: capture.KindPDF}, nil
}

func paperSize(format string) (float64, float64, error) {
	if format == "" {
		format = capture.DefaultPDFFormat
	}
	size, ok := paperSizes[strings.ToLower(format)]
	if !ok {
		return 0, 0, fmt.Errorf("%w: unknown paper format %q", capture.ErrValidation, format)
	}
	return size[0], size[1], nil
}

// marginInches parses a CSS length such as "10px", "1cm" or "0". Bare numbers are pixels.
func marginInches(raw string) (float64, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return 0, nil
	}
	unit := "px"
	if len(value) > 2 {
		if _, ok := pixelsPer[value[len(value)-2:]]; ok {
			unit = value[len(value)-2:]
			value = value[:len(value)-2]
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: invalid margin %q", capture.ErrValidation, raw)
	}
	return v * pixelsPer[unit] / 96, nil
}
