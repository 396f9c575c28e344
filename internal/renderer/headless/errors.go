package headless

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/shotapi/internal/capture"
)

// classify maps a failed render onto the capture error taxonomy. lost reports whether the browser
// went away during the render; taskErr is the render context's own error, if any.
func classify(err error, lost bool, taskErr error) error {
	switch {
	case errors.Is(err, capture.ErrTargetUnreachable),
		errors.Is(err, capture.ErrElementNotFound),
		errors.Is(err, capture.ErrValidation):
		return err
	case lost:
		return fmt.Errorf("%w: %w", capture.ErrHandleLost, err)
	case errors.Is(taskErr, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", capture.ErrRenderTimeout, err)
	case taskErr != nil:
		return fmt.Errorf("render canceled: %w", taskErr)
	case errors.Is(err, chromedp.ErrChannelClosed),
		errors.Is(err, chromedp.ErrInvalidContext),
		errors.Is(err, chromedp.ErrInvalidWebsocketMessage):
		return fmt.Errorf("%w: %w", capture.ErrHandleLost, err)
	case strings.Contains(err.Error(), "net::ERR_"):
		return fmt.Errorf("%w: %w", capture.ErrTargetUnreachable, err)
	default:
		return fmt.Errorf("render: %w", err)
	}
}
