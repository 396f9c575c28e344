package capture

import "errors"

// Error taxonomy for the capture pipeline. Callers match with errors.Is; concrete failures wrap one of
// these with additional context.
var (
	// ErrValidation marks bad or missing request parameters.
	ErrValidation = errors.New("invalid request parameters")
	// ErrTargetUnreachable marks a malformed or unreachable target (DNS failure, aborted navigation).
	ErrTargetUnreachable = errors.New("invalid or inaccessible URL")
	// ErrRenderTimeout marks a navigation, wait, or queue bound that was exceeded.
	ErrRenderTimeout = errors.New("page load timed out")
	// ErrElementNotFound marks a selector capture whose element is absent.
	ErrElementNotFound = errors.New("element not found")
	// ErrRendererUnavailable marks a renderer that failed to launch or restart.
	ErrRendererUnavailable = errors.New("renderer unavailable")
	// ErrHandleLost marks a render that failed because the shared renderer disconnected mid-flight.
	// It is retryable once against a fresh handle.
	ErrHandleLost = errors.New("renderer connection lost")
	// ErrCacheIO marks a cache storage failure. It is logged and never surfaced as a capture failure.
	ErrCacheIO = errors.New("cache i/o failure")
)
