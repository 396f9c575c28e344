package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/shotapi/internal/capture"
)

// Noop is a Launcher for deployments without a browser. Every launch fails, so the gate reports the
// renderer unavailable while cache hits are still served.
type Noop struct{}

var _ capture.Launcher = Noop{}

// NewNoop creates a Noop launcher.
func NewNoop() Noop {
	return Noop{}
}

// Launch always fails.
func (Noop) Launch(context.Context) (capture.Handle, error) {
	return nil, errors.New("headless rendering not configured")
}
