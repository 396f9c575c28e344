package capture

import (
	"context"
	"time"
)

// Renderer produces an artifact for a resolved spec.
type Renderer interface {
	Render(ctx context.Context, spec Spec) (Artifact, error)
}

// Handle is a shared, long-lived renderer instance. Done is closed once the underlying engine disconnects.
type Handle interface {
	Renderer
	Done() <-chan struct{}
	Close() error
}

// Launcher starts a new renderer instance.
type Launcher interface {
	Launch(ctx context.Context) (Handle, error)
}

// Publisher pushes capture events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Recorder persists capture records.
type Recorder interface {
	RecordCapture(ctx context.Context, record Record) error
}

// Hasher computes digests for cache keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record and request IDs.
type IDGenerator interface {
	NewID() (string, error)
}
