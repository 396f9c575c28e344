package capture

import (
	"strings"
	"time"
)

// Params is the raw parameter mapping of a capture request, as received. Values are strings when they
// come from a query string but may be bools or numbers when built programmatically.
type Params map[string]any

// Clone returns a shallow copy of p.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ContentKind identifies the artifact encoding.
type ContentKind string

// Content kinds produced by the renderer.
const (
	KindPNG  ContentKind = "png"
	KindJPEG ContentKind = "jpeg"
	KindPDF  ContentKind = "pdf"
)

// ContentType returns the MIME type for the kind.
func (k ContentKind) ContentType() string {
	switch k {
	case KindJPEG:
		return "image/jpeg"
	case KindPDF:
		return "application/pdf"
	default:
		return "image/png"
	}
}

// ParseContentKind maps a format name (png, jpeg, jpg, pdf) to a ContentKind. Unknown names map to PNG.
func ParseContentKind(format string) ContentKind {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "jpg":
		return KindJPEG
	case "pdf":
		return KindPDF
	default:
		return KindPNG
	}
}

// CacheStatus reports how a capture was served.
type CacheStatus string

// Cache status values exposed to callers via the X-Cache header.
const (
	StatusHit      CacheStatus = "HIT"
	StatusMiss     CacheStatus = "MISS"
	StatusDisabled CacheStatus = "DISABLED"
)

// WaitCondition is the navigation milestone the renderer waits for.
type WaitCondition string

// Supported wait conditions.
const (
	WaitLoad             WaitCondition = "load"
	WaitDOMContentLoaded WaitCondition = "domcontentloaded"
	WaitNetworkIdle0     WaitCondition = "networkidle0"
	WaitNetworkIdle2     WaitCondition = "networkidle2"
)

// Artifact is a rendered output.
type Artifact struct {
	Payload []byte
	Kind    ContentKind
}

// PDFOptions controls PDF layout.
type PDFOptions struct {
	Format          string
	PrintBackground bool
	MarginTop       string
	MarginRight     string
	MarginBottom    string
	MarginLeft      string
}

// Spec is the normalized description handed to the renderer, with every default resolved.
type Spec struct {
	URL             string
	Width           int
	Height          int
	Kind            ContentKind
	Quality         int
	FullPage        bool
	DarkMode        bool
	Transparent     bool
	BlockAds        bool
	UserAgent       string
	Headers         map[string]string
	WaitUntil       WaitCondition
	MinLoadTime     time.Duration
	Timeout         time.Duration
	Selector        string
	WaitForSelector string
	PDF             PDFOptions
}

// Deadline is the total time budget for one render: the navigation timeout plus the requested settle delay.
func (s Spec) Deadline() time.Duration {
	return s.Timeout + s.MinLoadTime
}

// Record describes one completed (or failed) capture for audit and event fan-out.
type Record struct {
	ID         string        `json:"id"`
	Key        string        `json:"cache_key"`
	URL        string        `json:"url"`
	Kind       ContentKind   `json:"kind"`
	Status     CacheStatus   `json:"cache_status"`
	Bytes      int           `json:"bytes"`
	Duration   time.Duration `json:"duration_ns"`
	CapturedAt time.Time     `json:"captured_at"`
	Error      string        `json:"error,omitempty"`
}
