package capture

import "time"

// Rendering defaults applied when a request leaves a parameter unset.
const (
	DefaultWidth       = 1280
	DefaultHeight      = 800
	DefaultQuality     = 80
	DefaultMaxLoadTime = 30 * time.Second
	DefaultPDFFormat   = "A4"
	DefaultMargin      = "0"
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

	// SlowPageThreshold upgrades the default wait to networkidle0 when minLoadTime reaches it.
	SlowPageThreshold = 5 * time.Second
)

// DefaultHeaders returns the browser-like request headers sent with every navigation. Custom headers
// supplied by the caller take precedence.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"Accept-Language":           "en-US,en;q=0.9",
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
		"Accept-Encoding":           "gzip, deflate, br",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
	}
}
