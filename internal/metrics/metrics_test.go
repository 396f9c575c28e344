package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestInitIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, capturesTotal)
	require.NotNil(t, cacheLookupsTotal)
	require.NotNil(t, rendersInflight)
	require.NotNil(t, httpRequestsTotal)
}

func TestObserveHelpers(t *testing.T) {
	Init()
	before := testutil.ToFloat64(capturesTotal.WithLabelValues("HIT"))
	ObserveCapture("https://observe.example/x", "HIT", 512)
	assert.Equal(t, before+1, testutil.ToFloat64(capturesTotal.WithLabelValues("HIT")))
	assert.Equal(t, float64(512), testutil.ToFloat64(captureBytesTotal.WithLabelValues("observe.example")))

	lookups := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("l2", "expired"))
	ObserveCacheLookup("l2", "expired")
	assert.Equal(t, lookups+1, testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("l2", "expired")))

	inflight := testutil.ToFloat64(rendersInflight)
	IncRendersInflight()
	assert.Equal(t, inflight+1, testutil.ToFloat64(rendersInflight))
	DecRendersInflight()
	assert.Equal(t, inflight, testutil.ToFloat64(rendersInflight))

	SetCacheEntries(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(cacheEntries))

	ObserveRender("png", "success", 150*time.Millisecond)
	ObserveQueueWait(10 * time.Millisecond)
	assert.Positive(t, testutil.CollectAndCount(renderDurationSeconds))
	assert.Positive(t, testutil.CollectAndCount(renderQueueWaitSeconds))
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://google.com", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, in string) {
		if SanitizeSite(in) == "" {
			t.Fatalf("SanitizeSite(%q) returned empty string", in)
		}
	})
}
