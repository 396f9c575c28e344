package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestDefaults(t *testing.T) {
	t.Parallel()

	req, err := NewRequest(Params{"url": "https://example.com"})
	require.NoError(t, err)

	assert.Equal(t, "https://example.com", req.URL)
	assert.Equal(t, DefaultWidth, req.Width)
	assert.Equal(t, DefaultHeight, req.Height)
	assert.Equal(t, KindPNG, req.Kind)
	assert.True(t, req.PrintBackground)
	assert.False(t, req.FullPage)
	assert.Nil(t, req.CacheTime)
	assert.Equal(t, DefaultMaxLoadTime, req.MaxLoadTime)

	spec := req.Spec()
	assert.Equal(t, WaitNetworkIdle2, spec.WaitUntil)
	assert.Equal(t, DefaultUserAgent, spec.UserAgent)
	assert.Equal(t, "A4", spec.PDF.Format)
	assert.Equal(t, "0", spec.PDF.MarginLeft)
	assert.Equal(t, "en-US,en;q=0.9", spec.Headers["Accept-Language"])
	assert.Equal(t, 30*time.Second, spec.Deadline())
}

func TestNewRequestParsesStringsAndNatives(t *testing.T) {
	t.Parallel()

	req, err := NewRequest(Params{
		"url":         "https://example.com/page",
		"width":       "800",
		"height":      600,
		"format":      "JPG",
		"quality":     "70",
		"fullPage":    true,
		"darkMode":    "true",
		"minLoadTime": "6000",
		"maxLoadTime": 20000,
		"cacheTime":   "120",
		"headers":     `{"Accept-Language":"de-DE","X-Test":"1"}`,
		"apiKey":      "secret",
	})
	require.NoError(t, err)

	assert.Equal(t, 800, req.Width)
	assert.Equal(t, 600, req.Height)
	assert.Equal(t, KindJPEG, req.Kind)
	assert.True(t, req.FullPage)
	assert.True(t, req.DarkMode)
	require.NotNil(t, req.CacheTime)
	assert.Equal(t, 120*time.Second, *req.CacheTime)
	assert.Equal(t, "secret", req.APIKey)

	spec := req.Spec()
	assert.Equal(t, WaitNetworkIdle0, spec.WaitUntil)
	assert.Equal(t, 70, spec.Quality)
	assert.Equal(t, "de-DE", spec.Headers["Accept-Language"], "custom headers override defaults")
	assert.Equal(t, "1", spec.Headers["X-Test"])
	assert.Equal(t, 26*time.Second, spec.Deadline())
}

func TestNewRequestCacheTimeFalseDisables(t *testing.T) {
	t.Parallel()

	for _, raw := range []any{"false", "0", 0} {
		req, err := NewRequest(Params{"url": "https://example.com", "cacheTime": raw})
		require.NoError(t, err)
		require.NotNil(t, req.CacheTime)
		assert.Zero(t, *req.CacheTime, "cacheTime=%v", raw)
	}
}

func TestNewRequestValidation(t *testing.T) {
	t.Parallel()

	cases := map[string]Params{
		"missing url":       {},
		"relative url":      {"url": "example.com"},
		"ftp url":           {"url": "ftp://example.com/file"},
		"width too large":   {"url": "https://example.com", "width": "5001"},
		"width zero":        {"url": "https://example.com", "width": "0"},
		"width not number":  {"url": "https://example.com", "width": "wide"},
		"bad format":        {"url": "https://example.com", "format": "gif"},
		"quality too high":  {"url": "https://example.com", "quality": 101},
		"bad bool":          {"url": "https://example.com", "fullPage": "maybe"},
		"min load too long": {"url": "https://example.com", "minLoadTime": "30001"},
		"max load too low":  {"url": "https://example.com", "maxLoadTime": "999"},
		"negative cache":    {"url": "https://example.com", "cacheTime": "-1"},
		"bad waitUntil":     {"url": "https://example.com", "waitUntil": "idle"},
		"bad pdfFormat":     {"url": "https://example.com", "pdfFormat": "B5"},
		"bad headers":       {"url": "https://example.com", "headers": "not json"},
		"unknown parameter": {"url": "https://example.com", "zoom": "2"},
	}
	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := NewRequest(params)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestSpecSelectorNeverPDF(t *testing.T) {
	t.Parallel()

	req, err := NewRequest(Params{"url": "https://example.com", "format": "pdf", "selector": "#main"})
	require.NoError(t, err)
	assert.Equal(t, KindPNG, req.Spec().Kind)

	req, err = NewRequest(Params{"url": "https://example.com", "format": "jpeg", "selector": "#main"})
	require.NoError(t, err)
	assert.Equal(t, KindJPEG, req.Spec().Kind)
}

func TestContentKind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "image/png", KindPNG.ContentType())
	assert.Equal(t, "image/jpeg", KindJPEG.ContentType())
	assert.Equal(t, "application/pdf", KindPDF.ContentType())
	assert.Equal(t, KindJPEG, ParseContentKind("jpg"))
	assert.Equal(t, KindPNG, ParseContentKind(""))
}

func TestSpecSlowPagesForceIdleNetwork(t *testing.T) {
	t.Parallel()

	req, err := NewRequest(Params{"url": "https://example.com", "waitUntil": "load"})
	require.NoError(t, err)
	assert.Equal(t, WaitLoad, req.Spec().WaitUntil)

	req, err = NewRequest(Params{"url": "https://example.com", "waitUntil": "load", "fullPage": "true"})
	require.NoError(t, err)
	assert.Equal(t, WaitNetworkIdle0, req.Spec().WaitUntil)
}
