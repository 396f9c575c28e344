package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/shotapi/internal/config"
)

func stubConfig(t *testing.T, cfg config.Config) {
	t.Helper()
	prev := loadConfig
	loadConfig = func(string) (config.Config, error) { return cfg, nil }
	t.Cleanup(func() { loadConfig = prev })
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestParseParams(t *testing.T) {
	got, err := parseParams([]string{"format=pdf", "selector=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"format": "pdf", "selector": "a=b"}, got)

	_, err = parseParams([]string{"novalue"})
	require.Error(t, err)
	_, err = parseParams([]string{"=x"})
	require.Error(t, err)
}

func TestCaptureWritesArtifact(t *testing.T) {
	cfg := config.Config{Auth: config.AuthConfig{APIKey: "from-config"}}
	stubConfig(t, cfg)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://example.com", r.URL.Query().Get("url"))
		assert.Equal(t, "pdf", r.URL.Query().Get("format"))
		assert.Equal(t, "from-config", r.Header.Get("X-API-Key"))
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("X-Cache", "HIT")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "out.pdf")
	out, err := run(t, "capture", "--url", "https://example.com", "--param", "format=pdf",
		"--server", srv.URL, "--out", path)
	require.NoError(t, err)
	assert.Contains(t, out, "cache HIT")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
}

func TestCaptureRequiresURL(t *testing.T) {
	stubConfig(t, config.Config{})

	_, err := run(t, "capture")
	require.Error(t, err)
}

func TestMigrateRequiresDSN(t *testing.T) {
	stubConfig(t, config.Config{})

	_, err := run(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db.dsn")
}

func TestClearCacheCommand(t *testing.T) {
	cfg := config.Config{
		Storage: config.StorageConfig{Backend: config.BackendLocal},
		Logging: config.LoggingConfig{Level: "error"},
	}
	cfg.Storage.Local.BaseDir = t.TempDir()
	stubConfig(t, cfg)

	_, err := run(t, "clear-cache")
	require.NoError(t, err)
}
