//go:build integration

// Package browser runs the rod driver against a local page that mimics the
// Alma configuration screens.
package browser

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"

	"github.com/lettersync/lettersync/internal/driver"
	"github.com/lettersync/lettersync/internal/testutil"
)

const defaultTimeout = 10 * time.Second

// Harness serves the fake Alma page and owns a headless browser
type Harness struct {
	t      *testing.T
	Server *httptest.Server
	Driver *driver.Rod
}

// NewHarness starts the page server and a headless Chrome. The test is
// skipped when no browser is installed.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	if _, has := launcher.LookPath(); !has && os.Getenv("LETTERSYNC_CHROME") == "" {
		t.Skip("no Chrome or Chromium found; set LETTERSYNC_CHROME to run browser tests")
	}

	root, err := testutil.FindProjectRoot()
	if err != nil {
		t.Fatalf("find project root: %v", err)
	}
	page, err := os.ReadFile(filepath.Join(root, "integration", "browser", "testdata", "alma.html"))
	if err != nil {
		t.Fatalf("read fake page: %v", err)
	}

	h := &Harness{t: t}
	h.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	}))
	t.Cleanup(h.Server.Close)

	logger := slog.New(slog.NewTextHandler(&testWriter{t: t, prefix: "[rod] "}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	// The browser keeps the launch context for its whole life
	drv, err := driver.Launch(context.Background(), driver.Options{
		BaseURL:        h.Server.URL,
		Bin:            os.Getenv("LETTERSYNC_CHROME"),
		Headless:       true,
		ViewportWidth:  1200,
		ViewportHeight: 900,
		Timeout:        defaultTimeout,
	}, logger)
	if err != nil {
		t.Fatalf("launch browser: %v", err)
	}
	h.Driver = drv
	t.Cleanup(func() {
		if err := drv.Close(); err != nil {
			t.Logf("Warning: failed to close browser: %v", err)
		}
	})

	return h
}

// testWriter wraps test logging for driver output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)
