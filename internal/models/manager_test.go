package models

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ledgervoice/ledgervoice-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestEnsureDownloadsOnceAndReportsProgress(t *testing.T) {
	var hits atomic.Int32
	payload := strings.Repeat("x", 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/ggml-tiny.bin" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", "4096")
		io.WriteString(w, payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	m, err := NewManager(config.ModelsConfig{Dir: dir, BaseURL: srv.URL}, newLogger())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	var fractions []float64
	path, err := m.Ensure(context.Background(), "tiny", func(f float64) {
		fractions = append(fractions, f)
	})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if path != filepath.Join(dir, "ggml-tiny.bin") {
		t.Fatalf("unexpected path %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read model: %v", err)
	}
	if string(data) != payload {
		t.Fatal("downloaded content mismatch")
	}
	if len(fractions) == 0 || fractions[len(fractions)-1] != 1.0 {
		t.Fatalf("expected progress to end at 1.0, got %v", fractions)
	}

	if _, err := m.Ensure(context.Background(), "tiny", nil); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("cached model must not be re-downloaded, got %d requests", hits.Load())
	}
}

func TestEnsureUnknownVariant(t *testing.T) {
	m, err := NewManager(config.ModelsConfig{Dir: t.TempDir(), BaseURL: "http://localhost"}, newLogger())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := m.Ensure(context.Background(), "colossal", nil); err == nil {
		t.Fatal("expected error for unknown variant")
	}
}

func TestFailedDownloadLeavesNoFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dir := t.TempDir()
	m, err := NewManager(config.ModelsConfig{Dir: dir, BaseURL: srv.URL}, newLogger())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := m.Ensure(context.Background(), "tiny", nil); err == nil {
		t.Fatal("expected error on failed download")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("failed download must not leave files, got %v", entries)
	}
}

func TestVariantsListed(t *testing.T) {
	names := Variants()
	if len(names) == 0 {
		t.Fatal("expected at least one variant")
	}
	if _, ok := Lookup("base"); !ok {
		t.Fatal("base variant must exist")
	}
}
