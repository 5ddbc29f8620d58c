package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledgervoice/ledgervoice-core/internal/config"
)

// Variant describes one downloadable recognizer model.
type Variant struct {
	Name      string
	File      string
	SHA256    string
	SizeBytes int64
}

// knownVariants are the ggml whisper builds the runtime can fetch. Checksums
// are intentionally omitted for the quantized builds that upstream rebuilds
// in place.
var knownVariants = []Variant{
	{Name: "tiny", File: "ggml-tiny.bin", SizeBytes: 77691713},
	{Name: "tiny.en", File: "ggml-tiny.en.bin", SizeBytes: 77704715},
	{Name: "base", File: "ggml-base.bin", SizeBytes: 147951465},
	{Name: "base.en", File: "ggml-base.en.bin", SizeBytes: 147964211},
	{Name: "small", File: "ggml-small.bin", SizeBytes: 487601967},
	{Name: "medium", File: "ggml-medium.bin", SizeBytes: 1533763059},
}

// ProgressFunc receives download progress in [0, 1]. Fraction is -1 when the
// server did not report a content length.
type ProgressFunc func(fraction float64)

// Manager downloads recognizer models into a local directory and hands out
// their paths. Downloads stream to a .partial file and are renamed into
// place only after full verification, so a crashed download never leaves a
// model the recognizer would try to load.
type Manager struct {
	cfg    config.ModelsConfig
	client *http.Client
	log    *slog.Logger
}

func NewManager(cfg config.ModelsConfig, log *slog.Logger) (*Manager, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("models dir must not be empty")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create models dir: %w", err)
	}
	return &Manager{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Minute},
		log:    log.With(slog.String("component", "models")),
	}, nil
}

// Lookup resolves a variant name.
func Lookup(name string) (Variant, bool) {
	for _, v := range knownVariants {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}

// Variants lists the downloadable model names.
func Variants() []string {
	out := make([]string, len(knownVariants))
	for i, v := range knownVariants {
		out[i] = v.Name
	}
	return out
}

// Path returns where a variant lives on disk, whether or not it exists yet.
func (m *Manager) Path(v Variant) string {
	return filepath.Join(m.cfg.Dir, v.File)
}

// Ensure returns the local path of the variant, downloading it first when it
// is missing. progress may be nil.
func (m *Manager) Ensure(ctx context.Context, name string, progress ProgressFunc) (string, error) {
	variant, ok := Lookup(name)
	if !ok {
		return "", fmt.Errorf("unknown model variant %q", name)
	}

	path := m.Path(variant)
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return path, nil
	}

	if err := m.download(ctx, variant, path, progress); err != nil {
		return "", err
	}
	return path, nil
}

func (m *Manager) download(ctx context.Context, v Variant, path string, progress ProgressFunc) error {
	url := strings.TrimRight(m.cfg.BaseURL, "/") + "/" + v.File
	m.log.Info("downloading model",
		slog.String("variant", v.Name),
		slog.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch model: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch model: unexpected status %s", resp.Status)
	}

	partial := path + ".partial"
	out, err := os.Create(partial)
	if err != nil {
		return fmt.Errorf("create partial file: %w", err)
	}
	defer os.Remove(partial)
	defer out.Close()

	hasher := sha256.New()
	writer := io.MultiWriter(out, hasher)
	counter := &progressWriter{total: resp.ContentLength, fn: progress}

	written, err := io.Copy(io.MultiWriter(writer, counter), resp.Body)
	if err != nil {
		return fmt.Errorf("stream model: %w", err)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("flush model: %w", err)
	}
	if err := out.Close(); err != nil {
		return err
	}

	if v.SHA256 != "" {
		sum := hex.EncodeToString(hasher.Sum(nil))
		if sum != v.SHA256 {
			return fmt.Errorf("model %s checksum mismatch: got %s", v.Name, sum)
		}
	}

	if err := os.Rename(partial, path); err != nil {
		return fmt.Errorf("finalize model: %w", err)
	}

	m.log.Info("model ready",
		slog.String("variant", v.Name),
		slog.Int64("size_bytes", written))
	return nil
}

// progressWriter reports the running fraction of a sized download.
type progressWriter struct {
	total   int64
	written int64
	fn      ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.fn != nil {
		if p.total > 0 {
			p.fn(float64(p.written) / float64(p.total))
		} else {
			p.fn(-1)
		}
	}
	return len(b), nil
}
