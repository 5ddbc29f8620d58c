package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ledgervoice/ledgervoice-core/internal/audio"
	"github.com/ledgervoice/ledgervoice-core/internal/config"
)

// ErrTranscriptionInProgress is returned when a second transcription is
// requested while one is still running. This indicates a caller bug.
var ErrTranscriptionInProgress = errors.New("transcription already in progress")

// Result is one transcription outcome. The zero text with zero confidence is
// the fallback result produced on any environment or process failure.
type Result struct {
	Text       string
	Confidence float64
	Final      bool
	Timestamp  time.Time
}

// PromptProvider supplies the bounded domain-vocabulary context string.
type PromptProvider interface {
	ContextPrompt(ctx context.Context, limit int) (string, error)
}

// Transcriber serializes PCM to a temp WAV, runs the recognizer under a hard
// deadline, and maps every failure to the fallback result. A single
// transcription may be in flight per instance.
type Transcriber struct {
	cfg     config.RecognizerConfig
	rec     Recognizer
	prompts PromptProvider
	log     *slog.Logger
	clock   func() time.Time
	tmpDir  string

	mu       sync.Mutex
	inflight bool
	cancel   context.CancelFunc
}

func NewTranscriber(cfg config.RecognizerConfig, rec Recognizer, prompts PromptProvider, log *slog.Logger) *Transcriber {
	return &Transcriber{
		cfg:     cfg,
		rec:     rec,
		prompts: prompts,
		log:     log.With(slog.String("component", "transcriber")),
		clock:   time.Now,
		tmpDir:  os.TempDir(),
	}
}

// Transcribe converts one finished utterance to text. The samples must be
// finalized before the call; capture and transcription never overlap for the
// same session.
func (t *Transcriber) Transcribe(ctx context.Context, samples []int16, sampleRate, channels int, final bool) (Result, error) {
	t.mu.Lock()
	if t.inflight {
		t.mu.Unlock()
		return Result{}, ErrTranscriptionInProgress
	}
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(t.cfg.TimeoutMS)*time.Millisecond)
	t.inflight = true
	t.cancel = cancel
	rec := t.rec
	t.mu.Unlock()

	defer func() {
		cancel()
		t.mu.Lock()
		t.inflight = false
		t.cancel = nil
		t.mu.Unlock()
	}()

	text, err := t.run(runCtx, rec, samples, sampleRate, channels)
	if err != nil {
		if errors.Is(err, ErrRecognizerUnavailable) {
			t.log.Debug("recognizer unavailable, returning fallback result")
		} else {
			t.log.Warn("transcription failed, returning fallback result",
				slog.String("error", err.Error()))
		}
		return t.fallback(final), nil
	}
	if text == "" {
		return t.fallback(final), nil
	}

	return Result{
		Text:       text,
		Confidence: Confidence(text),
		Final:      final,
		Timestamp:  t.clock().UTC(),
	}, nil
}

func (t *Transcriber) run(ctx context.Context, rec Recognizer, samples []int16, sampleRate, channels int) (string, error) {
	file, err := os.CreateTemp(t.tmpDir, "ledgervoice_stt_*.wav")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	// The temp WAV is removed on every exit path: success, failure, timeout
	// and cancellation.
	defer os.Remove(file.Name())
	defer file.Close()

	if err := audio.EncodeWAV(file, samples, sampleRate, channels); err != nil {
		return "", err
	}
	if err := file.Sync(); err != nil {
		return "", fmt.Errorf("flush wav: %w", err)
	}

	prompt := ""
	if t.prompts != nil && t.cfg.PromptTermLimit > 0 {
		p, err := t.prompts.ContextPrompt(ctx, t.cfg.PromptTermLimit)
		if err != nil {
			t.log.Warn("context prompt lookup failed", slog.String("error", err.Error()))
		} else {
			prompt = p
		}
	}

	return rec.Transcribe(ctx, file.Name(), Options{
		Language:  t.cfg.Language,
		Prompt:    prompt,
		Translate: t.cfg.Translate,
	})
}

// SetRecognizer swaps the backend, used after a model switch. The running
// transcription, if any, finishes on the old backend.
func (t *Transcriber) SetRecognizer(rec Recognizer) {
	t.mu.Lock()
	t.rec = rec
	t.mu.Unlock()
}

// Cancel terminates any running recognizer process and resets to idle. It is
// safe to call at any time, including when nothing is in progress.
func (t *Transcriber) Cancel() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// InFlight reports whether a transcription is currently running.
func (t *Transcriber) InFlight() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inflight
}

func (t *Transcriber) fallback(final bool) Result {
	return Result{Text: "", Confidence: 0, Final: final, Timestamp: t.clock().UTC()}
}
