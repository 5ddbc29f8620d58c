package stt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ledgervoice/ledgervoice-core/internal/config"
)

type fixedPrompt string

func (p fixedPrompt) ContextPrompt(context.Context, int) (string, error) {
	return string(p), nil
}

func testRecognizerCfg() config.RecognizerConfig {
	return config.RecognizerConfig{
		Language:        "en",
		Threads:         2,
		BeamSize:        5,
		TimeoutMS:       30000,
		PromptTermLimit: 16,
	}
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func pcm(n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(i % 1000)
	}
	return out
}

func TestTranscribeSuccess(t *testing.T) {
	var gotPrompt string
	rec := &MockRecognizer{Fn: func(_ context.Context, path string, opts Options) (string, error) {
		gotPrompt = opts.Prompt
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected wav file to exist during recognition: %v", err)
		}
		return "Add an expense of five hundred.", nil
	}}
	tr := NewTranscriber(testRecognizerCfg(), rec, fixedPrompt("udhaar, khata"), newTestLogger())

	res, err := tr.Transcribe(context.Background(), pcm(1600), 16000, 1, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "Add an expense of five hundred." {
		t.Fatalf("unexpected text %q", res.Text)
	}
	if res.Confidence != Confidence(res.Text) {
		t.Fatalf("confidence not derived from heuristic: %f", res.Confidence)
	}
	if !res.Final {
		t.Fatal("expected final result")
	}
	if gotPrompt != "udhaar, khata" {
		t.Fatalf("expected context prompt forwarded, got %q", gotPrompt)
	}
}

func TestTranscribeFallbackOnRecognizerError(t *testing.T) {
	rec := &MockRecognizer{Fn: func(context.Context, string, Options) (string, error) {
		return "", errors.New("exit status 1")
	}}
	tr := NewTranscriber(testRecognizerCfg(), rec, nil, newTestLogger())

	res, err := tr.Transcribe(context.Background(), pcm(160), 16000, 1, true)
	if err != nil {
		t.Fatalf("failures must degrade to the fallback, got error: %v", err)
	}
	if res.Text != "" || res.Confidence != 0 {
		t.Fatalf("expected empty fallback result, got %+v", res)
	}
}

func TestTranscribeFallbackWhenUnavailable(t *testing.T) {
	tr := NewTranscriber(testRecognizerCfg(), unavailableRecognizer{reason: "binary not found"}, nil, newTestLogger())
	res, err := tr.Transcribe(context.Background(), pcm(160), 16000, 1, true)
	if err != nil {
		t.Fatalf("missing recognizer is not an error: %v", err)
	}
	if res.Text != "" || res.Confidence != 0 {
		t.Fatalf("expected fallback result, got %+v", res)
	}
}

func TestTranscribeDeadlineProducesFallback(t *testing.T) {
	cfg := testRecognizerCfg()
	cfg.TimeoutMS = 50
	rec := &MockRecognizer{Fn: func(ctx context.Context, _ string, _ Options) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	tr := NewTranscriber(cfg, rec, nil, newTestLogger())

	start := time.Now()
	res, err := tr.Transcribe(context.Background(), pcm(160), 16000, 1, true)
	if err != nil {
		t.Fatalf("timeout must degrade to the fallback, got error: %v", err)
	}
	if res.Text != "" {
		t.Fatalf("expected empty fallback on timeout, got %q", res.Text)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("transcription hung past its deadline: %v", elapsed)
	}
}

func TestSecondTranscriptionRejected(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	rec := &MockRecognizer{Fn: func(context.Context, string, Options) (string, error) {
		close(started)
		<-release
		return "done", nil
	}}
	tr := NewTranscriber(testRecognizerCfg(), rec, nil, newTestLogger())

	go func() {
		_, _ = tr.Transcribe(context.Background(), pcm(160), 16000, 1, true)
	}()
	<-started

	if _, err := tr.Transcribe(context.Background(), pcm(160), 16000, 1, true); !errors.Is(err, ErrTranscriptionInProgress) {
		t.Fatalf("expected ErrTranscriptionInProgress, got %v", err)
	}
	close(release)
}

func TestCancelTerminatesAndIsIdempotent(t *testing.T) {
	rec := &MockRecognizer{Fn: func(ctx context.Context, _ string, _ Options) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	tr := NewTranscriber(testRecognizerCfg(), rec, nil, newTestLogger())

	// Safe with nothing in progress.
	tr.Cancel()

	done := make(chan Result, 1)
	go func() {
		res, _ := tr.Transcribe(context.Background(), pcm(160), 16000, 1, true)
		done <- res
	}()

	for !tr.InFlight() {
		time.Sleep(time.Millisecond)
	}
	tr.Cancel()
	tr.Cancel()

	select {
	case res := <-done:
		if res.Text != "" {
			t.Fatalf("expected fallback after cancel, got %q", res.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not terminate the transcription")
	}
	if tr.InFlight() {
		t.Fatal("expected idle state after cancel")
	}
}

func TestTempFileRemovedOnEveryPath(t *testing.T) {
	tmp := t.TempDir()

	check := func(name string, fn func(context.Context, string, Options) (string, error)) {
		t.Helper()
		tr := NewTranscriber(testRecognizerCfg(), &MockRecognizer{Fn: fn}, nil, newTestLogger())
		tr.tmpDir = tmp
		if _, err := tr.Transcribe(context.Background(), pcm(160), 16000, 1, true); err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		entries, err := os.ReadDir(tmp)
		if err != nil {
			t.Fatalf("%s: read temp dir: %v", name, err)
		}
		if len(entries) != 0 {
			t.Fatalf("%s: temp files leaked: %v", name, entries)
		}
	}

	check("success", func(context.Context, string, Options) (string, error) {
		return "hello there friend", nil
	})
	check("failure", func(context.Context, string, Options) (string, error) {
		return "", errors.New("exit status 1")
	})
}
