package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Capture.SampleRate != 16000 {
		t.Fatalf("expected default sample rate 16000, got %d", cfg.Capture.SampleRate)
	}
	if cfg.Capture.SilenceThreshold != 0.02 {
		t.Fatalf("expected default silence threshold 0.02, got %f", cfg.Capture.SilenceThreshold)
	}
	if cfg.Capture.SilenceDurationMS != 1500 {
		t.Fatalf("expected default silence duration 1500ms, got %d", cfg.Capture.SilenceDurationMS)
	}
	if cfg.Recognizer.TimeoutMS != 30000 {
		t.Fatalf("expected default recognizer timeout 30000ms, got %d", cfg.Recognizer.TimeoutMS)
	}
	if cfg.Interpreter.HistorySize != 50 {
		t.Fatalf("expected default history size 50, got %d", cfg.Interpreter.HistorySize)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledgervoice.yaml")
	body := `
capture:
  silence_threshold: 0.05
  silence_duration_ms: 900
recognizer:
  model_path: /models/ggml-base.bin
  language: hi
  translate: true
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Capture.SilenceThreshold != 0.05 {
		t.Fatalf("expected file override for silence threshold, got %f", cfg.Capture.SilenceThreshold)
	}
	if cfg.Capture.SilenceDurationMS != 900 {
		t.Fatalf("expected file override for silence duration, got %d", cfg.Capture.SilenceDurationMS)
	}
	if cfg.Recognizer.ModelPath != "/models/ggml-base.bin" || cfg.Recognizer.Language != "hi" || !cfg.Recognizer.Translate {
		t.Fatalf("expected recognizer overrides, got %+v", cfg.Recognizer)
	}
	if cfg.Capture.SampleRate != 16000 {
		t.Fatalf("expected untouched default sample rate, got %d", cfg.Capture.SampleRate)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LEDGERVOICE_CAPTURE_SILENCE_THRESHOLD", "0.1")
	t.Setenv("LEDGERVOICE_CAPTURE_SILENCE_DURATION_MS", "2000")
	t.Setenv("LEDGERVOICE_RECOGNIZER_BINARY_PATH", "/opt/whisper/whisper-cli")
	t.Setenv("LEDGERVOICE_RECOGNIZER_THREADS", "8")
	t.Setenv("LEDGERVOICE_RECOGNIZER_BEAM_SIZE", "3")
	t.Setenv("LEDGERVOICE_INTERPRETER_CONFIRM_AMOUNT_ABOVE", "5000")
	t.Setenv("LEDGERVOICE_JOURNAL_RETENTION_MODE", "persistent")
	t.Setenv("LEDGERVOICE_BUS_SERVERS", "nats://one:4222, nats://two:4222")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Capture.SilenceThreshold != 0.1 {
		t.Fatalf("expected silence threshold override, got %f", cfg.Capture.SilenceThreshold)
	}
	if cfg.Capture.SilenceDurationMS != 2000 {
		t.Fatalf("expected silence duration override, got %d", cfg.Capture.SilenceDurationMS)
	}
	if cfg.Recognizer.BinaryPath != "/opt/whisper/whisper-cli" {
		t.Fatalf("expected binary path override, got %q", cfg.Recognizer.BinaryPath)
	}
	if cfg.Recognizer.Threads != 8 || cfg.Recognizer.BeamSize != 3 {
		t.Fatalf("expected recognizer tuning overrides, got %+v", cfg.Recognizer)
	}
	if cfg.Interpreter.ConfirmAmountAbove != 5000 {
		t.Fatalf("expected confirm amount override, got %f", cfg.Interpreter.ConfirmAmountAbove)
	}
	if cfg.Journal.RetentionMode != "persistent" {
		t.Fatalf("expected journal retention override, got %q", cfg.Journal.RetentionMode)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"stereo capture":      func(c *Config) { c.Capture.Channels = 2 },
		"zero tick":           func(c *Config) { c.Capture.TickMS = 0 },
		"threshold above one": func(c *Config) { c.Capture.SilenceThreshold = 1.5 },
		"zero timeout":        func(c *Config) { c.Recognizer.TimeoutMS = 0 },
		"bad retention":       func(c *Config) { c.Journal.RetentionMode = "forever" },
		"zero history":        func(c *Config) { c.Interpreter.HistorySize = 0 },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := validate(cfg); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
