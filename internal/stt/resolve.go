package stt

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/ledgervoice/ledgervoice-core/internal/config"
)

// Resolve locates the recognizer once at startup: explicit binary path first,
// then $PATH, then the local install directory. A missing binary or model is
// an expected condition; the returned recognizer then degrades every call to
// the fallback result instead of failing the runtime.
func Resolve(cfg config.RecognizerConfig, log *slog.Logger) Recognizer {
	binary := locateBinary(cfg)
	if binary == "" {
		log.Warn("recognizer binary not found; voice input will return empty transcripts",
			slog.String("names", fmt.Sprintf("%v", cfg.BinaryNames)))
		return unavailableRecognizer{reason: "binary not found"}
	}
	if cfg.ModelPath == "" {
		log.Warn("recognizer model path not configured")
		return unavailableRecognizer{reason: "model path not configured"}
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		log.Warn("recognizer model file missing",
			slog.String("model_path", cfg.ModelPath),
			slog.String("error", err.Error()))
		return unavailableRecognizer{reason: "model file missing"}
	}

	rec, err := newExecRecognizer(binary, cfg)
	if err != nil {
		log.Warn("recognizer setup failed", slog.String("error", err.Error()))
		return unavailableRecognizer{reason: err.Error()}
	}
	log.Info("recognizer resolved",
		slog.String("binary", binary),
		slog.String("model_path", cfg.ModelPath))
	return rec
}

func locateBinary(cfg config.RecognizerConfig) string {
	if cfg.BinaryPath != "" {
		if isExecutable(cfg.BinaryPath) {
			return cfg.BinaryPath
		}
		return ""
	}
	for _, name := range cfg.BinaryNames {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	if cfg.InstallDir != "" {
		for _, name := range cfg.BinaryNames {
			candidate := filepath.Join(cfg.InstallDir, name)
			if isExecutable(candidate) {
				return candidate
			}
		}
	}
	return ""
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}
