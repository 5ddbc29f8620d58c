package stt

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/ledgervoice/ledgervoice-core/internal/config"
)

// execRecognizer shells out to a whisper.cpp-style CLI.
type execRecognizer struct {
	binary    string
	extraArgs []string
	cfg       config.RecognizerConfig
}

func newExecRecognizer(binary string, cfg config.RecognizerConfig) (*execRecognizer, error) {
	var extra []string
	if cfg.ExtraArgs != "" {
		parser := shellwords.NewParser()
		args, err := parser.Parse(cfg.ExtraArgs)
		if err != nil {
			return nil, fmt.Errorf("parse recognizer extra args: %w", err)
		}
		extra = args
	}
	return &execRecognizer{binary: binary, extraArgs: extra, cfg: cfg}, nil
}

func (r *execRecognizer) Transcribe(ctx context.Context, audioPath string, opts Options) (string, error) {
	args := []string{
		"-m", r.cfg.ModelPath,
		"-f", audioPath,
		"-l", opts.Language,
		"-t", strconv.Itoa(r.cfg.Threads),
		"--temperature", strconv.FormatFloat(r.cfg.Temperature, 'f', -1, 64),
		"--beam-size", strconv.Itoa(r.cfg.BeamSize),
	}
	if opts.Prompt != "" {
		args = append(args, "--prompt", opts.Prompt)
	}
	args = append(args, "-otxt", "-pp")
	if opts.Translate {
		args = append(args, "--translate")
	}
	args = append(args, r.extraArgs...)

	cmd := exec.CommandContext(ctx, r.binary, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// The CLI also writes a sidecar text file next to the audio; remove it
	// together with the temp WAV.
	defer os.Remove(audioPath + ".txt")

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("recognizer command failed: %w: %s", err, stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}
