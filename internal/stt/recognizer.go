package stt

import (
	"context"
	"errors"
)

// ErrRecognizerUnavailable marks an environment failure: no usable recognizer
// binary or model. Callers treat it as the fallback path, not a fault.
var ErrRecognizerUnavailable = errors.New("recognizer unavailable")

// Options carries per-call decoding hints.
type Options struct {
	Language  string
	Prompt    string
	Translate bool
}

// Recognizer abstracts speech-to-text backends. Implementations read the WAV
// file at audioPath and return the raw transcript.
type Recognizer interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (string, error)
}

// unavailableRecognizer degrades every call to the fallback result.
type unavailableRecognizer struct {
	reason string
}

func (u unavailableRecognizer) Transcribe(context.Context, string, Options) (string, error) {
	return "", ErrRecognizerUnavailable
}
