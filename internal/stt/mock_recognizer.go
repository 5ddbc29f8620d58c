package stt

import "context"

// MockRecognizer is a scriptable backend for tests and for running the
// pipeline without a local model.
type MockRecognizer struct {
	// Fn handles each call. When nil, an empty transcript is returned.
	Fn func(ctx context.Context, audioPath string, opts Options) (string, error)
}

func (m *MockRecognizer) Transcribe(ctx context.Context, audioPath string, opts Options) (string, error) {
	if m.Fn == nil {
		return "", nil
	}
	return m.Fn(ctx, audioPath, opts)
}
