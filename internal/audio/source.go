package audio

import "context"

// Source supplies fixed-duration frames of normalized mono samples. One frame
// corresponds to one capture tick.
type Source interface {
	// Open acquires the underlying device. It fails when no input device is
	// available or access is denied.
	Open(ctx context.Context) error
	// ReadFrame blocks until the next frame is available. It returns io.EOF
	// when the source is exhausted or closed.
	ReadFrame() ([]float32, error)
	// Close releases the device. Safe to call more than once.
	Close() error
}
