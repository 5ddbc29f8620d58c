package audio

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/ledgervoice/ledgervoice-core/internal/config"
)

// MicSource reads mono frames from the default input device via portaudio.
type MicSource struct {
	cfg config.CaptureConfig

	mu     sync.Mutex
	stream *portaudio.Stream
	frame  []float32
	opened bool
}

func NewMicSource(cfg config.CaptureConfig) *MicSource {
	return &MicSource{cfg: cfg}
}

func (m *MicSource) Open(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opened {
		return fmt.Errorf("microphone source already open")
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}

	frameLen := m.cfg.SampleRate * m.cfg.TickMS / 1000
	m.frame = make([]float32, frameLen)

	stream, err := portaudio.OpenDefaultStream(m.cfg.Channels, 0, float64(m.cfg.SampleRate), frameLen, m.frame)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("start input stream: %w", err)
	}

	m.stream = stream
	m.opened = true
	return nil
}

func (m *MicSource) ReadFrame() ([]float32, error) {
	m.mu.Lock()
	stream := m.stream
	m.mu.Unlock()
	if stream == nil {
		return nil, io.EOF
	}
	if err := stream.Read(); err != nil {
		return nil, fmt.Errorf("read input frame: %w", err)
	}
	out := make([]float32, len(m.frame))
	copy(out, m.frame)
	return out, nil
}

func (m *MicSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.opened {
		return nil
	}
	m.opened = false
	var firstErr error
	if err := m.stream.Stop(); err != nil {
		firstErr = err
	}
	if err := m.stream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	m.stream = nil
	if err := portaudio.Terminate(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
