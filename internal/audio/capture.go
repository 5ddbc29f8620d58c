package audio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgervoice/ledgervoice-core/internal/config"
)

// ErrCaptureActive is returned when Start is called while a capture session
// is already running.
var ErrCaptureActive = errors.New("capture already in progress")

// Level is the informational loudness sample produced on every tick.
type Level struct {
	RMS    float64
	Silent bool
}

// Utterance is the finished product of one capture session: every frame read
// between start and stop, concatenated in order.
type Utterance struct {
	ID          string
	Samples     []float32
	Duration    time.Duration
	StartedAt   time.Time
	AutoStopped bool
}

// session is the per-utterance arena. All capture-scoped state lives here and
// is discarded wholesale when the session ends.
type session struct {
	id          string
	startedAt   time.Time
	buffers     [][]float32
	sampleCount int
	silentTicks int
	totalTicks  int
}

func (s *session) finalize(tick time.Duration, auto bool) Utterance {
	samples := make([]float32, 0, s.sampleCount)
	for _, b := range s.buffers {
		samples = append(samples, b...)
	}
	return Utterance{
		ID:          s.id,
		Samples:     samples,
		Duration:    time.Duration(s.totalTicks) * tick,
		StartedAt:   s.startedAt,
		AutoStopped: auto,
	}
}

// Capture owns the microphone stream for one utterance at a time. It computes
// a rolling RMS per tick, auto-stops after sustained trailing silence, and
// delivers the concatenated utterance on Done.
type Capture struct {
	cfg config.CaptureConfig
	src Source
	log *slog.Logger

	mu      sync.Mutex
	active  bool
	cancel  context.CancelFunc
	current *session
	wg      sync.WaitGroup

	levels chan Level
	done   chan Utterance

	clock func() time.Time
}

func NewCapture(cfg config.CaptureConfig, src Source, log *slog.Logger) *Capture {
	return &Capture{
		cfg:    cfg,
		src:    src,
		log:    log.With(slog.String("component", "capture")),
		levels: make(chan Level, 64),
		done:   make(chan Utterance, 1),
		clock:  time.Now,
	}
}

// Levels exposes the per-tick loudness stream. Values are informational and
// dropped when the consumer lags.
func (c *Capture) Levels() <-chan Level { return c.levels }

// Done delivers exactly one Utterance per started session, whether the stop
// was explicit, silence-triggered, or caused by source exhaustion.
func (c *Capture) Done() <-chan Utterance { return c.done }

// Start opens the source and begins the tick loop. The returned session ID
// identifies the utterance on Done.
func (c *Capture) Start(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return "", ErrCaptureActive
	}
	c.active = true
	c.mu.Unlock()

	if err := c.src.Open(ctx); err != nil {
		c.mu.Lock()
		c.active = false
		c.mu.Unlock()
		return "", err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	sess := &session{id: uuid.NewString(), startedAt: c.clock()}

	c.mu.Lock()
	c.cancel = cancel
	c.current = sess
	c.mu.Unlock()

	c.wg.Add(1)
	go c.loop(loopCtx, sess)

	return sess.id, nil
}

// Snapshot copies the samples buffered so far for the running session. It
// returns nil when no capture is in progress. Used for interim transcription.
func (c *Capture) Snapshot() []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active || c.current == nil {
		return nil
	}
	out := make([]float32, 0, c.current.sampleCount)
	for _, b := range c.current.buffers {
		out = append(out, b...)
	}
	return out
}

// Stop requests an explicit stop. The finished utterance arrives on Done.
// Calling Stop with no capture in progress is a no-op.
func (c *Capture) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// Active reports whether a capture session is running.
func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Capture) loop(ctx context.Context, sess *session) {
	defer c.wg.Done()

	tick := time.Duration(c.cfg.TickMS) * time.Millisecond
	silenceTicks := c.cfg.SilenceDurationMS / c.cfg.TickMS
	maxTicks := 0
	if c.cfg.MaxUtteranceMS > 0 {
		maxTicks = c.cfg.MaxUtteranceMS / c.cfg.TickMS
	}

	auto := false
	for {
		if ctx.Err() != nil {
			break
		}
		frame, err := c.src.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.log.Warn("frame read failed", slog.String("error", err.Error()))
			}
			break
		}
		c.mu.Lock()
		sess.buffers = append(sess.buffers, frame)
		sess.sampleCount += len(frame)
		sess.totalTicks++
		c.mu.Unlock()

		level := RMS(frame)
		silent := level < c.cfg.SilenceThreshold
		if silent {
			sess.silentTicks++
		} else {
			sess.silentTicks = 0
		}

		select {
		case c.levels <- Level{RMS: level, Silent: silent}:
		default:
		}

		if sess.silentTicks >= silenceTicks {
			auto = true
			break
		}
		if maxTicks > 0 && sess.totalTicks >= maxTicks {
			auto = true
			break
		}
	}

	if err := c.src.Close(); err != nil {
		c.log.Warn("source close failed", slog.String("error", err.Error()))
	}

	// Partial buffers from an abrupt stop are still delivered, never dropped.
	utt := sess.finalize(tick, auto)

	c.mu.Lock()
	c.active = false
	c.cancel = nil
	c.current = nil
	c.mu.Unlock()

	c.done <- utt
}
