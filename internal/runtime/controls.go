package runtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ledgervoice/ledgervoice-core/internal/bus"
	"github.com/ledgervoice/ledgervoice-core/internal/config"
	"github.com/ledgervoice/ledgervoice-core/internal/models"
	"github.com/ledgervoice/ledgervoice-core/internal/protocol"
	"github.com/ledgervoice/ledgervoice-core/internal/stt"
	"github.com/ledgervoice/ledgervoice-core/internal/voice"
)

// controls maps bus control subjects onto voice service operations, so any
// frontend attached to the broker can drive the pipeline.
type controls struct {
	cfg         config.Config
	bus         *bus.Client
	voice       *voice.Service
	transcriber *stt.Transcriber
	models      *models.Manager
	log         *slog.Logger

	subs []*nats.Subscription
	wg   sync.WaitGroup

	mu        sync.Mutex
	switching bool
}

func newControls(cfg config.Config, busClient *bus.Client, svc *voice.Service, transcriber *stt.Transcriber, modelMgr *models.Manager, log *slog.Logger) *controls {
	return &controls{
		cfg:         cfg,
		bus:         busClient,
		voice:       svc,
		transcriber: transcriber,
		models:      modelMgr,
		log:         log.With(slog.String("component", "controls")),
	}
}

func (c *controls) subscribe(ctx context.Context) error {
	handlers := []struct {
		subject string
		fn      nats.MsgHandler
	}{
		{protocol.SubjectCtrlStart, func(*nats.Msg) {
			if _, err := c.voice.StartListening(); err != nil {
				c.log.Warn("start control failed", slog.String("error", err.Error()))
			}
		}},
		{protocol.SubjectCtrlStop, func(*nats.Msg) { c.voice.StopListening() }},
		{protocol.SubjectCtrlToggle, func(*nats.Msg) { c.voice.ToggleListening() }},
		{protocol.SubjectCtrlRetry, func(*nats.Msg) { c.voice.RetryLastCommand() }},
		{protocol.SubjectCtrlModel, func(msg *nats.Msg) { c.handleModelSwitch(ctx, msg) }},
	}

	conn := c.bus.Conn()
	for _, h := range handlers {
		sub, err := conn.Subscribe(h.subject, h.fn)
		if err != nil {
			return err
		}
		c.subs = append(c.subs, sub)
	}
	return nil
}

func (c *controls) close() {
	for _, sub := range c.subs {
		_ = sub.Drain()
	}
	c.wg.Wait()
}

// handleModelSwitch downloads the requested variant and swaps the recognizer
// backend. One switch runs at a time; repeated requests are dropped.
func (c *controls) handleModelSwitch(ctx context.Context, msg *nats.Msg) {
	var req protocol.ControlRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		c.log.Warn("failed to decode model request", slog.String("error", err.Error()))
		return
	}
	if req.Variant == "" {
		c.log.Warn("model request without variant")
		return
	}

	c.mu.Lock()
	if c.switching {
		c.mu.Unlock()
		c.log.Warn("model switch already in progress", slog.String("variant", req.Variant))
		return
	}
	c.switching = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			c.switching = false
			c.mu.Unlock()
		}()
		c.switchModel(ctx, req.Variant)
	}()
}

func (c *controls) switchModel(ctx context.Context, variant string) {
	lastReport := time.Time{}
	path, err := c.models.Ensure(ctx, variant, func(fraction float64) {
		// At most a few progress events per second, the downloads are large.
		if time.Since(lastReport) < 250*time.Millisecond && fraction < 1 {
			return
		}
		lastReport = time.Now()
		c.publish(protocol.SubjectModelProgress, protocol.ModelProgress{
			Variant:  variant,
			Fraction: fraction,
		})
	})
	if err != nil {
		c.log.Warn("model switch failed",
			slog.String("variant", variant),
			slog.String("error", err.Error()))
		c.publish(protocol.SubjectVoiceError, protocol.VoiceError{
			Stage:     "model",
			Message:   err.Error(),
			Timestamp: time.Now().UTC(),
		})
		return
	}

	recCfg := c.cfg.Recognizer
	recCfg.ModelPath = path
	c.transcriber.Cancel()
	c.transcriber.SetRecognizer(stt.Resolve(recCfg, c.log))

	var size int64
	if info, statErr := os.Stat(path); statErr == nil {
		size = info.Size()
	}
	c.publish(protocol.SubjectModelChanged, protocol.ModelChanged{
		Variant:   variant,
		Path:      path,
		SizeBytes: size,
		Timestamp: time.Now().UTC(),
	})
	c.log.Info("recognizer model switched",
		slog.String("variant", variant),
		slog.String("path", path))
}

func (c *controls) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.Warn("failed to marshal control event", slog.String("error", err.Error()))
		return
	}
	if err := c.bus.Publish(subject, data); err != nil {
		c.log.Warn("failed to publish control event",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
}
