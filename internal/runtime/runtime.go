package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ledgervoice/ledgervoice-core/internal/audio"
	"github.com/ledgervoice/ledgervoice-core/internal/bus"
	"github.com/ledgervoice/ledgervoice-core/internal/config"
	"github.com/ledgervoice/ledgervoice-core/internal/journal"
	"github.com/ledgervoice/ledgervoice-core/internal/models"
	"github.com/ledgervoice/ledgervoice-core/internal/natsserver"
	"github.com/ledgervoice/ledgervoice-core/internal/nlu"
	"github.com/ledgervoice/ledgervoice-core/internal/stt"
	"github.com/ledgervoice/ledgervoice-core/internal/vocabulary"
	"github.com/ledgervoice/ledgervoice-core/internal/voice"
)

// Runtime assembles the daemon: telemetry, bus, stores, the recognizer and
// the voice pipeline, plus the HTTP health surface.
type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	httpServer    *http.Server
	metricsServer *http.Server
	tracerClose   func(context.Context) error

	embedded *natsserver.EmbeddedServer
	bus      *bus.Client
	vocab    *vocabulary.Store
	journal  *journal.Journal
	models   *models.Manager
	voice    *voice.Service

	ready atomic.Bool
	wg    sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings every component up, blocks until ctx is cancelled, then tears
// them down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	if r.cfg.Bus.Embedded {
		embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded bus: %w", err)
		}
		r.embedded = embedded
		r.cfg.Bus.Servers = []string{fmt.Sprintf("nats://127.0.0.1:%d", r.cfg.Bus.Port)}
	}

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.bus = busClient

	vocab, err := vocabulary.Open(ctx, r.cfg.Vocabulary, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open vocabulary store: %w", err)
	}
	r.vocab = vocab
	if seed := r.cfg.Vocabulary.SeedFile; seed != "" {
		imported, err := vocab.ImportSeed(ctx, seed)
		if err != nil {
			r.logger.Warn("vocabulary seed import failed",
				slog.String("path", seed),
				slog.String("error", err.Error()))
		} else if imported > 0 {
			r.logger.Info("vocabulary seeded", slog.Int("terms", imported))
		}
	}

	jrnl, err := journal.Open(ctx, r.cfg.Journal, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	r.journal = jrnl

	modelMgr, err := models.NewManager(r.cfg.Models, r.logger)
	if err != nil {
		return fmt.Errorf("failed to init model manager: %w", err)
	}
	r.models = modelMgr

	recognizer := stt.Resolve(r.cfg.Recognizer, r.logger)
	transcriber := stt.NewTranscriber(r.cfg.Recognizer, recognizer, vocab, r.logger)
	interpreter := nlu.NewInterpreter(r.cfg.Interpreter, vocab, r.logger)

	mic := audio.NewMicSource(r.cfg.Capture)
	capture := audio.NewCapture(r.cfg.Capture, mic, r.logger)

	r.voice = voice.NewService(ctx, r.cfg, capture, transcriber, interpreter, busClient, jrnl, r.logger)
	if err := r.voice.Start(); err != nil {
		return fmt.Errorf("failed to start voice service: %w", err)
	}

	controls := newControls(r.cfg, busClient, r.voice, transcriber, modelMgr, r.logger)
	if err := controls.subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe control subjects: %w", err)
	}

	r.startHTTP(metricHandler)

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)),
		slog.String("environment", r.cfg.Environment))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if r.httpServer != nil {
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
	}
	if r.metricsServer != nil {
		if err := r.metricsServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}

	controls.close()
	r.voice.Close()
	r.bus.Close()
	if err := r.journal.Close(); err != nil {
		r.logger.Error("journal close error", slog.String("error", err.Error()))
	}
	if err := r.vocab.Close(); err != nil {
		r.logger.Error("vocabulary close error", slog.String("error", err.Error()))
	}
	r.embedded.Shutdown()
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) startHTTP(metricHandler http.Handler) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	if metricHandler == nil {
		return
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metricHandler)
	r.metricsServer = &http.Server{
		Addr:              r.cfg.Telemetry.PrometheusBind,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.bus.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
