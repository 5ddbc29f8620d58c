package voice

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ledgervoice/ledgervoice-core/internal/audio"
	"github.com/ledgervoice/ledgervoice-core/internal/bus"
	"github.com/ledgervoice/ledgervoice-core/internal/config"
	"github.com/ledgervoice/ledgervoice-core/internal/nlu"
	"github.com/ledgervoice/ledgervoice-core/internal/protocol"
	"github.com/ledgervoice/ledgervoice-core/internal/stt"
)

// State is the pipeline phase of the voice service.
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateError      State = "error"
)

// Recorder persists the session timeline. *journal.Journal satisfies it.
type Recorder interface {
	StartSession(ctx context.Context, sessionID string) error
	EndSession(ctx context.Context, sessionID string) error
	RecordTranscript(ctx context.Context, t protocol.Transcript) error
	RecordCommand(ctx context.Context, c protocol.Command) error
	RecordError(ctx context.Context, e protocol.VoiceError) error
}

// Parser turns a transcript into a command. *nlu.Interpreter satisfies it.
type Parser interface {
	Parse(ctx context.Context, text string) nlu.Command
}

// Service drives the capture, transcription and parsing pipeline for one
// utterance at a time and publishes every stage transition on the bus.
type Service struct {
	cfg         config.Config
	capture     *audio.Capture
	transcriber *stt.Transcriber
	interpreter Parser
	pub         bus.Publisher
	journal     Recorder
	log         *slog.Logger
	metrics     *pipelineMetrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	state     State
	sessionID string
	history   []protocol.Command

	clock func() time.Time
}

func NewService(parent context.Context, cfg config.Config, capture *audio.Capture, transcriber *stt.Transcriber, interpreter Parser, pub bus.Publisher, recorder Recorder, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	svcLog := log.With(slog.String("component", "voice"))
	return &Service{
		cfg:         cfg,
		capture:     capture,
		transcriber: transcriber,
		interpreter: interpreter,
		pub:         pub,
		journal:     recorder,
		log:         svcLog,
		metrics:     newPipelineMetrics(svcLog),
		ctx:         ctx,
		cancel:      cancel,
		state:       StateIdle,
		clock:       time.Now,
	}
}

// Start announces the service on the bus. Listening begins only on request.
func (s *Service) Start() error {
	s.publish(protocol.SubjectInitialized, protocol.Initialized{
		Timestamp: s.clock().UTC(),
	})
	return nil
}

// Close stops any running capture and waits for in-flight work.
func (s *Service) Close() {
	s.cancel()
	s.transcriber.Cancel()
	s.capture.Stop()
	s.wg.Wait()
}

// State reports the current pipeline phase.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a copy of the retained commands, oldest first.
func (s *Service) History() []protocol.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Command, len(s.history))
	copy(out, s.history)
	return out
}

// StartListening opens the microphone and begins a capture session. Calling
// it while a session is running is a warned no-op that returns the running
// session's ID.
func (s *Service) StartListening() (string, error) {
	s.mu.Lock()
	if s.state == StateListening || s.state == StateProcessing {
		id := s.sessionID
		state := s.state
		s.mu.Unlock()
		s.log.Warn("start requested while session active",
			slog.String("session_id", id),
			slog.String("state", string(state)))
		return id, nil
	}
	// Reserve the session slot before touching the device so a concurrent
	// start takes the no-op path above instead of racing capture.Start.
	s.state = StateListening
	s.sessionID = ""
	s.mu.Unlock()

	sessionID, err := s.capture.Start(s.ctx)
	if err != nil {
		s.setState(StateError, "")
		s.reportError("", "capture", err.Error())
		s.setState(StateIdle, "")
		return "", err
	}

	s.setState(StateListening, sessionID)
	s.metrics.sessionStarted(s.ctx)

	if s.journal != nil {
		if err := s.journal.StartSession(s.ctx, sessionID); err != nil {
			s.log.Warn("journal session start failed", slog.String("error", err.Error()))
		}
	}
	s.publish(protocol.SubjectListeningStarted, protocol.ListeningStarted{
		SessionID: sessionID,
		Timestamp: s.clock().UTC(),
	})

	s.wg.Add(1)
	go s.watch(sessionID)

	s.log.Info("listening started", slog.String("session_id", sessionID))
	return sessionID, nil
}

// StopListening ends the running capture session. The finished utterance
// still flows through transcription and parsing. No-op when idle.
func (s *Service) StopListening() {
	s.mu.Lock()
	listening := s.state == StateListening
	s.mu.Unlock()
	if !listening {
		s.log.Warn("stop requested with no active capture")
		return
	}
	s.capture.Stop()
}

// ToggleListening starts a session when idle and stops it when listening.
func (s *Service) ToggleListening() {
	if s.capture.Active() {
		s.StopListening()
		return
	}
	if _, err := s.StartListening(); err != nil {
		s.log.Warn("toggle start failed", slog.String("error", err.Error()))
	}
}

// RetryLastCommand re-parses the newest retained command's transcript and
// publishes the result. Useful after a vocabulary fix.
func (s *Service) RetryLastCommand() {
	s.mu.Lock()
	var last *protocol.Command
	if len(s.history) > 0 {
		c := s.history[len(s.history)-1]
		last = &c
	}
	s.mu.Unlock()

	if last == nil {
		s.log.Warn("retry requested with empty history")
		s.reportError("", "interpreter", "no command to retry")
		return
	}

	cmd := s.toProtocol(last.SessionID, s.interpreter.Parse(s.ctx, last.RawText))
	s.emitCommand(cmd)
}

func (s *Service) setState(state State, sessionID string) {
	s.mu.Lock()
	s.state = state
	s.sessionID = sessionID
	s.mu.Unlock()
}

// watch drains level samples, drives interim transcription and waits for the
// finished utterance. One instance runs per capture session.
func (s *Service) watch(sessionID string) {
	defer s.wg.Done()

	var partialC <-chan time.Time
	if s.cfg.Recognizer.PublishInterim && s.cfg.Recognizer.PartialEveryMS > 0 {
		ticker := time.NewTicker(time.Duration(s.cfg.Recognizer.PartialEveryMS) * time.Millisecond)
		defer ticker.Stop()
		partialC = ticker.C
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		case lvl := <-s.capture.Levels():
			s.publish(protocol.SubjectAudioLevel, protocol.AudioLevel{
				SessionID: sessionID,
				Level:     lvl.RMS,
				Silent:    lvl.Silent,
			})
		case <-partialC:
			s.transcribePartial(sessionID)
		case utt := <-s.capture.Done():
			s.process(utt)
			return
		}
	}
}

// transcribePartial runs a best-effort interim transcription over the
// samples buffered so far. Skipped entirely while another transcription is
// in flight.
func (s *Service) transcribePartial(sessionID string) {
	if s.transcriber.InFlight() {
		return
	}
	snapshot := s.capture.Snapshot()
	if len(snapshot) == 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := s.transcriber.Transcribe(s.ctx, audio.FloatToPCM16(snapshot),
			s.cfg.Capture.SampleRate, s.cfg.Capture.Channels, false)
		if err != nil || res.Text == "" {
			return
		}
		s.publish(protocol.SubjectTranscriptPartial, protocol.Transcript{
			SessionID:  sessionID,
			Text:       res.Text,
			Confidence: res.Confidence,
			Final:      false,
			Timestamp:  res.Timestamp,
		})
	}()
}

func (s *Service) process(utt audio.Utterance) {
	s.setState(StateProcessing, utt.ID)

	pcm := audio.FloatToPCM16(utt.Samples)
	s.publish(protocol.SubjectListeningStopped, protocol.ListeningStopped{
		SessionID:  utt.ID,
		DurationMS: utt.Duration.Milliseconds(),
		AudioBytes: len(pcm) * 2,
		AutoStop:   utt.AutoStopped,
		Timestamp:  s.clock().UTC(),
	})
	s.metrics.utteranceDuration(s.ctx, utt.Duration.Seconds())

	// A straggling interim transcription must release the recognizer before
	// the final pass can run.
	s.transcriber.Cancel()
	for i := 0; i < 400 && s.transcriber.InFlight(); i++ {
		time.Sleep(5 * time.Millisecond)
	}

	result := stt.Result{Final: true, Timestamp: s.clock().UTC()}
	if len(pcm) > 0 {
		res, err := s.transcriber.Transcribe(s.ctx, pcm,
			s.cfg.Capture.SampleRate, s.cfg.Capture.Channels, true)
		if err != nil {
			s.log.Warn("final transcription rejected", slog.String("error", err.Error()))
		} else {
			result = res
		}
	}

	transcript := protocol.Transcript{
		SessionID:  utt.ID,
		Text:       result.Text,
		Confidence: result.Confidence,
		Final:      true,
		Timestamp:  result.Timestamp,
	}
	s.publish(protocol.SubjectTranscriptFinal, transcript)
	if s.journal != nil {
		if err := s.journal.RecordTranscript(s.ctx, transcript); err != nil {
			s.log.Warn("journal transcript failed", slog.String("error", err.Error()))
		}
	}

	// An empty transcript is the recognizer's fallback result, not a failure.
	// It parses to UNKNOWN with a confirmation prompt so the user hears a
	// rephrasing suggestion instead of silence.
	if result.Text == "" {
		s.metrics.transcriptionFailed(s.ctx)
	}

	cmd := s.toProtocol(utt.ID, s.interpreter.Parse(s.ctx, result.Text))
	s.emitCommand(cmd)
	s.endSession(utt.ID)
	s.setState(StateIdle, "")
}

// emitCommand publishes a parsed command, journals it and retains it in the
// bounded history. Commands that need confirmation are additionally announced
// on the ready subject so the UI prompts the user.
func (s *Service) emitCommand(cmd protocol.Command) {
	s.publish(protocol.SubjectCommandParsed, cmd)
	if cmd.RequiresConfirmation {
		s.publish(protocol.SubjectCommandReady, cmd)
	}
	if s.journal != nil {
		if err := s.journal.RecordCommand(s.ctx, cmd); err != nil {
			s.log.Warn("journal command failed", slog.String("error", err.Error()))
		}
	}
	s.metrics.commandParsed(s.ctx, cmd.Intent, cmd.RequiresConfirmation)

	s.mu.Lock()
	s.history = append(s.history, cmd)
	if limit := s.cfg.Interpreter.HistorySize; limit > 0 && len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.mu.Unlock()

	s.log.Info("command parsed",
		slog.String("session_id", cmd.SessionID),
		slog.String("intent", cmd.Intent),
		slog.Float64("confidence", cmd.Confidence),
		slog.Bool("requires_confirmation", cmd.RequiresConfirmation))
}

func (s *Service) endSession(sessionID string) {
	if s.journal == nil {
		return
	}
	if err := s.journal.EndSession(s.ctx, sessionID); err != nil {
		s.log.Warn("journal session end failed", slog.String("error", err.Error()))
	}
}

func (s *Service) toProtocol(sessionID string, cmd nlu.Command) protocol.Command {
	entities := make([]protocol.Entity, 0, len(cmd.Entities))
	for _, e := range cmd.Entities {
		entities = append(entities, protocol.Entity{
			Type:       string(e.Type),
			Value:      e.Value,
			Confidence: e.Confidence,
		})
	}
	return protocol.Command{
		SessionID:            sessionID,
		RawText:              cmd.RawText,
		Intent:               string(cmd.Intent),
		Entities:             entities,
		Confidence:           cmd.Confidence,
		RequiresConfirmation: cmd.RequiresConfirmation,
		SuggestedResponse:    cmd.SuggestedResponse,
		Timestamp:            cmd.Timestamp,
	}
}

func (s *Service) reportError(sessionID, stage, message string) {
	evt := protocol.VoiceError{
		SessionID: sessionID,
		Stage:     stage,
		Message:   message,
		Timestamp: s.clock().UTC(),
	}
	s.publish(protocol.SubjectVoiceError, evt)
	if s.journal != nil {
		if err := s.journal.RecordError(s.ctx, evt); err != nil {
			s.log.Warn("journal error record failed", slog.String("error", err.Error()))
		}
	}
	s.log.Warn("pipeline error",
		slog.String("session_id", sessionID),
		slog.String("stage", stage),
		slog.String("message", message))
}

func (s *Service) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal event",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
		return
	}
	if err := s.pub.Publish(subject, data); err != nil {
		s.log.Warn("failed to publish event",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
}
