package protocol

import "time"

// AudioLevel is the informational loudness sample emitted on every capture tick.
type AudioLevel struct {
	SessionID string  `json:"session_id"`
	Level     float64 `json:"level"`
	Silent    bool    `json:"silent"`
}

// Initialized announces that the voice service is attached to the bus and
// ready to accept control requests.
type Initialized struct {
	Timestamp time.Time `json:"timestamp"`
}

// ListeningStarted announces that a capture session opened the microphone.
type ListeningStarted struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ListeningStopped carries the finished utterance for one capture session.
type ListeningStopped struct {
	SessionID  string    `json:"session_id"`
	DurationMS int64     `json:"duration_ms"`
	AudioBytes int       `json:"audio_bytes"`
	AutoStop   bool      `json:"auto_stop"`
	Timestamp  time.Time `json:"timestamp"`
}

// Transcript represents recognizer output, partial or final.
type Transcript struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Final      bool      `json:"final"`
	Timestamp  time.Time `json:"timestamp"`
}

// Entity is a typed value extracted from an utterance.
type Entity struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Command is the parsed, executor-ready form of an utterance.
type Command struct {
	SessionID            string    `json:"session_id"`
	RawText              string    `json:"raw_text"`
	Intent               string    `json:"intent"`
	Entities             []Entity  `json:"entities,omitempty"`
	Confidence           float64   `json:"confidence"`
	RequiresConfirmation bool      `json:"requires_confirmation"`
	SuggestedResponse    string    `json:"suggested_response,omitempty"`
	Timestamp            time.Time `json:"timestamp"`
}

// VoiceError reports a recoverable pipeline failure to observers.
type VoiceError struct {
	SessionID string    `json:"session_id,omitempty"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ModelChanged announces that the active recognizer model was switched.
type ModelChanged struct {
	Variant   string    `json:"variant"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ModelProgress reports fractional progress of a streamed model download.
type ModelProgress struct {
	Variant  string  `json:"variant"`
	Fraction float64 `json:"fraction"`
}

// ControlRequest asks the voice service to change listening state.
type ControlRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Variant   string `json:"variant,omitempty"`
}

const (
	SubjectInitialized       = "voice.session.initialized"
	SubjectListeningStarted  = "voice.listening.started"
	SubjectListeningStopped  = "voice.listening.stopped"
	SubjectAudioLevel        = "voice.audio.level"
	SubjectTranscriptPartial = "stt.text.partial"
	SubjectTranscriptFinal   = "stt.text.final"
	SubjectCommandParsed     = "voice.command.parsed"
	SubjectCommandReady      = "voice.command.ready"
	SubjectVoiceError        = "voice.error"
	SubjectModelChanged      = "voice.model.changed"
	SubjectModelProgress     = "voice.model.progress"

	SubjectCtrlStart  = "voice.ctrl.start"
	SubjectCtrlStop   = "voice.ctrl.stop"
	SubjectCtrlToggle = "voice.ctrl.toggle"
	SubjectCtrlRetry  = "voice.ctrl.retry"
	SubjectCtrlModel  = "voice.ctrl.model"
)
