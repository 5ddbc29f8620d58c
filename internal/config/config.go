package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// CaptureConfig controls the microphone stream and silence detection.
type CaptureConfig struct {
	SampleRate        int     `yaml:"sample_rate"`
	Channels          int     `yaml:"channels"`
	TickMS            int     `yaml:"tick_ms"`
	SilenceThreshold  float64 `yaml:"silence_threshold"`
	SilenceDurationMS int     `yaml:"silence_duration_ms"`
	MaxUtteranceMS    int     `yaml:"max_utterance_ms"`
	Device            string  `yaml:"device"`
}

// RecognizerConfig describes the external speech-to-text executable.
type RecognizerConfig struct {
	BinaryPath      string   `yaml:"binary_path"`
	BinaryNames     []string `yaml:"binary_names"`
	InstallDir      string   `yaml:"install_dir"`
	ExtraArgs       string   `yaml:"extra_args"`
	ModelPath       string   `yaml:"model_path"`
	Language        string   `yaml:"language"`
	Threads         int      `yaml:"threads"`
	Temperature     float64  `yaml:"temperature"`
	BeamSize        int      `yaml:"beam_size"`
	Translate       bool     `yaml:"translate"`
	TimeoutMS       int      `yaml:"timeout_ms"`
	PromptTermLimit int      `yaml:"prompt_term_limit"`
	PublishInterim  bool     `yaml:"publish_interim"`
	PartialEveryMS  int      `yaml:"partial_every_ms"`
}

// InterpreterConfig tunes command parsing thresholds.
type InterpreterConfig struct {
	ConfirmAmountAbove float64 `yaml:"confirm_amount_above"`
	ConfirmBelowScore  float64 `yaml:"confirm_below_score"`
	HistorySize        int     `yaml:"history_size"`
}

type VocabularyConfig struct {
	Path     string `yaml:"path"`
	SeedFile string `yaml:"seed_file"`
}

type JournalConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type ModelsConfig struct {
	Dir     string `yaml:"dir"`
	BaseURL string `yaml:"base_url"`
}

type Config struct {
	RuntimeName string            `yaml:"runtime_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	Capture     CaptureConfig     `yaml:"capture"`
	Recognizer  RecognizerConfig  `yaml:"recognizer"`
	Interpreter InterpreterConfig `yaml:"interpreter"`
	Vocabulary  VocabularyConfig  `yaml:"vocabulary"`
	Journal     JournalConfig     `yaml:"journal"`
	Models      ModelsConfig      `yaml:"models"`
}

func Default() Config {
	return Config{
		RuntimeName: "ledgervoice-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Capture: CaptureConfig{
			SampleRate:        16000,
			Channels:          1,
			TickMS:            16,
			SilenceThreshold:  0.02,
			SilenceDurationMS: 1500,
			MaxUtteranceMS:    30000,
		},
		Recognizer: RecognizerConfig{
			BinaryNames:     []string{"whisper-cli", "whisper-cpp", "main"},
			InstallDir:      "./bin",
			Language:        "en",
			Threads:         4,
			Temperature:     0.0,
			BeamSize:        5,
			TimeoutMS:       30000,
			PromptTermLimit: 32,
			PublishInterim:  false,
			PartialEveryMS:  800,
		},
		Interpreter: InterpreterConfig{
			ConfirmAmountAbove: 10000,
			ConfirmBelowScore:  0.6,
			HistorySize:        50,
		},
		Vocabulary: VocabularyConfig{
			Path: "./data/vocabulary.db",
		},
		Journal: JournalConfig{
			Path:          "./data/ledgervoice-journal.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Models: ModelsConfig{
			Dir:     "./data/models",
			BaseURL: "https://huggingface.co/ggerganov/whisper.cpp/resolve/main",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LEDGERVOICE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LEDGERVOICE_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LEDGERVOICE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LEDGERVOICE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LEDGERVOICE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LEDGERVOICE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LEDGERVOICE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LEDGERVOICE_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "LEDGERVOICE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LEDGERVOICE_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "LEDGERVOICE_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "LEDGERVOICE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LEDGERVOICE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LEDGERVOICE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LEDGERVOICE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LEDGERVOICE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LEDGERVOICE_BUS_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.Capture.SampleRate, "LEDGERVOICE_CAPTURE_SAMPLE_RATE")
	overrideInt(&cfg.Capture.Channels, "LEDGERVOICE_CAPTURE_CHANNELS")
	overrideInt(&cfg.Capture.TickMS, "LEDGERVOICE_CAPTURE_TICK_MS")
	overrideFloat(&cfg.Capture.SilenceThreshold, "LEDGERVOICE_CAPTURE_SILENCE_THRESHOLD")
	overrideInt(&cfg.Capture.SilenceDurationMS, "LEDGERVOICE_CAPTURE_SILENCE_DURATION_MS")
	overrideInt(&cfg.Capture.MaxUtteranceMS, "LEDGERVOICE_CAPTURE_MAX_UTTERANCE_MS")
	overrideString(&cfg.Capture.Device, "LEDGERVOICE_CAPTURE_DEVICE")
	overrideString(&cfg.Recognizer.BinaryPath, "LEDGERVOICE_RECOGNIZER_BINARY_PATH")
	overrideStringSlice(&cfg.Recognizer.BinaryNames, "LEDGERVOICE_RECOGNIZER_BINARY_NAMES")
	overrideString(&cfg.Recognizer.InstallDir, "LEDGERVOICE_RECOGNIZER_INSTALL_DIR")
	overrideString(&cfg.Recognizer.ExtraArgs, "LEDGERVOICE_RECOGNIZER_EXTRA_ARGS")
	overrideString(&cfg.Recognizer.ModelPath, "LEDGERVOICE_RECOGNIZER_MODEL_PATH")
	overrideString(&cfg.Recognizer.Language, "LEDGERVOICE_RECOGNIZER_LANGUAGE")
	overrideInt(&cfg.Recognizer.Threads, "LEDGERVOICE_RECOGNIZER_THREADS")
	overrideFloat(&cfg.Recognizer.Temperature, "LEDGERVOICE_RECOGNIZER_TEMPERATURE")
	overrideInt(&cfg.Recognizer.BeamSize, "LEDGERVOICE_RECOGNIZER_BEAM_SIZE")
	overrideBool(&cfg.Recognizer.Translate, "LEDGERVOICE_RECOGNIZER_TRANSLATE")
	overrideInt(&cfg.Recognizer.TimeoutMS, "LEDGERVOICE_RECOGNIZER_TIMEOUT_MS")
	overrideInt(&cfg.Recognizer.PromptTermLimit, "LEDGERVOICE_RECOGNIZER_PROMPT_TERM_LIMIT")
	overrideBool(&cfg.Recognizer.PublishInterim, "LEDGERVOICE_RECOGNIZER_PUBLISH_INTERIM")
	overrideInt(&cfg.Recognizer.PartialEveryMS, "LEDGERVOICE_RECOGNIZER_PARTIAL_EVERY_MS")
	overrideFloat(&cfg.Interpreter.ConfirmAmountAbove, "LEDGERVOICE_INTERPRETER_CONFIRM_AMOUNT_ABOVE")
	overrideFloat(&cfg.Interpreter.ConfirmBelowScore, "LEDGERVOICE_INTERPRETER_CONFIRM_BELOW_SCORE")
	overrideInt(&cfg.Interpreter.HistorySize, "LEDGERVOICE_INTERPRETER_HISTORY_SIZE")
	overrideString(&cfg.Vocabulary.Path, "LEDGERVOICE_VOCABULARY_PATH")
	overrideString(&cfg.Vocabulary.SeedFile, "LEDGERVOICE_VOCABULARY_SEED_FILE")
	overrideString(&cfg.Journal.Path, "LEDGERVOICE_JOURNAL_PATH")
	overrideString(&cfg.Journal.RetentionMode, "LEDGERVOICE_JOURNAL_RETENTION_MODE")
	overrideInt(&cfg.Journal.RetentionDays, "LEDGERVOICE_JOURNAL_RETENTION_DAYS")
	overrideInt(&cfg.Journal.MaxSessions, "LEDGERVOICE_JOURNAL_MAX_SESSIONS")
	overrideBool(&cfg.Journal.VacuumOnStart, "LEDGERVOICE_JOURNAL_VACUUM_ON_START")
	overrideString(&cfg.Models.Dir, "LEDGERVOICE_MODELS_DIR")
	overrideString(&cfg.Models.BaseURL, "LEDGERVOICE_MODELS_BASE_URL")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Capture.SampleRate <= 0 {
		return errors.New("capture.sample_rate must be positive")
	}
	if cfg.Capture.Channels != 1 {
		return errors.New("capture.channels must be 1; the recognizer expects mono input")
	}
	if cfg.Capture.TickMS <= 0 {
		return errors.New("capture.tick_ms must be positive")
	}
	if cfg.Capture.SilenceThreshold < 0 || cfg.Capture.SilenceThreshold > 1 {
		return errors.New("capture.silence_threshold must be within [0, 1]")
	}
	if cfg.Capture.SilenceDurationMS <= 0 {
		return errors.New("capture.silence_duration_ms must be positive")
	}
	if cfg.Recognizer.Threads <= 0 {
		return errors.New("recognizer.threads must be positive")
	}
	if cfg.Recognizer.BeamSize <= 0 {
		return errors.New("recognizer.beam_size must be positive")
	}
	if cfg.Recognizer.TimeoutMS <= 0 {
		return errors.New("recognizer.timeout_ms must be positive")
	}
	if cfg.Recognizer.PromptTermLimit < 0 {
		return errors.New("recognizer.prompt_term_limit must be >= 0")
	}
	if cfg.Interpreter.HistorySize <= 0 {
		return errors.New("interpreter.history_size must be positive")
	}
	if cfg.Interpreter.ConfirmBelowScore < 0 || cfg.Interpreter.ConfirmBelowScore > 1 {
		return errors.New("interpreter.confirm_below_score must be within [0, 1]")
	}
	if cfg.Vocabulary.Path == "" {
		return errors.New("vocabulary.path must not be empty")
	}
	if cfg.Journal.Path == "" {
		return errors.New("journal.path must not be empty")
	}
	switch cfg.Journal.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("journal.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.Journal.RetentionDays < 0 {
		return errors.New("journal.retention_days must be >= 0")
	}
	if cfg.Models.Dir == "" {
		return errors.New("models.dir must not be empty")
	}
	return nil
}
