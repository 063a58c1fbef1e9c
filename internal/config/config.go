package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	StdoutTraces   bool   `yaml:"stdout_traces"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Node        NodeConfig       `yaml:"node"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	STT         STTConfig        `yaml:"stt"`
	TTS         TTSConfig        `yaml:"tts"`
	Dialogue    DialogueConfig   `yaml:"dialogue"`
	Turn        TurnConfig       `yaml:"turn"`
	Contacts    ContactsConfig   `yaml:"contacts"`
	Surface     SurfaceConfig    `yaml:"surface"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type NodeConfig struct {
	ID                string           `yaml:"id"`
	Role              string           `yaml:"role"`
	HeartbeatInterval int              `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int              `yaml:"heartbeat_timeout_ms"`
	Capabilities      []NodeCapability `yaml:"capabilities"`
}

type NodeCapability struct {
	Name       string            `yaml:"name"`
	Tier       string            `yaml:"tier"`
	Attributes map[string]string `yaml:"attributes"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type STTConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Mode            string `yaml:"mode"` // mock, exec
	Command         string `yaml:"command"`
	ModelPath       string `yaml:"model_path"`
	Language        string `yaml:"language"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	FrameDurationMS int    `yaml:"frame_duration_ms"`
	PartialEveryMS  int    `yaml:"partial_every_ms"`
	PublishInterim  bool   `yaml:"publish_interim"`
	MaxSessionMS    int    `yaml:"max_session_ms"`
	TimeoutMS       int    `yaml:"timeout_ms"`
}

type TTSConfig struct {
	Enabled         bool    `yaml:"enabled"`
	Mode            string  `yaml:"mode"` // mock, exec
	Command         string  `yaml:"command"`
	Voice           string  `yaml:"voice"`
	Rate            float64 `yaml:"rate"`
	Pitch           float64 `yaml:"pitch"`
	Volume          float64 `yaml:"volume"`
	SampleRate      int     `yaml:"sample_rate"`
	Channels        int     `yaml:"channels"`
	ChunkDurationMS int     `yaml:"chunk_duration_ms"`
	Target          string  `yaml:"target"`
}

type DialogueConfig struct {
	ProcessingDelayMS int `yaml:"processing_delay_ms"`
	ReturnDelayMS     int `yaml:"return_delay_ms"`
}

func (d DialogueConfig) ProcessingDelay() time.Duration {
	return time.Duration(d.ProcessingDelayMS) * time.Millisecond
}

func (d DialogueConfig) ReturnDelay() time.Duration {
	return time.Duration(d.ReturnDelayMS) * time.Millisecond
}

type TurnConfig struct {
	SettleDelay time.Duration `yaml:"settle_delay"`
	EchoPhrases []string      `yaml:"echo_phrases"`
	AutoListen  bool          `yaml:"auto_listen"`
}

type ContactsConfig struct {
	// Path to a YAML contact list. Empty uses the built-in directory.
	Path string `yaml:"path"`
}

type SurfaceConfig struct {
	WebSocket    bool     `yaml:"websocket"`
	AllowOrigins []string `yaml:"allow_origins"`
	Bridge       bool     `yaml:"bridge"`
}

func Default() Config {
	return Config{
		RuntimeName: "voicepay",
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
			Host:           "127.0.0.1",
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Node: NodeConfig{
			ID:                "voicepay-node-1",
			Role:              "runtime",
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
			Capabilities: []NodeCapability{
				{Name: "dialogue.payments", Tier: "balanced"},
			},
		},
		EventStore: EventStoreConfig{
			Path:          "./data/voicepay-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		STT: STTConfig{
			Enabled:         true,
			Mode:            "mock",
			Language:        "en-IN",
			SampleRate:      16000,
			Channels:        1,
			FrameDurationMS: 20,
			PartialEveryMS:  800,
			PublishInterim:  true,
			MaxSessionMS:    60000,
			TimeoutMS:       45000,
		},
		TTS: TTSConfig{
			Enabled:         true,
			Mode:            "mock",
			Voice:           "en-IN",
			Rate:            0.95,
			Pitch:           1.0,
			Volume:          1.0,
			SampleRate:      22050,
			Channels:        1,
			ChunkDurationMS: 400,
			Target:          "default",
		},
		Dialogue: DialogueConfig{
			ProcessingDelayMS: 2000,
			ReturnDelayMS:     3000,
		},
		Turn: TurnConfig{
			SettleDelay: 150 * time.Millisecond,
		},
		Surface: SurfaceConfig{
			WebSocket: true,
			Bridge:    true,
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
	overrideString(&cfg.RuntimeName, "VOICEPAY_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VOICEPAY_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOICEPAY_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOICEPAY_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VOICEPAY_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOICEPAY_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOICEPAY_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.StdoutTraces, "VOICEPAY_TELEMETRY_STDOUT_TRACES")
	overrideString(&cfg.Telemetry.PrometheusBind, "VOICEPAY_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "VOICEPAY_BUS_EMBEDDED")
	overrideString(&cfg.Bus.Host, "VOICEPAY_BUS_HOST")
	overrideInt(&cfg.Bus.Port, "VOICEPAY_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "VOICEPAY_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "VOICEPAY_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOICEPAY_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOICEPAY_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOICEPAY_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOICEPAY_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOICEPAY_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Node.ID, "VOICEPAY_NODE_ID")
	overrideString(&cfg.Node.Role, "VOICEPAY_NODE_ROLE")
	overrideInt(&cfg.Node.HeartbeatInterval, "VOICEPAY_NODE_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Node.HeartbeatTimeout, "VOICEPAY_NODE_HEARTBEAT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "VOICEPAY_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "VOICEPAY_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "VOICEPAY_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "VOICEPAY_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "VOICEPAY_EVENT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.STT.Enabled, "VOICEPAY_STT_ENABLED")
	overrideString(&cfg.STT.Mode, "VOICEPAY_STT_MODE")
	overrideString(&cfg.STT.Command, "VOICEPAY_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "VOICEPAY_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "VOICEPAY_STT_LANGUAGE")
	overrideInt(&cfg.STT.SampleRate, "VOICEPAY_STT_SAMPLE_RATE")
	overrideInt(&cfg.STT.Channels, "VOICEPAY_STT_CHANNELS")
	overrideInt(&cfg.STT.FrameDurationMS, "VOICEPAY_STT_FRAME_DURATION_MS")
	overrideInt(&cfg.STT.PartialEveryMS, "VOICEPAY_STT_PARTIAL_EVERY_MS")
	overrideBool(&cfg.STT.PublishInterim, "VOICEPAY_STT_PUBLISH_INTERIM")
	overrideInt(&cfg.STT.MaxSessionMS, "VOICEPAY_STT_MAX_SESSION_MS")
	overrideInt(&cfg.STT.TimeoutMS, "VOICEPAY_STT_TIMEOUT_MS")
	overrideBool(&cfg.TTS.Enabled, "VOICEPAY_TTS_ENABLED")
	overrideString(&cfg.TTS.Mode, "VOICEPAY_TTS_MODE")
	overrideString(&cfg.TTS.Command, "VOICEPAY_TTS_COMMAND")
	overrideString(&cfg.TTS.Voice, "VOICEPAY_TTS_VOICE")
	overrideFloat(&cfg.TTS.Rate, "VOICEPAY_TTS_RATE")
	overrideFloat(&cfg.TTS.Pitch, "VOICEPAY_TTS_PITCH")
	overrideFloat(&cfg.TTS.Volume, "VOICEPAY_TTS_VOLUME")
	overrideInt(&cfg.TTS.SampleRate, "VOICEPAY_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "VOICEPAY_TTS_CHANNELS")
	overrideInt(&cfg.TTS.ChunkDurationMS, "VOICEPAY_TTS_CHUNK_DURATION_MS")
	overrideString(&cfg.TTS.Target, "VOICEPAY_TTS_TARGET")
	overrideInt(&cfg.Dialogue.ProcessingDelayMS, "VOICEPAY_DIALOGUE_PROCESSING_DELAY_MS")
	overrideInt(&cfg.Dialogue.ReturnDelayMS, "VOICEPAY_DIALOGUE_RETURN_DELAY_MS")
	overrideDuration(&cfg.Turn.SettleDelay, "VOICEPAY_TURN_SETTLE_DELAY")
	overrideStringSlice(&cfg.Turn.EchoPhrases, "VOICEPAY_TURN_ECHO_PHRASES")
	overrideBool(&cfg.Turn.AutoListen, "VOICEPAY_TURN_AUTO_LISTEN")
	overrideString(&cfg.Contacts.Path, "VOICEPAY_CONTACTS_PATH")
	overrideBool(&cfg.Surface.WebSocket, "VOICEPAY_SURFACE_WEBSOCKET")
	overrideStringSlice(&cfg.Surface.AllowOrigins, "VOICEPAY_SURFACE_ALLOW_ORIGINS")
	overrideBool(&cfg.Surface.Bridge, "VOICEPAY_SURFACE_BRIDGE")
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

func overrideDuration(target *time.Duration, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
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
	switch strings.ToLower(cfg.Telemetry.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
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
	if cfg.Node.ID == "" {
		return errors.New("node.id must not be empty")
	}
	if cfg.Node.HeartbeatInterval <= 0 {
		return errors.New("node.heartbeat_interval_ms must be positive")
	}
	if cfg.Node.HeartbeatTimeout <= cfg.Node.HeartbeatInterval {
		return errors.New("node.heartbeat_timeout_ms must be greater than heartbeat interval")
	}
	if cfg.EventStore.Path == "" && cfg.EventStore.RetentionMode != "ephemeral" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.STT.Enabled {
		switch cfg.STT.Mode {
		case "mock", "exec":
		default:
			return errors.New("stt.mode must be one of mock|exec")
		}
		if cfg.STT.SampleRate <= 0 {
			return errors.New("stt.sample_rate must be positive")
		}
		if cfg.STT.Channels <= 0 {
			return errors.New("stt.channels must be positive")
		}
		if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
		if cfg.STT.MaxSessionMS < 0 {
			return errors.New("stt.max_session_ms must be >= 0")
		}
	}
	if cfg.TTS.Enabled {
		switch cfg.TTS.Mode {
		case "mock", "exec":
		default:
			return errors.New("tts.mode must be one of mock|exec")
		}
		if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
			return errors.New("tts.command must be set when mode=exec")
		}
		if cfg.TTS.SampleRate <= 0 {
			return errors.New("tts.sample_rate must be positive")
		}
		if cfg.TTS.Channels <= 0 {
			return errors.New("tts.channels must be positive")
		}
		if cfg.TTS.Rate <= 0 || cfg.TTS.Volume < 0 || cfg.TTS.Volume > 1 {
			return errors.New("tts.rate must be positive and tts.volume within 0..1")
		}
	}
	if cfg.Dialogue.ProcessingDelayMS <= 0 || cfg.Dialogue.ReturnDelayMS <= 0 {
		return errors.New("dialogue delays must be positive")
	}
	if cfg.Turn.SettleDelay < 0 {
		return errors.New("turn.settle_delay must be >= 0")
	}
	return nil
}
