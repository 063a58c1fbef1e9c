package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Dialogue.ProcessingDelay() != 2*time.Second || cfg.Dialogue.ReturnDelay() != 3*time.Second {
		t.Fatalf("unexpected dialogue delays: %+v", cfg.Dialogue)
	}
	if cfg.Turn.SettleDelay != 150*time.Millisecond {
		t.Fatalf("unexpected settle delay: %s", cfg.Turn.SettleDelay)
	}
	if cfg.TTS.Voice != "en-IN" || cfg.TTS.Rate != 0.95 {
		t.Fatalf("unexpected voice defaults: %+v", cfg.TTS)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOICEPAY_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("VOICEPAY_BUS_USERNAME", "alice")
	t.Setenv("VOICEPAY_BUS_PASSWORD", "secret")
	t.Setenv("VOICEPAY_BUS_TLS_INSECURE", "true")
	t.Setenv("VOICEPAY_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("VOICEPAY_NODE_ID", "test-node")
	t.Setenv("VOICEPAY_NODE_HEARTBEAT_INTERVAL_MS", "1500")
	t.Setenv("VOICEPAY_NODE_HEARTBEAT_TIMEOUT_MS", "5000")
	t.Setenv("VOICEPAY_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("VOICEPAY_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("VOICEPAY_EVENT_STORE_RETENTION_DAYS", "7")
	t.Setenv("VOICEPAY_EVENT_STORE_MAX_SESSIONS", "123")
	t.Setenv("VOICEPAY_EVENT_STORE_VACUUM_ON_START", "true")
	t.Setenv("VOICEPAY_DIALOGUE_PROCESSING_DELAY_MS", "500")
	t.Setenv("VOICEPAY_TURN_SETTLE_DELAY", "300ms")
	t.Setenv("VOICEPAY_TURN_ECHO_PHRASES", "say approve, please select")
	t.Setenv("VOICEPAY_TTS_RATE", "1.1")
	t.Setenv("VOICEPAY_CONTACTS_PATH", "/etc/voicepay/contacts.yaml")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.Node.ID != "test-node" {
		t.Fatalf("expected node id override")
	}
	if cfg.Node.HeartbeatInterval != 1500 || cfg.Node.HeartbeatTimeout != 5000 {
		t.Fatalf("expected heartbeat overrides")
	}
	if cfg.EventStore.Path != "./tmp.db" || cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected event store overrides")
	}
	if cfg.EventStore.RetentionDays != 7 || cfg.EventStore.MaxSessions != 123 {
		t.Fatalf("expected event store retention overrides")
	}
	if !cfg.EventStore.VacuumOnStart {
		t.Fatalf("expected event store vacuum flag override")
	}
	if cfg.Dialogue.ProcessingDelayMS != 500 {
		t.Fatalf("expected processing delay override, got %d", cfg.Dialogue.ProcessingDelayMS)
	}
	if cfg.Turn.SettleDelay != 300*time.Millisecond {
		t.Fatalf("expected settle delay override, got %s", cfg.Turn.SettleDelay)
	}
	if len(cfg.Turn.EchoPhrases) != 2 || cfg.Turn.EchoPhrases[1] != "please select" {
		t.Fatalf("expected echo phrases override, got %v", cfg.Turn.EchoPhrases)
	}
	if cfg.TTS.Rate != 1.1 {
		t.Fatalf("expected tts rate override, got %v", cfg.TTS.Rate)
	}
	if cfg.Contacts.Path != "/etc/voicepay/contacts.yaml" {
		t.Fatalf("expected contacts path override")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicepay.yaml")
	data := []byte(`
runtime_name: kiosk
dialogue:
  processing_delay_ms: 1000
turn:
  settle_delay: 250ms
  auto_listen: true
stt:
  mode: exec
  command: whisper-cli --json
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RuntimeName != "kiosk" {
		t.Fatalf("expected runtime name from file, got %q", cfg.RuntimeName)
	}
	if cfg.Dialogue.ProcessingDelayMS != 1000 || cfg.Dialogue.ReturnDelayMS != 3000 {
		t.Fatalf("expected file values layered over defaults, got %+v", cfg.Dialogue)
	}
	if cfg.Turn.SettleDelay != 250*time.Millisecond || !cfg.Turn.AutoListen {
		t.Fatalf("unexpected turn config: %+v", cfg.Turn)
	}
	if cfg.STT.Command != "whisper-cli --json" {
		t.Fatalf("unexpected stt command %q", cfg.STT.Command)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"exec stt without command": func(c *Config) { c.STT.Mode = "exec"; c.STT.Command = "" },
		"unknown tts mode":         func(c *Config) { c.TTS.Mode = "espeak" },
		"zero processing delay":    func(c *Config) { c.Dialogue.ProcessingDelayMS = 0 },
		"bad log level":            func(c *Config) { c.Telemetry.LogLevel = "verbose" },
		"bad retention":            func(c *Config) { c.EventStore.RetentionMode = "forever" },
		"heartbeat timeout":        func(c *Config) { c.Node.HeartbeatTimeout = c.Node.HeartbeatInterval },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := validate(cfg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
