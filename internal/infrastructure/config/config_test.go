package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, "unicorn.yaml", `
device:
  id: "kitchen_unicorn"
  timezone: "Europe/London"
mqtt:
  broker:
    host: "broker.local"
    port: 1883
  base_topic: "kitchen/unicorn"
queue:
  capacity: 4
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.ID != "kitchen_unicorn" {
		t.Errorf("Device.ID = %q, want %q", cfg.Device.ID, "kitchen_unicorn")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.Queue.Capacity != 4 {
		t.Errorf("Queue.Capacity = %d, want 4", cfg.Queue.Capacity)
	}
	// Unset values keep their defaults.
	if cfg.Display.Width != 53 {
		t.Errorf("Display.Width = %d, want 53", cfg.Display.Width)
	}
	if cfg.Location().String() != "Europe/London" {
		t.Errorf("Location() = %q, want %q", cfg.Location().String(), "Europe/London")
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	path := writeConfig(t, "unicorn.toml", `
[device]
id = "hall_unicorn"

[mqtt]
base_topic = "hall"

[mqtt.broker]
host = "10.0.0.2"
port = 8883
tls = true

[ntp]
server = "time.cloudflare.com"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.ID != "hall_unicorn" {
		t.Errorf("Device.ID = %q, want %q", cfg.Device.ID, "hall_unicorn")
	}
	if !cfg.MQTT.Broker.TLS || cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker = %+v, want TLS on port 8883", cfg.MQTT.Broker)
	}
	if cfg.NTP.Server != "time.cloudflare.com" {
		t.Errorf("NTP.Server = %q, want %q", cfg.NTP.Server, "time.cloudflare.com")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/unicorn.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "unicorn.yaml", "invalid: [yaml: content")

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ShippedConfig(t *testing.T) {
	t.Setenv("UNICORN_MQTT_HOST", "")
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load(configs/config.yaml) error = %v", err)
	}
	if cfg.Device.Timezone != "Europe/London" {
		t.Errorf("Device.Timezone = %q, want Europe/London", cfg.Device.Timezone)
	}
	if cfg.Display.Width != 53 || cfg.Display.Height != 11 {
		t.Errorf("display = %dx%d, want defaults 53x11", cfg.Display.Width, cfg.Display.Height)
	}
	if cfg.Location().String() != "Europe/London" {
		t.Errorf("Location() = %v", cfg.Location())
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, "unicorn.yaml", `
device:
  id: ""
`)

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected validation error for empty device.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "missing device id", mutate: func(c *Config) { c.Device.ID = "" }, wantErr: "device.id"},
		{name: "unknown timezone", mutate: func(c *Config) { c.Device.Timezone = "Mars/Olympus" }, wantErr: "device.timezone"},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{name: "wildcard base topic", mutate: func(c *Config) { c.MQTT.BaseTopic = "unicorn/#" }, wantErr: "mqtt.base_topic"},
		{name: "keepalive timeout too short", mutate: func(c *Config) { c.MQTT.KeepAliveTimeout = 5 }, wantErr: "keep_alive_timeout"},
		{name: "backoff ceiling below floor", mutate: func(c *Config) { c.WiFi.Backoff.MaxDelay = 1 }, wantErr: "wifi.backoff.max_delay"},
		{name: "zero queue capacity", mutate: func(c *Config) { c.Queue.Capacity = 0 }, wantErr: "queue.capacity"},
		{name: "brightness out of range", mutate: func(c *Config) { c.Display.Brightness = 300 }, wantErr: "display.brightness"},
		{name: "unknown driver", mutate: func(c *Config) { c.Display.Driver = "hub75" }, wantErr: "display.driver"},
		{name: "unknown button source", mutate: func(c *Config) { c.Buttons.Source = "i2c" }, wantErr: "buttons.source"},
		{name: "zero long press", mutate: func(c *Config) { c.Buttons.LongPress = 0 }, wantErr: "buttons.long_press"},
		{name: "api port ignored when disabled", mutate: func(c *Config) { c.API.Port = 0 }},
		{name: "api port checked when enabled", mutate: func(c *Config) { c.API.Enabled = true; c.API.Port = 70000 }, wantErr: "api.port"},
		{name: "preview without api", mutate: func(c *Config) { c.Display.Driver = "preview" }, wantErr: "requires api.enabled"},
		{name: "preview with api", mutate: func(c *Config) { c.Display.Driver = "preview"; c.API.Enabled = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("UNICORN_DEVICE_ID", "bedroom")
	t.Setenv("UNICORN_MQTT_HOST", "mqtt.example.com")
	t.Setenv("UNICORN_MQTT_USERNAME", "testuser")
	t.Setenv("UNICORN_MQTT_PASSWORD", "testpass")
	t.Setenv("UNICORN_NTP_SERVER", "ntp.example.com")
	t.Setenv("UNICORN_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	checks := []struct {
		field, got, want string
	}{
		{"Device.ID", cfg.Device.ID, "bedroom"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"NTP.Server", cfg.NTP.Server, "ntp.example.com"},
		{"Logging.Level", cfg.Logging.Level, "debug"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Display.Width != 53 || cfg.Display.Height != 11 {
		t.Errorf("defaultConfig Display = %dx%d, want 53x11", cfg.Display.Width, cfg.Display.Height)
	}
	if cfg.NTP.Interval != 3600 {
		t.Errorf("defaultConfig NTP.Interval = %d, want 3600", cfg.NTP.Interval)
	}
	if cfg.NTP.RetryInterval != 10 {
		t.Errorf("defaultConfig NTP.RetryInterval = %d, want 10", cfg.NTP.RetryInterval)
	}
	if cfg.NTP.InitialSnap {
		t.Error("defaultConfig NTP.InitialSnap = true, want false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig Validate() error = %v", err)
	}
}

func TestNewIdentity(t *testing.T) {
	cfg := defaultConfig()
	cfg.MQTT.BaseTopic = "home/unicorn/"

	id, err := NewIdentity(cfg, "1.2.3", []string{"none", "fire"})
	if err != nil {
		t.Fatalf("NewIdentity() error = %v", err)
	}

	topics := map[string]string{
		"ClockState":      id.Topics.ClockState,
		"EffectSet":       id.Topics.EffectSet,
		"EffectState":     id.Topics.EffectState,
		"BrightnessSet":   id.Topics.BrightnessSet,
		"BrightnessState": id.Topics.BrightnessState,
		"Message":         id.Topics.Message,
		"ColorSet":        id.Topics.ColorSet,
		"ColorState":      id.Topics.ColorState,
	}
	want := map[string]string{
		"ClockState":      "home/unicorn/clock/state",
		"EffectSet":       "home/unicorn/effect/set",
		"EffectState":     "home/unicorn/effect/state",
		"BrightnessSet":   "home/unicorn/brightness/set",
		"BrightnessState": "home/unicorn/brightness/state",
		"Message":         "home/unicorn/message",
		"ColorSet":        "home/unicorn/rgb/set",
		"ColorState":      "home/unicorn/rgb/state",
	}
	for k, w := range want {
		if topics[k] != w {
			t.Errorf("Topics.%s = %q, want %q", k, topics[k], w)
		}
	}

	if len(id.Entities) != 6 {
		t.Fatalf("len(Entities) = %d, want 6", len(id.Entities))
	}
	effect := id.Entities[1]
	if got := id.DiscoveryTopic(effect); got != "homeassistant/select/galactic_unicorn/effect/config" {
		t.Errorf("DiscoveryTopic(effect) = %q", got)
	}
	if got := effect.UniqueID(id.DeviceID); got != "galactic_unicorn_effect" {
		t.Errorf("UniqueID() = %q, want %q", got, "galactic_unicorn_effect")
	}
	if len(effect.Options) != 2 {
		t.Errorf("effect Options = %v, want 2 entries", effect.Options)
	}
}

func TestNewIdentity_TopicTooLong(t *testing.T) {
	cfg := defaultConfig()
	cfg.MQTT.BaseTopic = strings.Repeat("x", MaxTopicLen)

	_, err := NewIdentity(cfg, "dev", nil)
	if !errors.Is(err, ErrTopicTooLong) {
		t.Errorf("NewIdentity() error = %v, want ErrTopicTooLong", err)
	}
}

// The shipped example must load, validate, and carry no key the firmware ignores.
func TestShippedConfig(t *testing.T) {
	path := filepath.Join("..", "..", "..", "configs", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var strict Config
	if err := dec.Decode(&strict); err != nil {
		t.Errorf("shipped config has keys no field reads: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%s) error = %v", path, err)
	}
	if cfg.Buttons.LongPress != 500 || cfg.Buttons.DoublePress != 250 {
		t.Errorf("press timings = %d/%d, want 500/250", cfg.Buttons.LongPress, cfg.Buttons.DoublePress)
	}
}
