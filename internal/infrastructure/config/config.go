package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the clock firmware.
// It is loaded from YAML (or TOML, by file extension) and can be overridden by
// environment variables.
type Config struct {
	Device     DeviceConfig     `yaml:"device" toml:"device"`
	WiFi       WiFiConfig       `yaml:"wifi" toml:"wifi"`
	MQTT       MQTTConfig       `yaml:"mqtt" toml:"mqtt"`
	NTP        NTPConfig        `yaml:"ntp" toml:"ntp"`
	Display    DisplayConfig    `yaml:"display" toml:"display"`
	Queue      QueueConfig      `yaml:"queue" toml:"queue"`
	Buttons    ButtonsConfig    `yaml:"buttons" toml:"buttons"`
	API        APIConfig        `yaml:"api" toml:"api"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	Supervisor SupervisorConfig `yaml:"supervisor" toml:"supervisor"`
}

// DeviceConfig identifies the physical device.
type DeviceConfig struct {
	ID           string `yaml:"id" toml:"id"`
	Name         string `yaml:"name" toml:"name"`
	Manufacturer string `yaml:"manufacturer" toml:"manufacturer"`
	Model        string `yaml:"model" toml:"model"`
	Timezone     string `yaml:"timezone" toml:"timezone"`
}

// WiFiConfig describes the wireless link. On a host build the link is a
// network interface that must be up and able to reach ProbeAddress. Joining
// the network (SSID, credentials, addressing) is left to the host's network
// manager.
type WiFiConfig struct {
	Interface    string        `yaml:"interface" toml:"interface"`
	ProbeAddress string        `yaml:"probe_address" toml:"probe_address"`
	JoinTimeout  int           `yaml:"join_timeout" toml:"join_timeout"`   // seconds
	PollInterval int           `yaml:"poll_interval" toml:"poll_interval"` // seconds
	Backoff      BackoffConfig `yaml:"backoff" toml:"backoff"`
}

// BackoffConfig configures an exponential retry policy.
// All values are in seconds.
type BackoffConfig struct {
	InitialDelay int `yaml:"initial_delay" toml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay" toml:"max_delay"`
	StableAfter  int `yaml:"stable_after" toml:"stable_after"`
}

// MQTTConfig contains MQTT broker and topic settings.
type MQTTConfig struct {
	Broker           MQTTBrokerConfig `yaml:"broker" toml:"broker"`
	Auth             MQTTAuthConfig   `yaml:"auth" toml:"auth"`
	QoS              int              `yaml:"qos" toml:"qos"`
	BaseTopic        string           `yaml:"base_topic" toml:"base_topic"`
	DiscoveryPrefix  string           `yaml:"discovery_prefix" toml:"discovery_prefix"`
	KeepAlive        int              `yaml:"keep_alive" toml:"keep_alive"`                 // seconds
	KeepAliveTimeout int              `yaml:"keep_alive_timeout" toml:"keep_alive_timeout"` // seconds
	ConnectTimeout   int              `yaml:"connect_timeout" toml:"connect_timeout"`       // seconds
	Reconnect        BackoffConfig    `yaml:"reconnect" toml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	TLS      bool   `yaml:"tls" toml:"tls"`
	ClientID string `yaml:"client_id" toml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
}

// NTPConfig configures network time synchronisation.
type NTPConfig struct {
	Server        string `yaml:"server" toml:"server"`
	Interval      int    `yaml:"interval" toml:"interval"`             // seconds
	RetryInterval int    `yaml:"retry_interval" toml:"retry_interval"` // seconds
	Timeout       int    `yaml:"timeout" toml:"timeout"`               // seconds
	MaxSlew       int    `yaml:"max_slew" toml:"max_slew"`             // milliseconds per adjustment
	InitialSnap   bool   `yaml:"initial_snap" toml:"initial_snap"`
}

// DisplayConfig configures the LED panel and the arbiter's timing.
type DisplayConfig struct {
	Width              int    `yaml:"width" toml:"width"`
	Height             int    `yaml:"height" toml:"height"`
	Driver             string `yaml:"driver" toml:"driver"`                             // terminal, preview, none
	FrameInterval      int    `yaml:"frame_interval" toml:"frame_interval"`             // milliseconds
	Brightness         int    `yaml:"brightness" toml:"brightness"`                     // 0-255
	MinMessageDuration int    `yaml:"min_message_duration" toml:"min_message_duration"` // milliseconds
	MessageTTL         int    `yaml:"message_ttl" toml:"message_ttl"`                   // seconds
	ScrollSpeed        int    `yaml:"scroll_speed" toml:"scroll_speed"`                 // pixels per second
	ClockStyle         string `yaml:"clock_style" toml:"clock_style"`                   // color, rainbow
	Color              string `yaml:"color" toml:"color"`                               // "r,g,b"; empty keeps the default accent
}

// QueueConfig bounds the inbound message queue.
type QueueConfig struct {
	Capacity   int `yaml:"capacity" toml:"capacity"`
	MaxTextLen int `yaml:"max_text_len" toml:"max_text_len"`
}

// ButtonsConfig selects the button source and its line layout.
type ButtonsConfig struct {
	Source          string      `yaml:"source" toml:"source"` // gpio, keyboard, none
	Chip            string      `yaml:"chip" toml:"chip"`
	Lines           ButtonLines `yaml:"lines" toml:"lines"`
	PollInterval    int         `yaml:"poll_interval" toml:"poll_interval"` // milliseconds
	DebounceSamples int         `yaml:"debounce_samples" toml:"debounce_samples"`
	LongPress       int         `yaml:"long_press" toml:"long_press"`     // milliseconds
	DoublePress     int         `yaml:"double_press" toml:"double_press"` // milliseconds
}

// ButtonLines maps each button to a GPIO line offset.
type ButtonLines struct {
	A              int `yaml:"a" toml:"a"`
	B              int `yaml:"b" toml:"b"`
	C              int `yaml:"c" toml:"c"`
	D              int `yaml:"d" toml:"d"`
	Sleep          int `yaml:"sleep" toml:"sleep"`
	BrightnessUp   int `yaml:"brightness_up" toml:"brightness_up"`
	BrightnessDown int `yaml:"brightness_down" toml:"brightness_down"`
}

// APIConfig contains the local status/preview HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled" toml:"enabled"`
	Host     string           `yaml:"host" toml:"host"`
	Port     int              `yaml:"port" toml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts" toml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read" toml:"read"`
	Write int `yaml:"write" toml:"write"`
	Idle  int `yaml:"idle" toml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // json, text
	Output string `yaml:"output" toml:"output"` // stdout, stderr
}

// SupervisorConfig controls the full-restart policy and the external watchdog.
type SupervisorConfig struct {
	RestartDelay       int `yaml:"restart_delay" toml:"restart_delay"`               // seconds
	MaxRestartAttempts int `yaml:"max_restart_attempts" toml:"max_restart_attempts"` // watchdog only, 0 = unlimited
}

// Load reads configuration from a file and applies environment overrides.
//
// Files ending in .toml are parsed as TOML; everything else as YAML.
//
// Parameters:
//   - path: Path to the configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration. It is used when no config file
// is present, matching a device flashed with compiled-in values.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults for a Galactic Unicorn.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:           "galactic_unicorn",
			Name:         "Galactic Unicorn",
			Manufacturer: "Pimoroni",
			Model:        "Galactic Unicorn",
			Timezone:     "UTC",
		},
		WiFi: WiFiConfig{
			JoinTimeout:  10,
			PollInterval: 5,
			Backoff: BackoffConfig{
				InitialDelay: 2,
				MaxDelay:     60,
				StableAfter:  30,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "galactic-unicorn",
			},
			QoS:              0,
			BaseTopic:        "galactic_unicorn",
			DiscoveryPrefix:  "homeassistant",
			KeepAlive:        5,
			KeepAliveTimeout: 15,
			ConnectTimeout:   10,
			Reconnect: BackoffConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				StableAfter:  30,
			},
		},
		NTP: NTPConfig{
			Server:        "pool.ntp.org",
			Interval:      3600,
			RetryInterval: 10,
			Timeout:       5,
			MaxSlew:       30000,
		},
		Display: DisplayConfig{
			Width:              53,
			Height:             11,
			Driver:             "terminal",
			FrameInterval:      50,
			Brightness:         128,
			MinMessageDuration: 3000,
			MessageTTL:         10,
			ScrollSpeed:        12,
			ClockStyle:         "color",
		},
		Queue: QueueConfig{
			Capacity:   8,
			MaxTextLen: 128,
		},
		Buttons: ButtonsConfig{
			Source: "none",
			Chip:   "gpiochip0",
			Lines: ButtonLines{
				A:              0,
				B:              1,
				C:              3,
				D:              6,
				Sleep:          27,
				BrightnessUp:   21,
				BrightnessDown: 26,
			},
			PollInterval:    10,
			DebounceSamples: 3,
			LongPress:       500,
			DoublePress:     250,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Supervisor: SupervisorConfig{
			RestartDelay: 2,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: UNICORN_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("UNICORN_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}

	if v := os.Getenv("UNICORN_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("UNICORN_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("UNICORN_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("UNICORN_NTP_SERVER"); v != "" {
		cfg.NTP.Server = v
	}

	if v := os.Getenv("UNICORN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}
	if _, err := time.LoadLocation(c.Device.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("device.timezone %q is not a known zone", c.Device.Timezone))
	}

	errs = append(errs, validateBackoff("wifi.backoff", c.WiFi.Backoff)...)
	errs = append(errs, validateBackoff("mqtt.reconnect", c.MQTT.Reconnect)...)

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.BaseTopic == "" || strings.ContainsAny(c.MQTT.BaseTopic, "+#") {
		errs = append(errs, "mqtt.base_topic must be non-empty and contain no wildcards")
	}
	if c.MQTT.DiscoveryPrefix == "" || strings.ContainsAny(c.MQTT.DiscoveryPrefix, "+#") {
		errs = append(errs, "mqtt.discovery_prefix must be non-empty and contain no wildcards")
	}
	if c.MQTT.KeepAlive < 1 {
		errs = append(errs, "mqtt.keep_alive must be at least 1 second")
	}
	if c.MQTT.KeepAliveTimeout <= c.MQTT.KeepAlive {
		errs = append(errs, "mqtt.keep_alive_timeout must exceed mqtt.keep_alive")
	}

	if c.NTP.Server == "" {
		errs = append(errs, "ntp.server is required")
	}
	if c.NTP.Interval < 1 || c.NTP.RetryInterval < 1 {
		errs = append(errs, "ntp.interval and ntp.retry_interval must be positive")
	}
	if c.NTP.MaxSlew < 1 {
		errs = append(errs, "ntp.max_slew must be positive")
	}

	if c.Display.Width < 1 || c.Display.Height < 1 {
		errs = append(errs, "display.width and display.height must be positive")
	}
	if c.Display.FrameInterval < 1 {
		errs = append(errs, "display.frame_interval must be positive")
	}
	if c.Display.Brightness < 0 || c.Display.Brightness > 255 {
		errs = append(errs, "display.brightness must be between 0 and 255")
	}
	switch c.Display.Driver {
	case "terminal", "preview", "none":
	default:
		errs = append(errs, fmt.Sprintf("display.driver %q must be terminal, preview, or none", c.Display.Driver))
	}

	if c.Queue.Capacity < 1 {
		errs = append(errs, "queue.capacity must be at least 1")
	}
	if c.Queue.MaxTextLen < 1 {
		errs = append(errs, "queue.max_text_len must be at least 1")
	}

	switch c.Buttons.Source {
	case "gpio", "keyboard", "none":
	default:
		errs = append(errs, fmt.Sprintf("buttons.source %q must be gpio, keyboard, or none", c.Buttons.Source))
	}
	if c.Buttons.DebounceSamples < 1 {
		errs = append(errs, "buttons.debounce_samples must be at least 1")
	}
	if c.Buttons.LongPress < 1 || c.Buttons.DoublePress < 1 {
		errs = append(errs, "buttons.long_press and buttons.double_press must be at least 1 ms")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.Display.Driver == "preview" && !c.API.Enabled {
		errs = append(errs, "display.driver preview requires api.enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validateBackoff(name string, b BackoffConfig) []string {
	var errs []string
	if b.InitialDelay < 1 {
		errs = append(errs, name+".initial_delay must be at least 1 second")
	}
	if b.MaxDelay < b.InitialDelay {
		errs = append(errs, name+".max_delay must not be below initial_delay")
	}
	return errs
}

// Seconds converts a config value in seconds to a Duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Millis converts a config value in milliseconds to a Duration.
func Millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// Location returns the configured display time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Device.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
