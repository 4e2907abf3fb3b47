// Galactic Unicorn clock firmware.
//
// This is the main entry point. It boots every device component (link,
// time sync, messaging session, button input, display) under a supervisor
// and rebuilds all of them after an unrecoverable fault.
//
// Usage:
//
//	unicorn            run the firmware
//	unicorn watchdog   run the firmware as a child process and respawn it on crash
//
// The configuration file is read from UNICORN_CONFIG, or configs/config.yaml.
// Without a file the compiled-in defaults are used.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // the device image carries no zoneinfo

	"github.com/domneedham/galactic-unicorn-go/internal/api"
	"github.com/domneedham/galactic-unicorn-go/internal/backoff"
	"github.com/domneedham/galactic-unicorn-go/internal/buttons"
	"github.com/domneedham/galactic-unicorn-go/internal/connectivity"
	"github.com/domneedham/galactic-unicorn-go/internal/display"
	"github.com/domneedham/galactic-unicorn-go/internal/hass"
	"github.com/domneedham/galactic-unicorn-go/internal/infrastructure/config"
	"github.com/domneedham/galactic-unicorn-go/internal/infrastructure/logging"
	"github.com/domneedham/galactic-unicorn-go/internal/infrastructure/mqtt"
	"github.com/domneedham/galactic-unicorn-go/internal/process"
	"github.com/domneedham/galactic-unicorn-go/internal/queue"
	"github.com/domneedham/galactic-unicorn-go/internal/render"
	"github.com/domneedham/galactic-unicorn-go/internal/session"
	"github.com/domneedham/galactic-unicorn-go/internal/supervisor"
	"github.com/domneedham/galactic-unicorn-go/internal/timesync"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	if len(os.Args) > 1 && os.Args[1] == "watchdog" {
		err = runWatchdog(ctx, os.Args[2:])
	} else {
		err = run(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown, or the configuration error that stopped boot
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting galactic unicorn",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version, cfg.Device.ID)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	id, err := config.NewIdentity(cfg, version, render.EffectNames())
	if err != nil {
		return fmt.Errorf("building device identity: %w", err)
	}

	err = supervisor.Restart(ctx, config.Seconds(cfg.Supervisor.RestartDelay), 0, log, func(ctx context.Context) error {
		return boot(ctx, cfg, id, log)
	})
	log.Info("galactic unicorn stopped")
	return err
}

// boot builds every component from the immutable configuration and runs
// them until ctx is cancelled or one of them faults. Each call starts from
// scratch: a fresh queue, a Disconnected link, an Offline session.
func boot(ctx context.Context, cfg *config.Config, id config.DeviceIdentity, log *logging.Logger) error {
	clock := timesync.NewClock(config.Millis(cfg.NTP.MaxSlew), cfg.NTP.InitialSnap, cfg.Location())

	assoc := connectivity.NewInterfaceAssociator(cfg.WiFi.Interface, cfg.WiFi.ProbeAddress, config.Seconds(cfg.WiFi.PollInterval))
	link := connectivity.NewManager(assoc, connectivity.Config{
		Backoff:     backoff.FromConfig(cfg.WiFi.Backoff),
		JoinTimeout: config.Seconds(cfg.WiFi.JoinTimeout),
	})
	link.SetLogger(log.Component("connectivity"))

	syncer := timesync.NewSyncer(clock,
		timesync.NTPQuerier{Server: cfg.NTP.Server, Timeout: config.Seconds(cfg.NTP.Timeout)},
		link.State(),
		timesync.Config{
			Interval:      config.Seconds(cfg.NTP.Interval),
			RetryInterval: config.Seconds(cfg.NTP.RetryInterval),
			Timeout:       config.Seconds(cfg.NTP.Timeout),
		})
	syncer.SetLogger(log.Component("timesync"))

	q := queue.New(cfg.Queue.Capacity, cfg.Queue.MaxTextLen, config.Seconds(cfg.Display.MessageTTL))

	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(log.Component("api"))
	}
	accent, err := displayColor(cfg.Display.Color)
	if err != nil {
		return err
	}
	panel, err := buildPanel(cfg.Display.Driver, hub)
	if err != nil {
		return err
	}

	arbiter := display.NewArbiter(display.Config{
		FrameInterval:      config.Millis(cfg.Display.FrameInterval),
		MinMessageDuration: config.Millis(cfg.Display.MinMessageDuration),
		ScrollSpeed:        cfg.Display.ScrollSpeed,
		Brightness:         uint8(cfg.Display.Brightness),
		Color:              accent,
		ClockStyle:         render.ParseClockStyle(cfg.Display.ClockStyle),
		Effect:             render.EffectNone,
	}, panel, q, clock)
	arbiter.SetLogger(log.Component("display"))

	src, err := buildButtonSource(cfg.Buttons)
	if err != nil {
		panel.Close()
		return err
	}
	input := buttons.NewInput(src, cfg.Buttons.DebounceSamples, config.Millis(cfg.Buttons.PollInterval), arbiter.Buttons())
	input.SetPressTiming(config.Millis(cfg.Buttons.LongPress), config.Millis(cfg.Buttons.DoublePress))
	input.SetLogger(log.Component("buttons"))

	sessionLog := log.Component("session")
	will := mqtt.Will{
		Topic:   id.Topics.Availability,
		Online:  hass.PayloadOnline,
		Offline: hass.PayloadOffline,
	}
	sess, err := session.New(id, session.Config{
		QoS:              byte(cfg.MQTT.QoS),
		KeepAlive:        config.Seconds(cfg.MQTT.KeepAlive),
		KeepAliveTimeout: config.Seconds(cfg.MQTT.KeepAliveTimeout),
		Backoff:          backoff.FromConfig(cfg.MQTT.Reconnect),
	}, session.Deps{
		Dial:    session.MQTTDialer(cfg.MQTT, will, sessionLog),
		Link:    link.State(),
		Queue:   q,
		Display: arbiter,
		Clock:   clock,
		Resync:  syncer.Request,
	})
	if err != nil {
		src.Close()
		panel.Close()
		return fmt.Errorf("creating session: %w", err)
	}
	sess.SetLogger(sessionLog)

	sup := supervisor.New()
	sup.SetLogger(log.Component("supervisor"))
	sup.Add("connectivity", link.Run)
	sup.Add("timesync", syncer.Run)
	sup.Add("display", arbiter.Run)
	sup.Add("buttons", input.Run)
	sup.Add("session", sess.Run)

	if cfg.API.Enabled {
		srv, err := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log.Component("api"),
			Version:  version,
			DeviceID: id.DeviceID,
			Link:     link.State(),
			Clock:    clock,
			Session:  sess,
			Display:  arbiter,
			Queue:    q,
			Hub:      hub,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		sup.Add("api", srv.Run)
	}

	log.Info("device booted",
		"base_topic", id.BaseTopic,
		"display", cfg.Display.Driver,
		"buttons", cfg.Buttons.Source,
		"api", cfg.API.Enabled,
	)
	return sup.Run(ctx)
}

// buildPanel returns the frame sink for the configured display driver.
func buildPanel(driver string, hub *api.Hub) (display.Panel, error) {
	switch driver {
	case "terminal":
		term := display.NewTerminalPanel(os.Stdout)
		if hub != nil {
			return display.MultiPanel{term, hub}, nil
		}
		return term, nil
	case "preview":
		if hub == nil {
			return nil, fmt.Errorf("display driver preview requires the API server")
		}
		return hub, nil
	case "none":
		if hub != nil {
			// Browsers can still watch the panel.
			return hub, nil
		}
		return display.NullPanel{}, nil
	default:
		return nil, fmt.Errorf("unknown display driver %q", driver)
	}
}

// displayColor parses the configured accent colour. Empty keeps the default.
func displayColor(s string) (render.RGB, error) {
	if s == "" {
		return render.RGB{}, nil
	}
	c, err := render.ParseRGB(s)
	if err != nil {
		return render.RGB{}, fmt.Errorf("display.color: %w", err)
	}
	return c, nil
}

// buildButtonSource opens the configured button lines.
func buildButtonSource(cfg config.ButtonsConfig) (buttons.Source, error) {
	switch cfg.Source {
	case "gpio":
		src, err := buttons.NewGPIOSource(cfg.Chip, cfg.Lines)
		if err != nil {
			return nil, fmt.Errorf("opening button lines on %s: %w", cfg.Chip, err)
		}
		return src, nil
	case "keyboard":
		// Hold each key press long enough to pass the debouncer.
		hold := time.Duration(cfg.DebounceSamples+2) * config.Millis(cfg.PollInterval)
		src, err := buttons.NewKeyboardSource(hold)
		if err != nil {
			return nil, fmt.Errorf("opening keyboard buttons: %w", err)
		}
		return src, nil
	case "none":
		return buttons.NoSource{}, nil
	default:
		return nil, fmt.Errorf("unknown button source %q", cfg.Source)
	}
}

// runWatchdog runs this binary as a child process and respawns it when it
// exits abnormally. args are passed to the child.
func runWatchdog(ctx context.Context, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, version, cfg.Device.ID).Component("watchdog")

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating firmware binary: %w", err)
	}

	pcfg := process.DefaultConfig("unicorn", exe, args)
	pcfg.Output = os.Stdout
	pcfg.RestartDelay = config.Seconds(cfg.Supervisor.RestartDelay)
	pcfg.MaxRestartAttempts = cfg.Supervisor.MaxRestartAttempts
	if cfg.API.Enabled {
		pcfg.HealthCheckFunc = statusProbe(cfg.API)
	}

	m := process.NewManager(pcfg)
	m.SetLogger(log)
	log.Info("watchdog starting", "binary", exe)
	return m.Run(ctx)
}

// statusProbe checks that the firmware still answers on its status endpoint.
// It probes /status rather than /health: a device without a link is
// degraded, not hung.
func statusProbe(cfg config.APIConfig) func(ctx context.Context) error {
	url := fmt.Sprintf("http://%s:%d/api/v1/status", cfg.Host, cfg.Port)
	client := &http.Client{Timeout: 5 * time.Second}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status endpoint returned %d", resp.StatusCode)
		}
		return nil
	}
}

// getConfigPath returns the configuration file path and whether it was set
// explicitly through UNICORN_CONFIG.
func getConfigPath() (string, bool) {
	if path := os.Getenv("UNICORN_CONFIG"); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}

// loadConfig reads the configuration file. A missing default file falls back
// to the compiled-in defaults; a missing explicit file is an error.
func loadConfig() (*config.Config, error) {
	path, explicit := getConfigPath()
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
		if verr := cfg.Validate(); verr != nil {
			return nil, verr
		}
		return cfg, nil
	}
	return nil, err
}
