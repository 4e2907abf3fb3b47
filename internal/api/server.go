package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/domneedham/galactic-unicorn-go/internal/connectivity"
	"github.com/domneedham/galactic-unicorn-go/internal/display"
	"github.com/domneedham/galactic-unicorn-go/internal/infrastructure/config"
	"github.com/domneedham/galactic-unicorn-go/internal/infrastructure/logging"
	"github.com/domneedham/galactic-unicorn-go/internal/session"
	"github.com/domneedham/galactic-unicorn-go/internal/timesync"
	"github.com/domneedham/galactic-unicorn-go/internal/watch"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 5 * time.Second

// SessionView is the read side of the messaging session.
type SessionView interface {
	Info() *watch.Value[session.Info]
	Stats() session.Stats
}

// DisplayView reports what the panel is showing.
type DisplayView interface {
	Snapshot() display.State
}

// ClockView reports wall-clock time and its sync state.
type ClockView interface {
	Now() time.Time
	Status() timesync.Status
}

// QueueView reports message queue occupancy.
type QueueView interface {
	Len() int
	Capacity() int
}

// Deps holds the dependencies required by the API server.
// Session, Display, Queue and Hub may be nil.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Version  string
	DeviceID string
	Link     *watch.Value[connectivity.ConnectionState]
	Clock    ClockView
	Session  SessionView
	Display  DisplayView
	Queue    QueueView
	Hub      *Hub
	PanelDir string // serve the panel page from disk instead of the embedded copy
}

// Server is the local status HTTP server.
//
// It is created with New() and run with Run() or Start()/Close().
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	version  string
	deviceID string
	link     *watch.Value[connectivity.ConnectionState]
	clock    ClockView
	session  SessionView
	display  DisplayView
	queue    QueueView
	hub      *Hub
	panelDir string
	started  time.Time
	server   *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() or Run() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Link == nil {
		return nil, fmt.Errorf("link state is required")
	}
	if deps.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		version:  deps.Version,
		deviceID: deps.DeviceID,
		link:     deps.Link,
		clock:    deps.Clock,
		session:  deps.Session,
		display:  deps.Display,
		queue:    deps.Queue,
		hub:      deps.Hub,
		panelDir: deps.PanelDir,
		started:  time.Now(),
	}, nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
}

// Start binds the listener and serves in a background goroutine.
//
// Returns:
//   - net.Addr: The bound address (useful when Port is 0)
//   - error: If the listener cannot be bound (port in use, etc.)
func (s *Server) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return nil, fmt.Errorf("api: listen on %s: %w", s.Addr(), err)
	}

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return ln.Addr(), nil
}

// Run starts the server and blocks until ctx is cancelled, then shuts it down.
func (s *Server) Run(ctx context.Context) error {
	if _, err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Close()
}

// Close gracefully shuts down the API server and disconnects WebSocket clients.
//
// It waits up to gracefulShutdownTimeout for in-flight requests to complete.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.hub != nil {
		s.hub.Close() //nolint:errcheck // Hub.Close never fails

	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
