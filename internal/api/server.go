package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jjbrunton/garminconnect-webapi/internal/activity"
	"github.com/jjbrunton/garminconnect-webapi/internal/garmin"
	"github.com/jjbrunton/garminconnect-webapi/internal/infrastructure/config"
	"github.com/jjbrunton/garminconnect-webapi/internal/infrastructure/database"
	"github.com/jjbrunton/garminconnect-webapi/internal/infrastructure/influxdb"
	"github.com/jjbrunton/garminconnect-webapi/internal/infrastructure/logging"
	"github.com/jjbrunton/garminconnect-webapi/internal/infrastructure/mqtt"
	"github.com/jjbrunton/garminconnect-webapi/internal/tokenstore"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SyncController is the slice of the background syncer the API needs.
type SyncController interface {
	TriggerSync(reason string) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.ServerConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Logger     *logging.Logger
	Garmin     *garmin.Client
	TokenStore *tokenstore.Store
	Repo       activity.Repository
	DB         *database.DB       // optional: component health only
	MQTT       *mqtt.Client       // optional
	Influx     *influxdb.Client   // optional
	Syncer     SyncController     // optional: /sync returns 503 without it
	Version    string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg     config.ServerConfig
	wsCfg   config.WebSocketConfig
	secCfg  config.SecurityConfig
	logger  *logging.Logger
	garmin  *garmin.Client
	tokens  *tokenstore.Store
	repo    activity.Repository
	db      *database.DB
	mqtt    *mqtt.Client
	influx  *influxdb.Client
	syncer  SyncController
	version string
	server  *http.Server
	hub     *Hub
	cancel  context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, Garmin client, cache)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Garmin == nil {
		return nil, fmt.Errorf("garmin client is required")
	}
	if deps.TokenStore == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if deps.Repo == nil {
		return nil, fmt.Errorf("activity repository is required")
	}
	// MQTT, InfluxDB and the syncer are optional integrations.

	return &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		secCfg:  deps.Security,
		logger:  deps.Logger,
		garmin:  deps.Garmin,
		tokens:  deps.TokenStore,
		repo:    deps.Repo,
		db:      deps.DB,
		mqtt:    deps.MQTT,
		influx:  deps.Influx,
		syncer:  deps.Syncer,
		version: deps.Version,
	}, nil
}

// Hub returns the WebSocket hub. Nil until Start() has been called; wire
// event producers after starting the server.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the HTTP
// listener in a background goroutine. The server is stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Stop the WebSocket hub.
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
