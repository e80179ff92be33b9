// garminapi is a self-hosted HTTP wrapper around Garmin Connect.
//
// It logs in to Garmin's SSO (including MFA accounts), persists the session
// tokens under GARMINTOKENS, and exposes wellness summaries, activity lists
// and activity exports over a small JSON API. An optional background worker
// mirrors recent activities into SQLite and publishes events over MQTT,
// InfluxDB and WebSockets.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jjbrunton/garminconnect-webapi/migrations"

	"github.com/jjbrunton/garminconnect-webapi/internal/activity"
	"github.com/jjbrunton/garminconnect-webapi/internal/api"
	"github.com/jjbrunton/garminconnect-webapi/internal/garmin"
	"github.com/jjbrunton/garminconnect-webapi/internal/infrastructure/config"
	"github.com/jjbrunton/garminconnect-webapi/internal/infrastructure/database"
	"github.com/jjbrunton/garminconnect-webapi/internal/infrastructure/influxdb"
	"github.com/jjbrunton/garminconnect-webapi/internal/infrastructure/logging"
	"github.com/jjbrunton/garminconnect-webapi/internal/infrastructure/mqtt"
	"github.com/jjbrunton/garminconnect-webapi/internal/syncer"
	"github.com/jjbrunton/garminconnect-webapi/internal/tokenstore"
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
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting garminapi",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	repo := activity.NewSQLiteRepository(db.DB)

	// Garmin client and token store
	client, err := garmin.NewClient(garmin.Options{
		Domain:         cfg.Garmin.Domain,
		UserAgent:      cfg.Garmin.UserAgent,
		Timeout:        cfg.GetRequestTimeout(),
		ConsumerKey:    cfg.Garmin.OAuthConsumer.Key,
		ConsumerSecret: cfg.Garmin.OAuthConsumer.Secret,
		ReturnOnMFA:    true,
	})
	if err != nil {
		return fmt.Errorf("creating garmin client: %w", err)
	}

	tokens := tokenstore.New(cfg.Tokens.Path)
	log.Info("token store ready", "path", tokens.Dir())

	// Resume a persisted session if one exists. Failure here is normal on
	// first boot; the user logs in through the API.
	if resumeErr := client.LoginFromStore(ctx, tokens); resumeErr != nil {
		log.Info("no usable persisted session", "reason", resumeErr)
	} else {
		log.Info("garmin session resumed from token store")
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Background sync worker (optional)
	var syncWorker *syncer.Syncer
	if cfg.Sync.Enabled {
		syncWorker = syncer.New(cfg.Sync, client, repo, mqttClient, influxClient,
			log.With("component", "syncer"))
	} else {
		log.Info("background sync disabled")
	}

	// API server
	server, err := api.New(api.Deps{
		Config:     cfg.Server,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log.With("component", "api"),
		Garmin:     client,
		TokenStore: tokens,
		Repo:       repo,
		DB:         db,
		MQTT:       mqttClient,
		Influx:     influxClient,
		Syncer:     syncWorker,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// The hub exists once the server has started; route sync events to it.
	if syncWorker != nil {
		syncWorker.SetNotifier(server.Hub().Broadcast)
		syncWorker.Start(ctx)
		defer func() {
			log.Info("stopping sync worker")
			if closeErr := syncWorker.Close(); closeErr != nil {
				log.Error("error closing sync worker", "error", closeErr)
			}
		}()
		log.Info("sync worker started",
			"interval_minutes", cfg.Sync.Interval,
			"lookback", cfg.Sync.Lookback,
		)
	}

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. Sync worker
	// 2. API server
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if enabled)
	// 5. Database

	log.Info("garminapi stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GARMINAPI_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GARMINAPI_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// Garmin session health is a state, not a dependency: the service runs
	// logged out until someone calls /login.

	return nil
}
