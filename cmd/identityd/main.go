// Identity Core - Cross-Device Login Service
//
// This is the main entry point for the Identity Core daemon. Identity
// Core is a self-hosted identity service providing:
//   - Credential and token login with refresh token rotation
//   - Cross-device passkey approval over WebSocket
//   - Account, organisation, and application directory management
//   - Optional MQTT event relay and InfluxDB telemetry
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/identity-core/migrations"

	"github.com/nerrad567/identity-core/internal/api"
	"github.com/nerrad567/identity-core/internal/audit"
	"github.com/nerrad567/identity-core/internal/auth"
	"github.com/nerrad567/identity-core/internal/identity"
	"github.com/nerrad567/identity-core/internal/infrastructure/config"
	"github.com/nerrad567/identity-core/internal/infrastructure/database"
	"github.com/nerrad567/identity-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/identity-core/internal/infrastructure/logging"
	"github.com/nerrad567/identity-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/identity-core/internal/passkey"
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

// tokenSweepInterval is how often expired refresh tokens are purged.
const tokenSweepInterval = time.Hour

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
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
	log.Info("starting Identity Core",
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

	// Directory repositories
	accounts := identity.NewAccountRepository(db.DB)
	orgs := identity.NewOrganizationRepository(db.DB)
	apps := identity.NewApplicationRepository(db.DB)
	tokens := auth.NewTokenRepository(db.DB)
	logins := audit.NewSQLiteRepository(db.DB)

	// Seed the initial admin account on first boot. The generated
	// password is logged once and must be changed immediately.
	if _, seedErr := auth.SeedAdmin(ctx, accounts, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin account: %w", seedErr)
	}

	// Connect to MQTT broker (optional event relay)
	var eventRelay *mqtt.Relay
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		eventRelay = mqtt.NewRelay(mqttClient, byte(cfg.MQTT.QoS))
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional telemetry sink)
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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Authentication service. Login events fan out to every enabled sink.
	var loginSinks []auth.LoginRelay
	if eventRelay != nil {
		loginSinks = append(loginSinks, eventRelay)
	}
	if influxClient != nil {
		loginSinks = append(loginSinks, influxClient)
	}

	authSvc := auth.NewService(auth.ServiceConfig{
		Accounts:        accounts,
		Orgs:            orgs,
		Apps:            apps,
		Tokens:          tokens,
		Logins:          logins,
		Relay:           loginRelays(loginSinks),
		Logger:          log,
		JWTSecret:       cfg.Security.JWT.Secret,
		AccessTokenTTL:  cfg.Security.JWT.AccessTokenTTL,
		RefreshTokenTTL: cfg.Security.JWT.RefreshTokenTTL,
	})
	gate := auth.NewGate(accounts, orgs, apps, cfg.Security.JWT.Secret, log)

	// Passkey handshake machinery
	registry := passkey.NewRegistry(cfg.AttemptTTL(), log)
	go registry.RunReaper(ctx, cfg.ReaperInterval(), cfg.ReaperGrace())

	coordinatorCfg := passkey.CoordinatorConfig{
		Registry: registry,
		Broker:   passkey.NewTopicBroker(),
		Gate:     gate,
		Apps:     apps,
		Logger:   log,
	}
	if eventRelay != nil {
		coordinatorCfg.Relay = eventRelay
	}
	if influxClient != nil {
		coordinatorCfg.Metrics = influxClient
	}
	coordinator := passkey.NewCoordinator(coordinatorCfg)
	log.Info("passkey coordinator initialised",
		"attempt_ttl_minutes", cfg.Passkey.AttemptTTL,
	)

	// Periodic refresh token cleanup
	go sweepExpiredTokens(ctx, tokens, log)

	// Start the API server
	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		Auth:        authSvc,
		Gate:        gate,
		Coordinator: coordinator,
		Accounts:    accounts,
		Orgs:        orgs,
		Apps:        apps,
		Tokens:      tokens,
		Logins:      logins,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"tls", cfg.API.TLS.Enabled,
	)

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (drains in-flight requests)
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("Identity Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses IDENTITY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("IDENTITY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// sweepExpiredTokens periodically purges expired refresh tokens so the
// table does not grow unbounded.
func sweepExpiredTokens(ctx context.Context, tokens auth.TokenRepository, log *logging.Logger) {
	ticker := time.NewTicker(tokenSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := tokens.DeleteExpired(ctx)
			if err != nil {
				log.Error("purging expired refresh tokens", "error", err)
				continue
			}
			if deleted > 0 {
				log.Debug("purged expired refresh tokens", "deleted", deleted)
			}
		}
	}
}

// multiLoginRelay fans a login event out to several sinks (MQTT relay,
// InfluxDB). Each sink is already non-blocking per the LoginRelay
// contract.
type multiLoginRelay []auth.LoginRelay

// LoginRecorded implements auth.LoginRelay.
func (m multiLoginRelay) LoginRecorded(username, loginType string, succeeded bool) {
	for _, relay := range m {
		relay.LoginRecorded(username, loginType, succeeded)
	}
}

// loginRelays wraps sinks in a fan-out, returning nil (no relay) when
// no sink is enabled so the auth service skips relay calls entirely.
func loginRelays(sinks []auth.LoginRelay) auth.LoginRelay {
	switch len(sinks) {
	case 0:
		return nil
	case 1:
		return sinks[0]
	default:
		return multiLoginRelay(sinks)
	}
}
