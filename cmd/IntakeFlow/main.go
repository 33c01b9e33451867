package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/NovaFertility/IntakeFlow/internal/api"
	"github.com/NovaFertility/IntakeFlow/internal/flow"
	"github.com/NovaFertility/IntakeFlow/internal/notify"
	"github.com/NovaFertility/IntakeFlow/internal/store"
	"github.com/NovaFertility/IntakeFlow/internal/submission"
	"github.com/NovaFertility/IntakeFlow/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for IntakeFlow state data
	DefaultStateDir = "/var/lib/intakeflow"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "intakeflow.db"
	// DefaultAPIAddr is the default API listen address
	DefaultAPIAddr = ":8080"
	// DefaultTypingDelayMS paces bot replies in milliseconds
	DefaultTypingDelayMS = 900
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	deps := flow.Dependencies{
		Snapshots:   st,
		Intakes:     st,
		Submitter:   buildSubmitter(flags),
		Notifier:    buildNotifier(flags),
		TypingDelay: time.Duration(*flags.typingDelayMS) * time.Millisecond,
	}
	mgr := flow.NewManager(deps)

	server := api.NewServer(*flags.apiAddr, mgr, st)

	// Shut down cleanly on SIGINT/SIGTERM.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("Shutdown signal received", "signal", sig)
		if err := server.Shutdown(context.Background()); err != nil {
			slog.Error("Graceful shutdown failed", "error", err)
		}
	}()

	slog.Info("Bootstrapping IntakeFlow with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr)
	if err := server.Run(); err != nil {
		slog.Error("IntakeFlow failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("IntakeFlow exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL     string
	StateDir        string
	APIAddr         string
	RegistrationURL string
	RegistrationKey string
	TypingDelayMS   int
	NotifyEnabled   bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir        *string
	dbDSN           *string
	apiAddr         *string
	registrationURL *string
	registrationKey *string
	typingDelayMS   *int
	notifyEnabled   *bool
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StateDir:        os.Getenv("INTAKEFLOW_STATE_DIR"),
		APIAddr:         util.GetEnv("API_ADDR", DefaultAPIAddr),
		RegistrationURL: os.Getenv("REGISTRATION_URL"),
		RegistrationKey: os.Getenv("REGISTRATION_API_KEY"),
		TypingDelayMS:   util.ParseDurationEnvMS("TYPING_DELAY_MS", DefaultTypingDelayMS),
		NotifyEnabled:   util.ParseBoolEnv("STAFF_ALERTS_ENABLED", false),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No INTAKEFLOW_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"INTAKEFLOW_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"REGISTRATION_URL_SET", config.RegistrationURL != "",
		"TYPING_DELAY_MS", config.TypingDelayMS,
		"STAFF_ALERTS_ENABLED", config.NotifyEnabled)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:        flag.String("state-dir", config.StateDir, "state directory for IntakeFlow data (overrides $INTAKEFLOW_STATE_DIR)"),
		dbDSN:           flag.String("db-dsn", config.DatabaseURL, "database DSN (overrides $DATABASE_URL)"),
		apiAddr:         flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		registrationURL: flag.String("registration-url", config.RegistrationURL, "clinic registration endpoint URL (overrides $REGISTRATION_URL)"),
		registrationKey: flag.String("registration-api-key", config.RegistrationKey, "registration endpoint API key (overrides $REGISTRATION_API_KEY)"),
		typingDelayMS:   flag.Int("typing-delay-ms", config.TypingDelayMS, "bot typing delay in milliseconds (overrides $TYPING_DELAY_MS)"),
		notifyEnabled:   flag.Bool("staff-alerts", config.NotifyEnabled, "send escalation alerts via Twilio (overrides $STAFF_ALERTS_ENABLED)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"registrationURL_set", *flags.registrationURL != "",
		"typingDelayMS", *flags.typingDelayMS,
		"staffAlerts", *flags.notifyEnabled)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// buildStore selects the persistence backend from the DSN.
func buildStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// buildSubmitter wires the registration endpoint adapter, or nil when no
// endpoint is configured.
func buildSubmitter(flags Flags) flow.Submitter {
	if *flags.registrationURL == "" {
		slog.Warn("No registration endpoint configured, completed intakes will not be submitted")
		return nil
	}
	submitter, err := submission.NewHTTPSubmitter(
		submission.WithEndpointURL(*flags.registrationURL),
		submission.WithAPIKey(*flags.registrationKey),
	)
	if err != nil {
		slog.Error("Failed to initialize submitter, continuing without submission", "error", err)
		return nil
	}
	return submitter
}

// buildNotifier wires the Twilio staff notifier, falling back to the no-op
// notifier when alerts are disabled or credentials are missing.
func buildNotifier(flags Flags) flow.Notifier {
	if !*flags.notifyEnabled {
		return notify.NoopNotifier{}
	}
	notifier, err := notify.NewTwilioNotifier()
	if err != nil {
		slog.Error("Failed to initialize Twilio notifier, falling back to no-op", "error", err)
		return notify.NoopNotifier{}
	}
	return notifier
}
