package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FACorreiaa/go-account-service/config"
)

//go:embed migrations
var migrationFS embed.FS

const defaultRetries = 5

// retryBackoff is multiplied by the attempt number between pings.
var retryBackoff = 200 * time.Millisecond

// Pinger is satisfied by *pgxpool.Pool and by PingFunc wrapping *sql.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type DatabaseConfig struct {
	Driver string
	// ConnectionURL is a postgresql:// URL or a go-sql-driver/mysql DSN.
	ConnectionURL string
	// MigrationURL is the same target in the form golang-migrate expects.
	MigrationURL string
}

// WaitForDB pings until the database answers or the attempts run out.
func WaitForDB(ctx context.Context, db Pinger, maxAttempts int, logger *slog.Logger) error {
	if maxAttempts <= 0 {
		maxAttempts = defaultRetries
	}

	var err error
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		if err = db.Ping(ctx); err == nil {
			logger.InfoContext(ctx, "Database connection successful")
			return nil
		}

		waitDuration := time.Duration(attempts) * retryBackoff
		logger.WarnContext(ctx, "Database ping failed, retrying...",
			slog.Int("attempt", attempts),
			slog.Int("max_attempts", maxAttempts),
			slog.Duration("wait_duration", waitDuration),
			slog.String("error", err.Error()),
		)
		if attempts == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for database: %w", ctx.Err())
		case <-time.After(waitDuration):
		}
	}
	logger.ErrorContext(ctx, "Database connection failed after multiple retries")
	return fmt.Errorf("database not ready after %d attempts: %w", maxAttempts, err)
}

func newMigrate(driver, migrationURL string) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationFS, "migrations/"+driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source driver: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, migrationURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize migrate instance: %w", err)
	}
	return m, nil
}

func closeMigrate(m *migrate.Migrate, logger *slog.Logger) {
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		logger.Warn("Error closing migration source", slog.Any("error", srcErr))
	}
	if dbErr != nil {
		logger.Warn("Error closing migration database connection", slog.Any("error", dbErr))
	}
}

// RunMigrations applies every pending up migration for driver.
func RunMigrations(driver, migrationURL string, logger *slog.Logger) error {
	logger.Info("Running database migrations...", slog.String("driver", driver))

	m, err := newMigrate(driver, migrationURL)
	if err != nil {
		logger.Error("Failed to prepare migrations", slog.Any("error", err))
		return err
	}
	defer closeMigrate(m, logger)

	err = m.Up()
	noChange := errors.Is(err, migrate.ErrNoChange)
	if err != nil && !noChange {
		logger.Error("Failed to apply migrations", slog.Any("error", err))
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case err != nil:
		logger.Warn("Could not determine migration version", slog.Any("error", err))
	case dirty:
		logger.Error("DATABASE MIGRATION STATE IS DIRTY!", slog.Uint64("version", uint64(version)))
		return fmt.Errorf("database migration state is dirty at version %d", version)
	case noChange:
		logger.Info("No new migrations to apply.", slog.Uint64("current_version", uint64(version)))
	default:
		logger.Info("Database migrations applied successfully.", slog.Uint64("new_version", uint64(version)))
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(driver, migrationURL string, logger *slog.Logger) error {
	m, err := newMigrate(driver, migrationURL)
	if err != nil {
		return err
	}
	defer closeMigrate(m, logger)

	if err = m.Steps(-1); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	logger.Info("Rolled back one migration")
	return nil
}

// MigrationVersion returns the applied version; 0 when nothing ran yet.
func MigrationVersion(driver, migrationURL string, logger *slog.Logger) (uint, bool, error) {
	m, err := newMigrate(driver, migrationURL)
	if err != nil {
		return 0, false, err
	}
	defer closeMigrate(m, logger)

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read migration version: %w", err)
	}
	return version, dirty, nil
}

// NewDatabaseConfig builds the connection and migration targets for the configured driver.
func NewDatabaseConfig(cfg *config.Config, logger *slog.Logger) (*DatabaseConfig, error) {
	if cfg == nil || cfg.Database.Host == "" {
		errMsg := "database configuration is missing or invalid"
		logger.Error(errMsg)
		return nil, errors.New(errMsg)
	}
	db := cfg.Database

	switch db.Driver {
	case config.DriverPostgres:
		sslMode := db.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		query := url.Values{}
		query.Set("sslmode", sslMode)
		query.Set("timezone", "utc")

		connURL := url.URL{
			Scheme:   "postgresql",
			User:     url.UserPassword(db.Username, db.Password),
			Host:     net.JoinHostPort(db.Host, db.Port),
			Path:     db.Name,
			RawQuery: query.Encode(),
		}
		logger.Info("Database connection URL generated",
			slog.String("driver", db.Driver),
			slog.String("host", connURL.Host),
			slog.String("database", db.Name))
		return &DatabaseConfig{
			Driver:        db.Driver,
			ConnectionURL: connURL.String(),
			MigrationURL:  connURL.String(),
		}, nil

	case config.DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = db.Username
		mc.Passwd = db.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(db.Host, db.Port)
		mc.DBName = db.Name
		mc.ParseTime = true
		mc.Loc = time.UTC

		migrationCfg := mc.Clone()
		migrationCfg.MultiStatements = true

		logger.Info("Database connection URL generated",
			slog.String("driver", db.Driver),
			slog.String("host", mc.Addr),
			slog.String("database", db.Name))
		return &DatabaseConfig{
			Driver:        db.Driver,
			ConnectionURL: mc.FormatDSN(),
			MigrationURL:  "mysql://" + migrationCfg.FormatDSN(),
		}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", db.Driver)
	}
}

// Init initializes the pgxpool connection pool.
func Init(connectionURL string, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	logger.Info("Initializing database connection pool...")
	poolCfg, err := pgxpool.ParseConfig(connectionURL)
	if err != nil {
		logger.Error("Failed to parse database config", slog.Any("error", err))
		return nil, fmt.Errorf("failed parsing db config: %w", err)
	}
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		logger.Error("Failed to create database connection pool", slog.Any("error", err))
		return nil, fmt.Errorf("failed creating db pool: %w", err)
	}

	logger.Info("Database connection pool initialized")
	return pool, nil
}

// OpenMySQL opens a *sql.DB pool for a go-sql-driver/mysql DSN.
func OpenMySQL(dsn string, cfg *config.Config, logger *slog.Logger) (*sql.DB, error) {
	logger.Info("Initializing database connection pool...")
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		logger.Error("Failed to open mysql connection pool", slog.Any("error", err))
		return nil, fmt.Errorf("failed opening mysql pool: %w", err)
	}
	if n := int(cfg.Database.MaxConns); n > 0 {
		db.SetMaxOpenConns(n)
		db.SetMaxIdleConns(n)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	logger.Info("Database connection pool initialized")
	return db, nil
}
