package container

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	database "github.com/FACorreiaa/go-account-service/app/db"
	appMiddleware "github.com/FACorreiaa/go-account-service/app/middleware"
	"github.com/FACorreiaa/go-account-service/app/observability/metrics"
	"github.com/FACorreiaa/go-account-service/config"
	"github.com/FACorreiaa/go-account-service/internal/api/auth"
	"github.com/FACorreiaa/go-account-service/internal/api/health"
	"github.com/FACorreiaa/go-account-service/internal/router"
)

// Container holds all application dependencies
type Container struct {
	Config        *config.Config
	Logger        *slog.Logger
	DBConfig      *database.DatabaseConfig
	Pool          *pgxpool.Pool
	DB            *sql.DB
	Repo          auth.AuthRepo
	Tokens        auth.TokenManager
	AuthHandler   *auth.HandlerImpl
	HealthHandler *health.HandlerImpl
}

// NewContainer opens the configured database and wires repositories, services and handlers.
func NewContainer(cfg *config.Config, m *metrics.AppMetrics, logger *slog.Logger) (*Container, error) {
	dbConfig, err := database.NewDatabaseConfig(cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		return nil, err
	}

	var (
		pool *pgxpool.Pool
		db   *sql.DB
		repo auth.AuthRepo
	)
	switch dbConfig.Driver {
	case config.DriverPostgres:
		pool, err = database.Init(dbConfig.ConnectionURL, cfg, logger)
		if err != nil {
			return nil, err
		}
		repo = auth.NewPostgresAuthRepo(pool, m, logger)
	case config.DriverMySQL:
		db, err = database.OpenMySQL(dbConfig.ConnectionURL, cfg, logger)
		if err != nil {
			return nil, err
		}
		repo = auth.NewMySQLAuthRepo(db, m, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dbConfig.Driver)
	}

	c := NewWithRepo(cfg, repo, m, logger)
	c.DBConfig = dbConfig
	c.Pool = pool
	c.DB = db
	return c, nil
}

// NewWithRepo wires services and handlers on top of an existing repository.
func NewWithRepo(cfg *config.Config, repo auth.AuthRepo, m *metrics.AppMetrics, logger *slog.Logger) *Container {
	hasher := auth.NewBcryptHasher(cfg.Password.BcryptCost)
	tokens := auth.NewJWTManager(cfg.JWT)

	authService := auth.NewAuthService(repo, hasher, tokens, m, logger)

	return &Container{
		Config:        cfg,
		Logger:        logger,
		Repo:          repo,
		Tokens:        tokens,
		AuthHandler:   auth.NewAuthHandlerImpl(authService, logger),
		HealthHandler: health.NewHandlerImpl(repo, cfg.Database.HealthTimeout, logger),
	}
}

// Router returns the HTTP handler for the API.
func (c *Container) Router() http.Handler {
	var rateLimit func(http.Handler) http.Handler
	if c.Config.RateLimit.Enabled {
		rateLimit = appMiddleware.RateLimit(c.Config.RateLimit.Requests, c.Config.RateLimit.Window, c.Logger)
	}

	return router.SetupRouter(&router.Config{
		AuthHandler:            c.AuthHandler,
		HealthHandler:          c.HealthHandler,
		AuthenticateMiddleware: auth.Authenticate(c.Logger, c.Tokens),
		RateLimitMiddleware:    rateLimit,
		AllowedOrigins:         c.Config.CORS.AllowedOrigins,
		RequestTimeout:         c.Config.Server.RequestTimeout,
		EnableDocs:             c.Config.Server.EnableDocs,
		Logger:                 c.Logger,
	})
}

// Close releases all resources held by the container
func (c *Container) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.Logger.Warn("Error closing database", slog.Any("error", err))
		}
	}
}

// WaitForDB waits for the database to be ready
func (c *Container) WaitForDB(ctx context.Context) error {
	return database.WaitForDB(ctx, c.Repo, c.Config.Database.ConnectRetries, c.Logger)
}

// RunMigrations runs database migrations
func (c *Container) RunMigrations() error {
	if c.DBConfig == nil {
		return fmt.Errorf("no database configured")
	}
	return database.RunMigrations(c.DBConfig.Driver, c.DBConfig.MigrationURL, c.Logger)
}
