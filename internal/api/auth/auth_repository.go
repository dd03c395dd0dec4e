package auth

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-account-service/app/observability/metrics"
	"github.com/FACorreiaa/go-account-service/internal/types"
)

const pgUniqueViolation = "23505"

var _ AuthRepo = (*PostgresAuthRepo)(nil)

// AuthRepo is the account storage. Implementations translate driver errors
// into types.ErrConflict, types.ErrNotFound and types.ErrUnavailable.
type AuthRepo interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (*types.UserAuth, error)
	GetUserByID(ctx context.Context, id int64) (*types.UserProfile, error)
	Ping(ctx context.Context) error
}

// DBPool is the subset of *pgxpool.Pool the repository needs.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

type PostgresAuthRepo struct {
	logger  *slog.Logger
	pgpool  DBPool
	metrics *metrics.AppMetrics
}

func NewPostgresAuthRepo(pgpool DBPool, m *metrics.AppMetrics, logger *slog.Logger) *PostgresAuthRepo {
	return &PostgresAuthRepo{
		logger:  logger,
		pgpool:  pgpool,
		metrics: m,
	}
}

func (r *PostgresAuthRepo) CreateUser(ctx context.Context, username, email, passwordHash string) (int64, error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "CreateUser", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "CreateUser"), slog.String("username", username))
	started := time.Now()

	var id int64
	err := r.pgpool.QueryRow(ctx,
		"INSERT INTO users (username, email, password) VALUES ($1, $2, $3) RETURNING id",
		username, email, passwordHash).Scan(&id)
	r.metrics.RecordDBQuery(ctx, "create_user", started, err)
	if err != nil {
		err = classifyPostgresError(err)
		recordSpanError(span, err)
		l.ErrorContext(ctx, "Failed to insert user", slog.Any("error", err))
		return 0, fmt.Errorf("create user: %w", err)
	}

	span.SetAttributes(attribute.String("db.user.id", strconv.FormatInt(id, 10)))
	span.SetStatus(codes.Ok, "User created")
	l.InfoContext(ctx, "User created", slog.Int64("userID", id))
	return id, nil
}

func (r *PostgresAuthRepo) GetUserByUsername(ctx context.Context, username string) (*types.UserAuth, error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "GetUserByUsername", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "GetUserByUsername"), slog.String("username", username))
	started := time.Now()

	var user types.UserAuth
	err := r.pgpool.QueryRow(ctx,
		"SELECT id, username, email, password, created_at FROM users WHERE username = $1",
		username).Scan(&user.ID, &user.Username, &user.Email, &user.Password, &user.CreatedAt)
	r.metrics.RecordDBQuery(ctx, "get_user_by_username", started, ignoreNoRows(err))
	if err != nil {
		err = classifyPostgresError(err)
		recordSpanError(span, err)
		if errors.Is(err, types.ErrNotFound) {
			l.DebugContext(ctx, "User not found")
		} else {
			l.ErrorContext(ctx, "Failed to fetch user", slog.Any("error", err))
		}
		return nil, fmt.Errorf("get user by username: %w", err)
	}

	span.SetStatus(codes.Ok, "User found")
	return &user, nil
}

func (r *PostgresAuthRepo) GetUserByID(ctx context.Context, id int64) (*types.UserProfile, error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "GetUserByID", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "users"),
		attribute.String("db.user.id", strconv.FormatInt(id, 10)),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "GetUserByID"), slog.Int64("userID", id))
	started := time.Now()

	var profile types.UserProfile
	err := r.pgpool.QueryRow(ctx,
		"SELECT id, username, email, created_at FROM users WHERE id = $1",
		id).Scan(&profile.ID, &profile.Username, &profile.Email, &profile.CreatedAt)
	r.metrics.RecordDBQuery(ctx, "get_user_by_id", started, ignoreNoRows(err))
	if err != nil {
		err = classifyPostgresError(err)
		recordSpanError(span, err)
		if errors.Is(err, types.ErrNotFound) {
			l.DebugContext(ctx, "User not found")
		} else {
			l.ErrorContext(ctx, "Failed to fetch user profile", slog.Any("error", err))
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}

	span.SetStatus(codes.Ok, "User found")
	return &profile, nil
}

func (r *PostgresAuthRepo) Ping(ctx context.Context) error {
	if err := r.pgpool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", types.ErrUnavailable, err)
	}
	return nil
}

func classifyPostgresError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return types.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", types.ErrConflict, pgErr.ConstraintName)
	}
	if isUnavailable(err) {
		return fmt.Errorf("%w: %v", types.ErrUnavailable, err)
	}
	return err
}

// isUnavailable reports errors that mean the database could not be reached,
// as opposed to a query the database rejected.
func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// ignoreNoRows keeps lookups of missing accounts out of the error counter.
func ignoreNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}

func recordSpanError(span trace.Span, err error) {
	if errors.Is(err, types.ErrNotFound) {
		span.SetStatus(codes.Error, "not found")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
