package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-account-service/app/observability/metrics"
	"github.com/FACorreiaa/go-account-service/internal/types"
)

const mysqlDuplicateEntry = 1062

var _ AuthRepo = (*MySQLAuthRepo)(nil)

type MySQLAuthRepo struct {
	logger  *slog.Logger
	db      *sql.DB
	metrics *metrics.AppMetrics
}

func NewMySQLAuthRepo(db *sql.DB, m *metrics.AppMetrics, logger *slog.Logger) *MySQLAuthRepo {
	return &MySQLAuthRepo{
		logger:  logger,
		db:      db,
		metrics: m,
	}
}

func (r *MySQLAuthRepo) CreateUser(ctx context.Context, username, email, passwordHash string) (int64, error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "CreateUser", trace.WithAttributes(
		semconv.DBSystemMySQL,
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "CreateUser"), slog.String("username", username))
	started := time.Now()

	res, err := r.db.ExecContext(ctx,
		"INSERT INTO users (username, email, password) VALUES (?, ?, ?)",
		username, email, passwordHash)
	var id int64
	if err == nil {
		id, err = res.LastInsertId()
	}
	r.metrics.RecordDBQuery(ctx, "create_user", started, err)
	if err != nil {
		err = classifyMySQLError(err)
		recordSpanError(span, err)
		l.ErrorContext(ctx, "Failed to insert user", slog.Any("error", err))
		return 0, fmt.Errorf("create user: %w", err)
	}

	span.SetAttributes(attribute.String("db.user.id", strconv.FormatInt(id, 10)))
	span.SetStatus(codes.Ok, "User created")
	l.InfoContext(ctx, "User created", slog.Int64("userID", id))
	return id, nil
}

func (r *MySQLAuthRepo) GetUserByUsername(ctx context.Context, username string) (*types.UserAuth, error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "GetUserByUsername", trace.WithAttributes(
		semconv.DBSystemMySQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "GetUserByUsername"), slog.String("username", username))
	started := time.Now()

	var user types.UserAuth
	err := r.db.QueryRowContext(ctx,
		"SELECT id, username, email, password, created_at FROM users WHERE username = ?",
		username).Scan(&user.ID, &user.Username, &user.Email, &user.Password, &user.CreatedAt)
	r.metrics.RecordDBQuery(ctx, "get_user_by_username", started, ignoreNoRows(err))
	if err != nil {
		err = classifyMySQLError(err)
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

func (r *MySQLAuthRepo) GetUserByID(ctx context.Context, id int64) (*types.UserProfile, error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "GetUserByID", trace.WithAttributes(
		semconv.DBSystemMySQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "users"),
		attribute.String("db.user.id", strconv.FormatInt(id, 10)),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "GetUserByID"), slog.Int64("userID", id))
	started := time.Now()

	var profile types.UserProfile
	err := r.db.QueryRowContext(ctx,
		"SELECT id, username, email, created_at FROM users WHERE id = ?",
		id).Scan(&profile.ID, &profile.Username, &profile.Email, &profile.CreatedAt)
	r.metrics.RecordDBQuery(ctx, "get_user_by_id", started, ignoreNoRows(err))
	if err != nil {
		err = classifyMySQLError(err)
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

func (r *MySQLAuthRepo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", types.ErrUnavailable, err)
	}
	return nil
}

func classifyMySQLError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return types.ErrNotFound
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return fmt.Errorf("%w: %s", types.ErrConflict, myErr.Message)
	}
	if isUnavailable(err) {
		return fmt.Errorf("%w: %v", types.ErrUnavailable, err)
	}
	return err
}
