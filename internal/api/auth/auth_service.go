package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/go-account-service/app/observability/metrics"
	"github.com/FACorreiaa/go-account-service/internal/types"
)

const (
	MaxUsernameLength = 50
	MaxEmailLength    = 100
)

// dummyPassword is hashed once so that logins for unknown users still pay for
// one bcrypt comparison.
const dummyPassword = "account-service-timing-guard"

var _ AuthService = (*AuthServiceImpl)(nil)

// AuthService defines the business logic contract for accounts.
type AuthService interface {
	Register(ctx context.Context, username, password, email string) (int64, error)
	Login(ctx context.Context, username, password string) (*types.LoginResult, error)
	GetUserProfile(ctx context.Context, userID int64) (*types.UserProfile, error)
}

type AuthServiceImpl struct {
	logger  *slog.Logger
	repo    AuthRepo
	hasher  PasswordHasher
	tokens  TokenManager
	metrics *metrics.AppMetrics

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(repo AuthRepo, hasher PasswordHasher, tokens TokenManager, m *metrics.AppMetrics, logger *slog.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{
		logger:  logger,
		repo:    repo,
		hasher:  hasher,
		tokens:  tokens,
		metrics: m,
	}
}

// Register validates the input, checks storage is reachable, hashes the
// password and stores the account.
func (s *AuthServiceImpl) Register(ctx context.Context, username, password, email string) (id int64, err error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Register")
	defer span.End()

	l := s.logger.With(slog.String("method", "Register"), slog.String("username", username))
	started := time.Now()
	defer func() { s.metrics.RecordAuth(ctx, "register", outcome(err), started) }()

	if err = validateRegistration(username, password, email); err != nil {
		l.DebugContext(ctx, "Registration rejected", slog.Any("error", err))
		span.SetStatus(codes.Error, "invalid input")
		return 0, err
	}

	if err = s.repo.Ping(ctx); err != nil {
		l.ErrorContext(ctx, "Storage unreachable before registration", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage unavailable")
		if !errors.Is(err, types.ErrUnavailable) {
			err = fmt.Errorf("%w: %v", types.ErrUnavailable, err)
		}
		return 0, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		l.ErrorContext(ctx, "Failed to hash password", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "hash failed")
		return 0, err
	}

	id, err = s.repo.CreateUser(ctx, username, email, hash)
	if err != nil {
		if errors.Is(err, types.ErrConflict) {
			l.WarnContext(ctx, "Username or email already registered")
		} else {
			l.ErrorContext(ctx, "Failed to create user", slog.Any("error", err))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return 0, fmt.Errorf("error registering user: %w", err)
	}

	span.SetAttributes(attribute.String("user.id", strconv.FormatInt(id, 10)))
	span.SetStatus(codes.Ok, "User registered")
	l.InfoContext(ctx, "User registered", slog.Int64("userID", id))
	return id, nil
}

// Login verifies the credentials and issues an access token. Unknown users and
// wrong passwords both return types.ErrUnauthenticated.
func (s *AuthServiceImpl) Login(ctx context.Context, username, password string) (result *types.LoginResult, err error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Login")
	defer span.End()

	l := s.logger.With(slog.String("method", "Login"), slog.String("username", username))
	started := time.Now()
	defer func() { s.metrics.RecordAuth(ctx, "login", outcome(err), started) }()

	if username == "" || password == "" {
		span.SetStatus(codes.Error, "invalid input")
		return nil, fmt.Errorf("%w: username and password are required", types.ErrValidation)
	}

	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			_ = s.hasher.Verify(s.timingHash(), password)
			l.WarnContext(ctx, "Login failed: unknown user")
			span.SetStatus(codes.Error, "invalid credentials")
			return nil, types.ErrUnauthenticated
		}
		l.ErrorContext(ctx, "Failed to look up user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return nil, fmt.Errorf("error looking up user: %w", err)
	}

	if err = s.hasher.Verify(user.Password, password); err != nil {
		if errors.Is(err, types.ErrUnauthenticated) {
			l.WarnContext(ctx, "Login failed: wrong password", slog.Int64("userID", user.ID))
			span.SetStatus(codes.Error, "invalid credentials")
			return nil, types.ErrUnauthenticated
		}
		l.ErrorContext(ctx, "Failed to verify password", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "verify failed")
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		l.ErrorContext(ctx, "Failed to issue token", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "token failed")
		return nil, err
	}

	span.SetAttributes(attribute.String("user.id", strconv.FormatInt(user.ID, 10)))
	span.SetStatus(codes.Ok, "Login successful")
	l.InfoContext(ctx, "User logged in", slog.Int64("userID", user.ID))
	return &types.LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	}, nil
}

// GetUserProfile returns the public view of the account with userID.
func (s *AuthServiceImpl) GetUserProfile(ctx context.Context, userID int64) (*types.UserProfile, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "GetUserProfile")
	defer span.End()

	l := s.logger.With(slog.String("method", "GetUserProfile"), slog.Int64("userID", userID))
	l.DebugContext(ctx, "Fetching user profile")

	profile, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			l.ErrorContext(ctx, "Failed to fetch user profile", slog.Any("error", err))
			span.RecordError(err)
		}
		span.SetStatus(codes.Error, "fetch failed")
		return nil, fmt.Errorf("error fetching user profile: %w", err)
	}

	span.SetStatus(codes.Ok, "Profile fetched")
	return profile, nil
}

func (s *AuthServiceImpl) timingHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			s.logger.Error("Failed to prepare timing hash", slog.Any("error", err))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func validateRegistration(username, password, email string) error {
	switch {
	case username == "" || password == "" || email == "":
		return fmt.Errorf("%w: username, password and email are required", types.ErrValidation)
	case utf8.RuneCountInString(username) > MaxUsernameLength:
		return fmt.Errorf("%w: username must not exceed %d characters", types.ErrValidation, MaxUsernameLength)
	case utf8.RuneCountInString(email) > MaxEmailLength:
		return fmt.Errorf("%w: email must not exceed %d characters", types.ErrValidation, MaxEmailLength)
	case len(password) > MaxPasswordBytes:
		return fmt.Errorf("%w: password must not exceed %d bytes", types.ErrValidation, MaxPasswordBytes)
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, types.ErrValidation):
		return "invalid"
	case errors.Is(err, types.ErrConflict):
		return "conflict"
	case errors.Is(err, types.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, types.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
