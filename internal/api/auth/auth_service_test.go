package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/FACorreiaa/go-account-service/internal/types"
)

// MockAuthRepo is a mock implementation of the AuthRepo interface
type MockAuthRepo struct {
	mock.Mock
}

func (m *MockAuthRepo) CreateUser(ctx context.Context, username, email, passwordHash string) (int64, error) {
	args := m.Called(ctx, username, email, passwordHash)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAuthRepo) GetUserByUsername(ctx context.Context, username string) (*types.UserAuth, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.UserAuth), args.Error(1)
}

func (m *MockAuthRepo) GetUserByID(ctx context.Context, id int64) (*types.UserProfile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.UserProfile), args.Error(1)
}

func (m *MockAuthRepo) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockPasswordHasher is a mock implementation of the PasswordHasher interface
type MockPasswordHasher struct {
	mock.Mock
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) Verify(hash, password string) error {
	args := m.Called(hash, password)
	return args.Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(repo AuthRepo) *AuthServiceImpl {
	return NewAuthService(repo, NewBcryptHasher(bcrypt.MinCost), newTestJWTManager(), nil, discardLogger())
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		repo := new(MockAuthRepo)
		service := newTestService(repo)

		repo.On("Ping", mock.Anything).Return(nil).Once()
		repo.On("CreateUser", mock.Anything, "alice", "alice@x.com", mock.MatchedBy(func(hash string) bool {
			return bcrypt.CompareHashAndPassword([]byte(hash), []byte("pw123")) == nil
		})).Return(int64(7), nil).Once()

		id, err := service.Register(ctx, "alice", "pw123", "alice@x.com")
		require.NoError(t, err)
		assert.Equal(t, int64(7), id)
		repo.AssertExpectations(t)
	})

	t.Run("MissingFieldDoesNotTouchStorage", func(t *testing.T) {
		cases := [][3]string{
			{"", "pw123", "alice@x.com"},
			{"alice", "", "alice@x.com"},
			{"alice", "pw123", ""},
		}
		for _, c := range cases {
			repo := new(MockAuthRepo)
			service := newTestService(repo)

			_, err := service.Register(ctx, c[0], c[1], c[2])
			assert.ErrorIs(t, err, types.ErrValidation)
			repo.AssertNotCalled(t, "Ping", mock.Anything)
			repo.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		}
	})

	t.Run("TooLongFields", func(t *testing.T) {
		repo := new(MockAuthRepo)
		service := newTestService(repo)

		_, err := service.Register(ctx, strings.Repeat("u", MaxUsernameLength+1), "pw123", "alice@x.com")
		assert.ErrorIs(t, err, types.ErrValidation)
		_, err = service.Register(ctx, "alice", "pw123", strings.Repeat("e", MaxEmailLength+1))
		assert.ErrorIs(t, err, types.ErrValidation)
		_, err = service.Register(ctx, "alice", strings.Repeat("p", MaxPasswordBytes+1), "alice@x.com")
		assert.ErrorIs(t, err, types.ErrValidation)
		repo.AssertNotCalled(t, "Ping", mock.Anything)
	})

	t.Run("StorageUnreachable", func(t *testing.T) {
		repo := new(MockAuthRepo)
		service := newTestService(repo)

		repo.On("Ping", mock.Anything).Return(errors.New("dial tcp: connection refused")).Once()

		_, err := service.Register(ctx, "alice", "pw123", "alice@x.com")
		assert.ErrorIs(t, err, types.ErrUnavailable)
		repo.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Conflict", func(t *testing.T) {
		repo := new(MockAuthRepo)
		service := newTestService(repo)

		repo.On("Ping", mock.Anything).Return(nil).Once()
		repo.On("CreateUser", mock.Anything, "alice", "alice@x.com", mock.Anything).
			Return(int64(0), types.ErrConflict).Once()

		_, err := service.Register(ctx, "alice", "pw123", "alice@x.com")
		assert.ErrorIs(t, err, types.ErrConflict)
		repo.AssertExpectations(t)
	})

	t.Run("StorageFailure", func(t *testing.T) {
		repo := new(MockAuthRepo)
		service := newTestService(repo)

		repo.On("Ping", mock.Anything).Return(nil).Once()
		repo.On("CreateUser", mock.Anything, "alice", "alice@x.com", mock.Anything).
			Return(int64(0), errors.New("boom")).Once()

		_, err := service.Register(ctx, "alice", "pw123", "alice@x.com")
		require.Error(t, err)
		assert.NotErrorIs(t, err, types.ErrConflict)
		assert.NotErrorIs(t, err, types.ErrUnavailable)
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("pw123"), bcrypt.MinCost)
	require.NoError(t, err)
	stored := &types.UserAuth{ID: 3, Username: "alice", Email: "alice@x.com", Password: string(hash)}

	t.Run("Success", func(t *testing.T) {
		repo := new(MockAuthRepo)
		service := newTestService(repo)
		repo.On("GetUserByUsername", mock.Anything, "alice").Return(stored, nil).Once()

		result, err := service.Login(ctx, "alice", "pw123")
		require.NoError(t, err)
		assert.NotEmpty(t, result.Token)
		assert.Equal(t, int64(3), result.User.ID)
		assert.WithinDuration(t, time.Now().Add(15*time.Minute), result.ExpiresAt, 5*time.Second)

		claims, err := newTestJWTManager().Parse(result.Token)
		require.NoError(t, err)
		assert.Equal(t, "3", claims.Subject)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		repo := new(MockAuthRepo)
		service := newTestService(repo)
		repo.On("GetUserByUsername", mock.Anything, "alice").Return(stored, nil).Once()

		_, err := service.Login(ctx, "alice", "nope")
		assert.ErrorIs(t, err, types.ErrUnauthenticated)
	})

	t.Run("UnknownUserIndistinguishable", func(t *testing.T) {
		repo := new(MockAuthRepo)
		service := newTestService(repo)
		repo.On("GetUserByUsername", mock.Anything, "bob").Return(nil, types.ErrNotFound).Once()
		repo.On("GetUserByUsername", mock.Anything, "alice").Return(stored, nil).Once()

		_, unknownErr := service.Login(ctx, "bob", "pw123")
		_, wrongErr := service.Login(ctx, "alice", "nope")
		assert.ErrorIs(t, unknownErr, types.ErrUnauthenticated)
		assert.Equal(t, wrongErr.Error(), unknownErr.Error())
	})

	t.Run("UnknownUserStillComparesHash", func(t *testing.T) {
		repo := new(MockAuthRepo)
		hasher := new(MockPasswordHasher)
		service := NewAuthService(repo, hasher, newTestJWTManager(), nil, discardLogger())

		repo.On("GetUserByUsername", mock.Anything, "bob").Return(nil, types.ErrNotFound).Once()
		hasher.On("Hash", dummyPassword).Return("$2a$04$dummy", nil).Once()
		hasher.On("Verify", "$2a$04$dummy", "pw123").Return(types.ErrUnauthenticated).Once()

		_, err := service.Login(ctx, "bob", "pw123")
		assert.ErrorIs(t, err, types.ErrUnauthenticated)
		hasher.AssertExpectations(t)
	})

	t.Run("MissingFieldDoesNotTouchStorage", func(t *testing.T) {
		repo := new(MockAuthRepo)
		service := newTestService(repo)

		_, err := service.Login(ctx, "", "pw123")
		assert.ErrorIs(t, err, types.ErrValidation)
		_, err = service.Login(ctx, "alice", "")
		assert.ErrorIs(t, err, types.ErrValidation)
		repo.AssertNotCalled(t, "GetUserByUsername", mock.Anything, mock.Anything)
	})

	t.Run("StorageFailure", func(t *testing.T) {
		repo := new(MockAuthRepo)
		service := newTestService(repo)
		repo.On("GetUserByUsername", mock.Anything, "alice").Return(nil, types.ErrUnavailable).Once()

		_, err := service.Login(ctx, "alice", "pw123")
		require.Error(t, err)
		assert.NotErrorIs(t, err, types.ErrUnauthenticated)
	})
}

func TestGetUserProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		repo := new(MockAuthRepo)
		service := newTestService(repo)
		profile := &types.UserProfile{ID: 3, Username: "alice", Email: "alice@x.com", CreatedAt: time.Now()}
		repo.On("GetUserByID", mock.Anything, int64(3)).Return(profile, nil).Once()

		got, err := service.GetUserProfile(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, profile, got)
	})

	t.Run("NotFound", func(t *testing.T) {
		repo := new(MockAuthRepo)
		service := newTestService(repo)
		repo.On("GetUserByID", mock.Anything, int64(9)).Return(nil, types.ErrNotFound).Once()

		_, err := service.GetUserProfile(ctx, 9)
		assert.ErrorIs(t, err, types.ErrNotFound)
	})
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "success", outcome(nil))
	assert.Equal(t, "invalid", outcome(types.ErrValidation))
	assert.Equal(t, "conflict", outcome(types.ErrConflict))
	assert.Equal(t, "unauthenticated", outcome(types.ErrUnauthenticated))
	assert.Equal(t, "unavailable", outcome(types.ErrUnavailable))
	assert.Equal(t, "error", outcome(errors.New("boom")))
}
