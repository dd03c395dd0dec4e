// Package authtest provides an in-memory account store for tests.
package authtest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FACorreiaa/go-account-service/internal/types"
)

// MemoryRepo keeps accounts in a map and enforces the same uniqueness rules
// as the SQL schema.
type MemoryRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]types.UserAuth

	down  atomic.Bool
	calls atomic.Int64
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[int64]types.UserAuth)}
}

// SetDown makes every call fail with types.ErrUnavailable.
func (r *MemoryRepo) SetDown(down bool) { r.down.Store(down) }

// Calls counts every storage call, pings included.
func (r *MemoryRepo) Calls() int64 { return r.calls.Load() }

func (r *MemoryRepo) enter() error {
	r.calls.Add(1)
	if r.down.Load() {
		return fmt.Errorf("%w: memory repo is down", types.ErrUnavailable)
	}
	return nil
}

func (r *MemoryRepo) CreateUser(ctx context.Context, username, email, passwordHash string) (int64, error) {
	if err := r.enter(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.byID {
		if u.Username == username || u.Email == email {
			return 0, fmt.Errorf("%w: username or email taken", types.ErrConflict)
		}
	}
	r.nextID++
	r.byID[r.nextID] = types.UserAuth{
		ID:        r.nextID,
		Username:  username,
		Email:     email,
		Password:  passwordHash,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	return r.nextID, nil
}

func (r *MemoryRepo) GetUserByUsername(ctx context.Context, username string) (*types.UserAuth, error) {
	if err := r.enter(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.byID {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, types.ErrNotFound
}

func (r *MemoryRepo) GetUserByID(ctx context.Context, id int64) (*types.UserProfile, error) {
	if err := r.enter(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return &types.UserProfile{ID: u.ID, Username: u.Username, Email: u.Email, CreatedAt: u.CreatedAt}, nil
}

func (r *MemoryRepo) Ping(ctx context.Context) error {
	return r.enter()
}

// PasswordHash returns the stored hash for username, or "" when unknown.
func (r *MemoryRepo) PasswordHash(username string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Username == username {
			return u.Password
		}
	}
	return ""
}
