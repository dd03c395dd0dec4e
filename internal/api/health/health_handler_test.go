package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-account-service/internal/types"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func serveHealth(t *testing.T, db Pinger, timeout time.Duration) types.HealthResponse {
	t.Helper()
	h := NewHandlerImpl(db, timeout, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rr := httptest.NewRecorder()
	h.HealthCheck(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp types.HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheckHealthy(t *testing.T) {
	resp := serveHealth(t, pingFunc(func(ctx context.Context) error { return nil }), time.Second)

	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, map[string]string{"backend": StatusUp, "database": StatusUp}, resp.Services)
}

func TestHealthCheckDatabaseDown(t *testing.T) {
	resp := serveHealth(t, pingFunc(func(ctx context.Context) error {
		return errors.New("connection refused")
	}), time.Second)

	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Equal(t, StatusUp, resp.Services["backend"])
	assert.Equal(t, StatusDown, resp.Services["database"])
}

func TestHealthCheckBoundedByTimeout(t *testing.T) {
	started := time.Now()
	resp := serveHealth(t, pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), 20*time.Millisecond)

	assert.Less(t, time.Since(started), time.Second)
	assert.Equal(t, StatusDown, resp.Services["database"])
}
