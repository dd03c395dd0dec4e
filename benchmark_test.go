package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/FACorreiaa/go-account-service/internal/api/auth/authtest"
	"github.com/FACorreiaa/go-account-service/internal/container"
)

func setupBenchmarkRouter(b *testing.B) (http.Handler, string) {
	b.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := container.NewWithRepo(testConfig(), authtest.NewMemoryRepo(), nil, logger)
	r := c.Router()

	req := httptest.NewRequest(http.MethodPost, "/api/register",
		strings.NewReader(`{"username":"bench","password":"pw123","email":"bench@x.com"}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		b.Fatalf("register: status %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/login",
		strings.NewReader(`{"username":"bench","password":"pw123"}`)))
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &login); err != nil || login.Token == "" {
		b.Fatalf("login: status %d, err %v", rr.Code, err)
	}
	return r, login.Token
}

func BenchmarkRegister(b *testing.B) {
	r, _ := setupBenchmarkRouter(b)
	var n atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := n.Add(1)
			body := fmt.Sprintf(`{"username":"user%d","password":"pw123","email":"user%d@x.com"}`, i, i)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(body)))
			if rr.Code != http.StatusCreated {
				b.Errorf("register: status %d", rr.Code)
			}
		}
	})
}

func BenchmarkLogin(b *testing.B) {
	r, _ := setupBenchmarkRouter(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/login",
			strings.NewReader(`{"username":"bench","password":"pw123"}`)))
		if rr.Code != http.StatusOK {
			b.Fatalf("login: status %d", rr.Code)
		}
	}
}

func BenchmarkGetUserProfile(b *testing.B) {
	r, token := setupBenchmarkRouter(b)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)
			if rr.Code != http.StatusOK {
				b.Errorf("profile: status %d", rr.Code)
			}
		}
	})
}
