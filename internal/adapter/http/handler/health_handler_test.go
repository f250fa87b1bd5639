package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestHealthHandler_Liveness(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(nil).Liveness(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHealthHandler_Readiness(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	dbErr := error(nil)
	h := NewHealthHandler(map[string]Check{
		"postgres": func(context.Context) error { return dbErr },
		"redis":    func(ctx context.Context) error { return client.Ping(ctx).Err() },
	})

	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var status map[string]string
	decode(t, rec, &status)
	if status["postgres"] != "ok" || status["redis"] != "ok" {
		t.Fatalf("unexpected readiness body %v", status)
	}

	dbErr = errors.New("connection refused")
	rec = httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when postgres is down, got %d", rec.Code)
	}
	decode(t, rec, &status)
	if status["status"] != "unavailable" || status["postgres"] != "connection refused" || status["redis"] != "ok" {
		t.Fatalf("expected per-dependency report, got %v", status)
	}

	dbErr = nil
	mr.Close()
	rec = httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when redis is down, got %d", rec.Code)
	}
	status = nil
	decode(t, rec, &status)
	if status["postgres"] != "ok" || status["redis"] == "ok" {
		t.Fatalf("expected only redis to fail, got %v", status)
	}
}

func TestHealthHandler_ReadinessProbeTimeout(t *testing.T) {
	h := NewHealthHandler(map[string]Check{
		"postgres": func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	h.timeout = 10 * time.Millisecond

	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on probe timeout, got %d", rec.Code)
	}
}
