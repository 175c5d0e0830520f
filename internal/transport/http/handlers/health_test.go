package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestReadiness(t *testing.T) {
	gin.SetMode(gin.TestMode)

	healthy := NewHealthHandler(WithReadinessCheck("redis", func(context.Context) error { return nil }))
	failing := NewHealthHandler(
		WithReadinessCheck("redis", func(context.Context) error { return errors.New("dial tcp: refused") }),
		WithReadinessCheck("ignored", nil),
	)

	router := gin.New()
	router.GET("/ok", healthy.Readiness)
	router.GET("/fail", failing.Readiness)
	router.GET("/healthz", failing.Status)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/fail", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	resp := decode[ReadinessResponse](t, rr)
	if resp.Status != "degraded" || resp.Checks["redis"] == "ok" || len(resp.Checks) != 1 {
		t.Fatalf("unexpected readiness %+v", resp)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("liveness must not depend on readiness checks, got %d", rr.Code)
	}
}
