package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/royletron/scimit/internal/handler"
	"github.com/royletron/scimit/internal/testutil"
)

type failingChecker struct{}

func (failingChecker) Ping(ctx context.Context) error {
	return errors.New("database is locked")
}

func TestHealth(t *testing.T) {
	t.Parallel()

	repo := testutil.NewRepository(t)
	h := handler.NewHealthHandler(repo)

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decode(t, w)
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["checks"].(map[string]any)["sqlite"] != "ok" {
		t.Errorf("checks = %v", body["checks"])
	}
}

func TestHealth_StoreDown(t *testing.T) {
	t.Parallel()

	h := handler.NewHealthHandler(failingChecker{})

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if body := decode(t, w); body["status"] != "unhealthy" {
		t.Errorf("status field = %v", body["status"])
	}
}
