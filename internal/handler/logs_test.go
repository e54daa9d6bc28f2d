package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/royletron/scimit/internal/model"
	"github.com/royletron/scimit/internal/repository"
)

func seedAuditRecords(t *testing.T, repo *repository.Repository, records ...*model.AuditRecord) {
	t.Helper()

	for _, rec := range records {
		if err := repo.InsertAuditRecord(context.Background(), rec); err != nil {
			t.Fatalf("InsertAuditRecord: %v", err)
		}
	}
}

func logRecord(method, path string, status int) *model.AuditRecord {
	return &model.AuditRecord{
		Timestamp:       time.Now().UTC(),
		Method:          method,
		Path:            path,
		StatusCode:      status,
		Headers:         `{"user-agent":"go-test"}`,
		QueryParams:     "{}",
		ResponseHeaders: "{}",
		DurationMs:      2,
	}
}

func TestLogsList(t *testing.T) {
	t.Parallel()

	router, repo, _ := newServer(t)
	seedAuditRecords(t, repo,
		logRecord("GET", "/scim/v2/Users", 200),
		logRecord("POST", "/scim/v2/Users", 201),
		logRecord("POST", "/scim/v2/Groups", 400),
	)

	w := do(t, router, http.MethodGet, "/api/logs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	body := decode(t, w)
	if body["total"] != float64(3) {
		t.Errorf("total = %v", body["total"])
	}
	if body["limit"] != float64(100) {
		t.Errorf("limit = %v, want default 100", body["limit"])
	}
	if body["offset"] != float64(0) {
		t.Errorf("offset = %v", body["offset"])
	}
	logs := body["logs"].([]any)
	if len(logs) != 3 {
		t.Fatalf("len(logs) = %d", len(logs))
	}
	// Newest first.
	if logs[0].(map[string]any)["path"] != "/scim/v2/Groups" {
		t.Errorf("first log = %v", logs[0])
	}
}

func TestLogsList_Filters(t *testing.T) {
	t.Parallel()

	router, repo, _ := newServer(t)
	seedAuditRecords(t, repo,
		logRecord("GET", "/scim/v2/Users", 200),
		logRecord("POST", "/scim/v2/Users", 201),
		logRecord("POST", "/scim/v2/Groups", 400),
		logRecord("DELETE", "/scim/v2/Users/u-1", 204),
	)

	tests := []struct {
		name      string
		query     string
		wantTotal float64
	}{
		{"by method", "?method=POST", 2},
		{"by status", "?status=204", 1},
		{"by path substring", "?path=Groups", 1},
		{"limit leaves total", "?limit=1", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodGet, "/api/logs"+tt.query, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			body := decode(t, w)
			if body["total"] != tt.wantTotal {
				t.Errorf("total = %v, want %v", body["total"], tt.wantTotal)
			}
		})
	}
}

func TestLogsGet(t *testing.T) {
	t.Parallel()

	router, repo, _ := newServer(t)
	rec := logRecord("GET", "/scim/v2/Users", 200)
	seedAuditRecords(t, repo, rec)

	w := do(t, router, http.MethodGet, "/api/logs/"+strconv.FormatInt(rec.ID, 10), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["path"] != "/scim/v2/Users" {
		t.Errorf("path = %v", body["path"])
	}
	headers := body["headers"].(map[string]any)
	if headers["user-agent"] != "go-test" {
		t.Errorf("headers = %v", headers)
	}

	if w := do(t, router, http.MethodGet, "/api/logs/999999", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing log status = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/api/logs/notanumber", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", w.Code)
	}
}

func TestLogsStream(t *testing.T) {
	t.Parallel()

	router, _, hub := newServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/logs/stream", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		router.ServeHTTP(w, req)
	}()

	// Let the handler subscribe before broadcasting.
	deadline := time.After(2 * time.Second)
	for hub.SubscriberCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("handler never subscribed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	hub.Broadcast(&model.AuditEvent{ID: 42, Method: "GET", Path: "/scim/v2/Users", StatusCode: 200})
	// Give the event loop a beat to flush, then end the request.
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, "data: ") {
		t.Fatalf("body = %q, want data: frame", body)
	}
	var event model.AuditEvent
	payload := strings.TrimSpace(strings.TrimPrefix(body, "data: "))
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		t.Fatalf("decode frame %q: %v", payload, err)
	}
	if event.ID != 42 || event.Path != "/scim/v2/Users" {
		t.Errorf("event = %+v", event)
	}
}

func TestLogsStreamWS(t *testing.T) {
	t.Parallel()

	router, _, hub := newServer(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/logs/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.After(2 * time.Second)
	for hub.SubscriberCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("handler never subscribed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	hub.Broadcast(&model.AuditEvent{ID: 7, Method: "DELETE", Path: "/scim/v2/Users/u-1", StatusCode: 204})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event model.AuditEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if event.ID != 7 || event.StatusCode != 204 {
		t.Errorf("event = %+v", event)
	}
}
