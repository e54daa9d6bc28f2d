package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/royletron/scimit/internal/model"
	"github.com/royletron/scimit/internal/repository"
)

// persistTimeout bounds the audit write after the response has been sent;
// the request context may already be cancelled by then.
const persistTimeout = 5 * time.Second

// Recorder drives a request through the capture pipeline: snapshot the
// request before the handler runs, record the response when it finishes,
// persist the record, then broadcast it. Its own failures are logged and
// never surface to the SCIM client.
type Recorder struct {
	repo   *repository.Repository
	hub    *Hub
	logger *slog.Logger
}

// NewRecorder creates a Recorder publishing to hub.
func NewRecorder(repo *repository.Repository, hub *Hub, logger *slog.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		hub:    hub,
		logger: logger.With("component", "audit.recorder"),
	}
}

// responseRecorder wraps http.ResponseWriter to capture status code and the
// response body alongside passing them through.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func (rw *responseRecorder) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseRecorder) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

// Middleware returns the capture middleware for the SCIM surface. Capture
// happens before authentication so rejected calls are auditable too.
func (rec *Recorder) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Snapshot the request before the handler can consume it.
			var requestBody []byte
			if r.Body != nil {
				requestBody, _ = io.ReadAll(r.Body)
				r.Body = io.NopCloser(bytes.NewReader(requestBody))
			}

			record := &model.AuditRecord{
				Timestamp:   start.UTC(),
				Method:      r.Method,
				Path:        r.URL.Path,
				Headers:     flattenHeader(r.Header),
				QueryParams: flattenQuery(r.URL.Query()),
				RequestBody: string(requestBody),
				IPAddress:   clientIP(r),
				UserAgent:   r.UserAgent(),
			}

			wrapped := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			record.StatusCode = wrapped.status
			record.ResponseBody = wrapped.body.String()
			record.ResponseHeaders = flattenHeader(w.Header())
			record.DurationMs = time.Since(start).Milliseconds()

			rec.finish(record)
		})
	}
}

// finish persists the record and fans it out. Persistence always happens
// and precedes broadcast; a record is never announced before it is readable
// from history.
func (rec *Recorder) finish(record *model.AuditRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := rec.repo.InsertAuditRecord(ctx, record); err != nil {
		rec.logger.Error("failed to persist audit record",
			slog.String("method", record.Method),
			slog.String("path", record.Path),
			slog.String("error", err.Error()),
		)
		return
	}

	rec.hub.Broadcast(record.Event())
}

// flattenHeader serializes headers as a flat JSON object, joining repeated
// values the way a proxy would.
func flattenHeader(h http.Header) string {
	flat := make(map[string]string, len(h))
	for k, v := range h {
		flat[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return mustJSON(flat)
}

func flattenQuery(q url.Values) string {
	flat := make(map[string]string, len(q))
	for k, v := range q {
		flat[k] = strings.Join(v, ", ")
	}
	return mustJSON(flat)
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
