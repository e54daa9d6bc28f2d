package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/royletron/scimit/internal/audit"
	"github.com/royletron/scimit/internal/model"
	"github.com/royletron/scimit/internal/repository"
)

// wsPingInterval keeps idle websocket subscribers alive through proxies.
const wsPingInterval = 15 * time.Second

// LogsHandler serves the audit-log query API and the live streams.
type LogsHandler struct {
	repo   *repository.Repository
	hub    *audit.Hub
	logger *slog.Logger
}

// NewLogsHandler creates a new LogsHandler.
func NewLogsHandler(repo *repository.Repository, hub *audit.Hub, logger *slog.Logger) *LogsHandler {
	return &LogsHandler{
		repo:   repo,
		hub:    hub,
		logger: logger,
	}
}

// List handles GET /api/logs. Filters: method, status, path (substring),
// limit, offset. Newest first.
func (h *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	q := repository.AuditQuery{
		Method: query.Get("method"),
		Path:   query.Get("path"),
		Limit:  100,
	}
	if v, err := strconv.Atoi(query.Get("status")); err == nil {
		q.Status = v
	}
	if v, err := strconv.Atoi(query.Get("limit")); err == nil && v > 0 {
		q.Limit = v
	}
	if v, err := strconv.Atoi(query.Get("offset")); err == nil && v > 0 {
		q.Offset = v
	}

	records, total, err := h.repo.FindAuditRecords(r.Context(), q)
	if err != nil {
		h.writeError(w, err)
		return
	}

	events := make([]*model.AuditEvent, 0, len(records))
	for _, rec := range records {
		events = append(events, rec.Event())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"logs":   events,
		"total":  total,
		"limit":  q.Limit,
		"offset": q.Offset,
	})
}

// Get handles GET /api/logs/{id}.
func (h *LogsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid log id"})
		return
	}

	rec, err := h.repo.GetAuditRecord(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrAuditRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Log not found"})
			return
		}
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec.Event())
}

// Stream handles GET /api/logs/stream: Server-Sent Events, one
// `data: <json>` frame per audit record, until the client disconnects.
func (h *LogsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.hub.Subscribe()
	defer sub.Unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := w.Write(append(append([]byte("data: "), payload...), '\n', '\n')); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local operator tool; any origin may subscribe.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamWS handles GET /api/logs/ws: the websocket flavor of the live
// stream for non-browser subscribers, one JSON text message per record.
func (h *LogsHandler) StreamWS(w http.ResponseWriter, r *http.Request) {
	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	sub := h.hub.Subscribe()
	defer sub.Unsubscribe()

	// Drain client frames so close messages are processed.
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := ws.WriteJSON(ev); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Debug("websocket closed unexpectedly", slog.String("error", err.Error()))
				}
				return
			}
		}
	}
}

func (h *LogsHandler) writeError(w http.ResponseWriter, err error) {
	h.logger.Error("logs_error", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "An internal error occurred",
	})
}
