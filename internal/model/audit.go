package model

import (
	"encoding/json"
	"time"
)

// AuditRecord is one persisted HTTP request/response exchange on the SCIM
// surface. Rows are immutable once written; only the admin reset removes
// them. ID is assigned by the store in persistence order and is the total
// order for "most recent N" queries.
type AuditRecord struct {
	ID              int64     `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	Method          string    `json:"method"`
	Path            string    `json:"path"`
	StatusCode      int       `json:"status_code"`
	Headers         string    `json:"-"`
	QueryParams     string    `json:"-"`
	RequestBody     string    `json:"-"`
	ResponseBody    string    `json:"-"`
	ResponseHeaders string    `json:"-"`
	DurationMs      int64     `json:"duration_ms"`
	IPAddress       string    `json:"ip_address,omitempty"`
	UserAgent       string    `json:"user_agent,omitempty"`
}

// AuditEvent is the structured form of an AuditRecord: the JSON columns
// parsed back into objects. This is what the history API returns and what
// the live stream broadcasts, one event per record.
type AuditEvent struct {
	ID              int64             `json:"id"`
	Timestamp       time.Time         `json:"timestamp"`
	Method          string            `json:"method"`
	Path            string            `json:"path"`
	StatusCode      int               `json:"status_code"`
	Headers         map[string]string `json:"headers"`
	QueryParams     map[string]string `json:"query_params"`
	RequestBody     any               `json:"request_body"`
	ResponseBody    any               `json:"response_body"`
	ResponseHeaders map[string]string `json:"response_headers"`
	DurationMs      int64             `json:"duration_ms"`
	IPAddress       string            `json:"ip_address,omitempty"`
	UserAgent       string            `json:"user_agent,omitempty"`
}

// Event parses the record's JSON columns into an AuditEvent. Columns that
// fail to parse are left at their zero value rather than failing the whole
// record; a malformed body was captured verbatim and is reported as a string.
func (r *AuditRecord) Event() *AuditEvent {
	ev := &AuditEvent{
		ID:         r.ID,
		Timestamp:  r.Timestamp,
		Method:     r.Method,
		Path:       r.Path,
		StatusCode: r.StatusCode,
		DurationMs: r.DurationMs,
		IPAddress:  r.IPAddress,
		UserAgent:  r.UserAgent,
	}
	_ = json.Unmarshal([]byte(r.Headers), &ev.Headers)
	_ = json.Unmarshal([]byte(r.QueryParams), &ev.QueryParams)
	_ = json.Unmarshal([]byte(r.ResponseHeaders), &ev.ResponseHeaders)
	ev.RequestBody = parseBody(r.RequestBody)
	ev.ResponseBody = parseBody(r.ResponseBody)
	return ev
}

func parseBody(raw string) any {
	if raw == "" {
		return nil
	}
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return raw
	}
	return parsed
}
