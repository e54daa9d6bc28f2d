// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/royletron/scimit/internal/scim"
)

// contentTypeSCIM is the media type used on the SCIM surface (RFC 7644 §3.1).
// The admin and log APIs use plain application/json.
const contentTypeSCIM = "application/scim+json"

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeSCIM writes a SCIM response with the given status code.
func writeSCIM(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", contentTypeSCIM)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeSCIMError writes the SCIM error envelope. scimType may be empty.
func writeSCIMError(w http.ResponseWriter, status int, detail, scimType string) {
	writeSCIM(w, status, scim.NewError(status, detail, scimType))
}

// NotFound handles 404s on the SCIM surface.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeSCIMError(w, http.StatusNotFound, "Resource "+r.URL.Path+" not found", "")
}

// MethodNotAllowed handles 405s on the SCIM surface.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeSCIMError(w, http.StatusMethodNotAllowed, "Method "+r.Method+" not allowed", "")
}
