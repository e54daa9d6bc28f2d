package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/royletron/scimit/internal/middleware"
)

func TestCORS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		config      middleware.CORSConfig
		method      string
		origin      string
		wantStatus  int
		wantAllowed string
	}{
		{
			name:        "wildcard allows any origin",
			config:      middleware.DefaultCORSConfig(),
			method:      http.MethodGet,
			origin:      "https://admin.example.com",
			wantStatus:  http.StatusOK,
			wantAllowed: "https://admin.example.com",
		},
		{
			name:        "preflight for allowed origin",
			config:      middleware.DefaultCORSConfig(),
			method:      http.MethodOptions,
			origin:      "https://admin.example.com",
			wantStatus:  http.StatusNoContent,
			wantAllowed: "https://admin.example.com",
		},
		{
			name:        "listed origin matches case-insensitively",
			config:      middleware.CORSConfig{AllowedOrigins: []string{"https://Admin.Example.com"}, AllowedMethods: []string{"GET"}, AllowedHeaders: []string{"Content-Type"}},
			method:      http.MethodGet,
			origin:      "https://admin.example.com",
			wantStatus:  http.StatusOK,
			wantAllowed: "https://admin.example.com",
		},
		{
			name:       "unlisted origin gets no CORS headers",
			config:     middleware.CORSConfig{AllowedOrigins: []string{"https://allowed.example.com"}, AllowedMethods: []string{"GET"}, AllowedHeaders: []string{"Content-Type"}},
			method:     http.MethodGet,
			origin:     "https://evil.example.com",
			wantStatus: http.StatusOK,
		},
		{
			name:       "preflight for unlisted origin is refused",
			config:     middleware.CORSConfig{AllowedOrigins: []string{"https://allowed.example.com"}, AllowedMethods: []string{"GET"}, AllowedHeaders: []string{"Content-Type"}},
			method:     http.MethodOptions,
			origin:     "https://evil.example.com",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "same-origin request passes through",
			config:     middleware.DefaultCORSConfig(),
			method:     http.MethodGet,
			origin:     "",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := middleware.CORS(tt.config)(okHandler())

			req := httptest.NewRequest(tt.method, "/scim/v2/Users", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllowed {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantAllowed)
			}
			if tt.method == http.MethodOptions && tt.wantStatus == http.StatusNoContent {
				if got := w.Header().Get("Access-Control-Allow-Methods"); got == "" {
					t.Error("Access-Control-Allow-Methods missing on preflight")
				}
			}
		})
	}
}
