package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSecurityHeaders_AlwaysSet(t *testing.T) {
	handler := SecurityHeaders(SecurityHeadersConfig{Env: "development"})

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	handler(testHandler).ServeHTTP(w, req)

	tests := []struct {
		header   string
		expected string
	}{
		{"X-Frame-Options", "DENY"},
		{"X-Content-Type-Options", "nosniff"},
		{"Referrer-Policy", "strict-origin-when-cross-origin"},
		{"Cache-Control", "no-store"},
	}

	for _, tt := range tests {
		if got := w.Header().Get(tt.header); got != tt.expected {
			t.Errorf("Header %s: got %q, want %q", tt.header, got, tt.expected)
		}
	}

	if csp := w.Header().Get("Content-Security-Policy"); csp == "" {
		t.Error("Content-Security-Policy header missing")
	}
}

func TestSecurityHeaders_HSTSOnlyOnProductionHTTPS(t *testing.T) {
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Development: no HSTS even behind an HTTPS proxy
	devHandler := SecurityHeaders(SecurityHeadersConfig{Env: "development"})
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()
	devHandler(testHandler).ServeHTTP(w, req)
	if hsts := w.Header().Get("Strict-Transport-Security"); hsts != "" {
		t.Errorf("development should not send HSTS, got %q", hsts)
	}

	// Production behind HTTPS proxy: HSTS is set
	prodHandler := SecurityHeaders(SecurityHeadersConfig{Env: "production"})
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w = httptest.NewRecorder()
	prodHandler(testHandler).ServeHTTP(w, req)
	if hsts := w.Header().Get("Strict-Transport-Security"); hsts == "" {
		t.Error("production HTTPS should send HSTS")
	}

	// Production over plain HTTP: no HSTS
	req = httptest.NewRequest("GET", "/", nil)
	w = httptest.NewRecorder()
	prodHandler(testHandler).ServeHTTP(w, req)
	if hsts := w.Header().Get("Strict-Transport-Security"); hsts != "" {
		t.Errorf("plain HTTP should not send HSTS, got %q", hsts)
	}
}
