package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func adminHandler(adminKey string, rejections *int) http.Handler {
	var opts []func()
	if rejections != nil {
		opts = append(opts, func() { *rejections++ })
	}
	return AdminKeyMiddleware(adminKey, opts...)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
}

func TestAdminKeyMiddleware_ValidKey(t *testing.T) {
	h := adminHandler("secret-admin-key", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/audit", nil)
	req.Header.Set("Authorization", "Bearer secret-admin-key")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAdminKeyMiddleware_InvalidKey(t *testing.T) {
	rejections := 0
	h := adminHandler("secret-admin-key", &rejections)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/audit", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rejections != 1 {
		t.Fatalf("expected 1 rejection callback, got %d", rejections)
	}
}

func TestAdminKeyMiddleware_MissingHeader(t *testing.T) {
	h := adminHandler("secret-admin-key", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/audit", nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAdminKeyMiddleware_EmptyConfiguredKeyDisables(t *testing.T) {
	h := adminHandler("", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/audit", nil)
	// Even an empty bearer token must not match an empty configured key.
	req.Header.Set("Authorization", "Bearer ")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"valid", "Bearer abc123", "abc123"},
		{"case insensitive scheme", "bearer abc123", "abc123"},
		{"missing", "", ""},
		{"wrong scheme", "Basic abc123", ""},
		{"no token", "Bearer", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := extractBearerToken(req); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
