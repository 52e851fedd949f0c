package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zhaochy1990/auth/internal/auth"
	"github.com/zhaochy1990/auth/internal/config"
	"github.com/zhaochy1990/auth/internal/testutil"
)

// newTestServer builds a server without a database. Routes that reach the
// store are not exercised here; the integration suite covers them.
func newTestServer(t *testing.T, mutate func(cfg *config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}

	jwtMgr, err := auth.NewJWTManagerGenerated("auth-service-test", time.Hour)
	testutil.NoError(t, err)
	svc := auth.NewService(nil, jwtMgr, 24*time.Hour, testutil.DiscardLogger())

	srv := New(cfg, testutil.DiscardLogger(), svc, "test")
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	return srv
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	testutil.StatusCode(t, http.StatusOK, w.Code)

	var body map[string]string
	testutil.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	testutil.Equal(t, "ok", body["status"])
	testutil.Equal(t, "test", body["version"])
}

func TestCORSWildcard(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://rp.example.com")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	testutil.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSSpecificOrigins(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.CORSAllowedOrigins = []string{"https://a.example.com", "https://b.example.com"}
	})

	t.Run("allowed origin echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://b.example.com")
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, req)

		testutil.Equal(t, "https://b.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		testutil.Contains(t, strings.Join(w.Header().Values("Vary"), ","), "Origin")
	})

	t.Run("unknown origin gets no header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, req)

		testutil.Equal(t, "", w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "https://rp.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	testutil.StatusCode(t, http.StatusNoContent, w.Code)
	testutil.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Client-Id")
	testutil.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestContentTypeEnforced(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader("grant_type=password"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("app_abc", "secret")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	testutil.StatusCode(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestOAuthTokenRequiresClientAuth(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(`{"grant_type":"password"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	testutil.StatusCode(t, http.StatusUnauthorized, w.Code)

	var body struct {
		Code string `json:"error"`
	}
	testutil.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	testutil.Equal(t, "invalid_credentials", body.Code)
}

func TestAdminRequiresAuth(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	testutil.StatusCode(t, http.StatusUnauthorized, w.Code)
}

func TestAdminMalformedIDIsNotFound(t *testing.T) {
	cfg := config.Default()
	jwtMgr, err := auth.NewJWTManagerGenerated("auth-service-test", time.Hour)
	testutil.NoError(t, err)
	svc := auth.NewService(nil, jwtMgr, 24*time.Hour, testutil.DiscardLogger())
	srv := New(cfg, testutil.DiscardLogger(), svc, "test")
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})

	token, err := jwtMgr.IssueAccessToken("9b2e8c1a-7d4f-4a2b-9c3d-1e5f6a7b8c9d", "app_test", []string{"admin"}, "admin")
	testutil.NoError(t, err)

	// Malformed ids must read the same as unknown ones and never reach the
	// uuid-typed queries.
	tests := []struct {
		name   string
		method string
		path   string
		slug   string
	}{
		{"get user", http.MethodGet, "/admin/users/not-a-uuid", "user_not_found"},
		{"update user", http.MethodPatch, "/admin/users/42", "user_not_found"},
		{"user accounts", http.MethodGet, "/admin/users/not-a-uuid/accounts", "user_not_found"},
		{"unlink account", http.MethodDelete, "/admin/users/not-a-uuid/accounts/wechat", "user_not_found"},
		{"update application", http.MethodPatch, "/admin/applications/not-a-uuid", "application_not_found"},
		{"rotate secret", http.MethodPost, "/admin/applications/not-a-uuid/rotate-secret", "application_not_found"},
		{"list providers", http.MethodGet, "/admin/applications/not-a-uuid/providers", "application_not_found"},
		{"add provider", http.MethodPost, "/admin/applications/not-a-uuid/providers", "application_not_found"},
		{"remove provider", http.MethodDelete, "/admin/applications/not-a-uuid/providers/wechat", "application_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			srv.Router().ServeHTTP(w, req)

			testutil.StatusCode(t, http.StatusNotFound, w.Code)

			var body struct {
				Code string `json:"error"`
			}
			testutil.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			testutil.Equal(t, tt.slug, body.Code)
		})
	}
}

func TestRateLimitExceeded(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.Auth = 2
	})

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", "203.0.113.5")
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, req)
		return w
	}

	// Budget of 2: the first two get through the limiter (and fail later for
	// other reasons), the third is cut off.
	for i := 0; i < 2; i++ {
		w := send()
		testutil.NotEqual(t, http.StatusTooManyRequests, w.Code)
	}

	w := send()
	testutil.StatusCode(t, http.StatusTooManyRequests, w.Code)

	var body struct {
		Code string `json:"error"`
	}
	testutil.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	testutil.Equal(t, "rate_limited", body.Code)
}
