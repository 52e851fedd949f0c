package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zhaochy1990/auth/internal/testutil"
)

func TestDecodeJSON(t *testing.T) {
	t.Run("valid body", func(t *testing.T) {
		var dst struct {
			Email string `json:"email"`
		}
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.com"}`))
		w := httptest.NewRecorder()
		testutil.True(t, DecodeJSON(w, req, &dst), "valid JSON should decode")
		testutil.Equal(t, "a@b.com", dst.Email)
	})

	t.Run("invalid body", func(t *testing.T) {
		var dst map[string]any
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))
		w := httptest.NewRecorder()
		testutil.False(t, DecodeJSON(w, req, &dst), "invalid JSON should fail")
		testutil.StatusCode(t, http.StatusBadRequest, w.Code)

		var resp ErrorResponse
		testutil.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		testutil.Equal(t, "bad_request", resp.Code)
	})

	t.Run("oversized body", func(t *testing.T) {
		var dst map[string]any
		big := `{"pad":"` + strings.Repeat("x", MaxBodySize+1) + `"}`
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
		w := httptest.NewRecorder()
		testutil.False(t, DecodeJSON(w, req, &dst), "oversized body should fail")
		testutil.StatusCode(t, http.StatusBadRequest, w.Code)
	})
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{"valid", "Bearer abc123", "abc123", true},
		{"empty header", "", "", false},
		{"no prefix", "abc123", "", false},
		{"basic auth", "Basic dXNlcjpwYXNz", "", false},
		{"empty token", "Bearer ", "", false},
		{"lowercase prefix", "bearer abc123", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			token, ok := ExtractBearerToken(req)
			testutil.Equal(t, tt.ok, ok)
			testutil.Equal(t, tt.want, token)
		})
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusConflict, "user_already_exists", "User already exists")

	testutil.Equal(t, http.StatusConflict, w.Code)
	testutil.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp ErrorResponse
	testutil.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	testutil.Equal(t, "user_already_exists", resp.Code)
	testutil.Equal(t, "User already exists", resp.Message)
}

func TestIsValidUUID(t *testing.T) {
	testutil.True(t, IsValidUUID("6a2f41a3-c54c-fce8-32d2-0324e1c32e22"), "well-formed UUID")
	testutil.False(t, IsValidUUID("not-a-uuid"), "garbage")
	testutil.False(t, IsValidUUID(""), "empty")
	testutil.False(t, IsValidUUID("6a2f41a3c54cfce832d20324e1c32e22"), "missing hyphens")
}
