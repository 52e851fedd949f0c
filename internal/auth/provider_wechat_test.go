package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWeChatProvider(t *testing.T, serverURL string) *WeChatProvider {
	t.Helper()
	p, err := newWeChatProvider(json.RawMessage(`{"appid":"wx123","secret":"s3cret"}`), http.DefaultClient)
	require.NoError(t, err)
	p.baseURL = serverURL
	return p
}

func TestNewWeChatProviderConfig(t *testing.T) {
	_, err := newWeChatProvider(json.RawMessage(`{"appid":"wx123","secret":"s3cret"}`), http.DefaultClient)
	require.NoError(t, err)

	_, err = newWeChatProvider(json.RawMessage(`{"appid":"wx123"}`), http.DefaultClient)
	require.ErrorIs(t, err, ErrValidation)

	_, err = newWeChatProvider(json.RawMessage(`not json`), http.DefaultClient)
	require.ErrorIs(t, err, ErrValidation)
}

func TestWeChatAuthenticate(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"appid":      q.Get("appid"),
			"secret":     q.Get("secret"),
			"js_code":    q.Get("js_code"),
			"grant_type": q.Get("grant_type"),
		}
		json.NewEncoder(w).Encode(map[string]any{
			"openid":      "openid-123",
			"session_key": "session-key-should-not-leak",
			"unionid":     "union-456",
		})
	}))
	defer srv.Close()

	p := newTestWeChatProvider(t, srv.URL)
	info, err := p.Authenticate(context.Background(), json.RawMessage(`{"code":"wx-login-code"}`))
	require.NoError(t, err)

	assert.Equal(t, "openid-123", info.ProviderAccountID)
	assert.Equal(t, "wx123", gotQuery["appid"])
	assert.Equal(t, "s3cret", gotQuery["secret"])
	assert.Equal(t, "wx-login-code", gotQuery["js_code"])
	assert.Equal(t, "authorization_code", gotQuery["grant_type"])

	// Only identity material is reported; the session_key must not appear.
	assert.NotContains(t, info.Metadata, "session_key")
	assert.Equal(t, "openid-123", info.Metadata["openid"])
}

func TestWeChatAuthenticateAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"errcode": 40029,
			"errmsg":  "invalid code",
		})
	}))
	defer srv.Close()

	p := newTestWeChatProvider(t, srv.URL)
	_, err := p.Authenticate(context.Background(), json.RawMessage(`{"code":"bad"}`))
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "40029")
}

func TestWeChatAuthenticateUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	p := newTestWeChatProvider(t, srv.URL)
	_, err := p.Authenticate(context.Background(), json.RawMessage(`{"code":"any"}`))
	require.ErrorIs(t, err, ErrProvider)
}

func TestWeChatAuthenticateBadCredential(t *testing.T) {
	p := newTestWeChatProvider(t, "http://127.0.0.1:0")

	_, err := p.Authenticate(context.Background(), json.RawMessage(`{}`))
	require.ErrorIs(t, err, ErrValidation)

	_, err = p.Authenticate(context.Background(), json.RawMessage(`not json`))
	require.ErrorIs(t, err, ErrValidation)
}

func TestWeChatAuthenticateMissingOpenID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"session_key": "sk"})
	}))
	defer srv.Close()

	p := newTestWeChatProvider(t, srv.URL)
	_, err := p.Authenticate(context.Background(), json.RawMessage(`{"code":"any"}`))
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "openid")
}

func TestNewProviderUnsupported(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.newProvider("github", nil)
	require.ErrorIs(t, err, ErrProviderNotSupported)
	assert.Contains(t, err.Error(), "github")
}
