// File: internal/server/server_test.go
package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/tokensmith/internal/automation"
	"github.com/xkilldash9x/tokensmith/internal/config"
	"github.com/xkilldash9x/tokensmith/internal/oauth"
)

func newTestServer(t *testing.T, flow flowFunc) *Server {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.OAuth.ClientID = "client-123"
	// Keep the limiter out of the way unless a test wants it.
	cfg.Server.RateLimit = 1000
	cfg.Server.RateBurst = 1000

	s := New(cfg, zap.NewNop())
	if flow != nil {
		s.runFlow = flow
	}
	return s
}

func postLogin(s *Server, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.RemoteAddr = "203.0.113.7:41000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestLoginSuccessReturnsTokenResult(t *testing.T) {
	var gotRedirect string
	var gotCreds automation.Credentials
	s := newTestServer(t, func(ctx context.Context, redirectURI string, creds automation.Credentials) (*oauth.TokenResult, *apiError) {
		gotRedirect = redirectURI
		gotCreds = creds
		return &oauth.TokenResult{RefreshToken: "rt", AccessToken: "at", ExpiresIn: 3600}, nil
	})

	rec := postLogin(s, `{"email":"user@example.com","password":"hunter2"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result oauth.TokenResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "rt", result.RefreshToken)

	assert.Equal(t, automation.Credentials{Email: "user@example.com", Password: "hunter2"}, gotCreds)
	assert.Equal(t, "http://example.com/callback", gotRedirect)
}

func TestLoginDerivesRedirectFromForwardedProto(t *testing.T) {
	var gotRedirect string
	s := newTestServer(t, func(ctx context.Context, redirectURI string, creds automation.Credentials) (*oauth.TokenResult, *apiError) {
		gotRedirect = redirectURI
		return &oauth.TokenResult{RefreshToken: "rt"}, nil
	})

	rec := postLogin(s, `{"email":"a@b.c","password":"p"}`, map[string]string{
		"X-Forwarded-Proto": "https",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://example.com/callback", gotRedirect)
}

func TestLoginRejectsNonJSONBody(t *testing.T) {
	s := newTestServer(t, nil)
	rec := postLogin(s, "not json at all", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_REQUEST", resp.Error)
}

func TestLoginRejectsMissingCredentials(t *testing.T) {
	s := newTestServer(t, nil)
	for _, body := range []string{
		`{}`,
		`{"email":"a@b.c"}`,
		`{"password":"p"}`,
		`{"email":"","password":"p"}`,
	} {
		rec := postLogin(s, body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body: %s", body)
		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "MISSING_CREDENTIALS", resp.Error, "body: %s", body)
	}
}

func TestLoginMapsFlowErrorsTo500(t *testing.T) {
	s := newTestServer(t, func(ctx context.Context, redirectURI string, creds automation.Credentials) (*oauth.TokenResult, *apiError) {
		return nil, &apiError{
			Status:  http.StatusInternalServerError,
			Kind:    string(automation.KindAutomationFailed),
			Message: "INVALID_CREDENTIALS",
		}
	})

	rec := postLogin(s, `{"email":"a@b.c","password":"wrong"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "AUTOMATION_FAILED", resp.Error)
	assert.Contains(t, resp.Message, "INVALID_CREDENTIALS")
}

func TestLoginAttachesProviderBodyAsDetails(t *testing.T) {
	raw := `{"error":"invalid_grant","error_description":"expired"}`
	s := newTestServer(t, func(ctx context.Context, redirectURI string, creds automation.Credentials) (*oauth.TokenResult, *apiError) {
		return nil, &apiError{
			Status:  http.StatusInternalServerError,
			Kind:    oauth.KindTokenExchangeFailed,
			Message: "token response did not include a refresh token",
			RawBody: raw,
		}
	})

	rec := postLogin(s, `{"email":"a@b.c","password":"p"}`, nil)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, oauth.KindTokenExchangeFailed, resp.Error)
	assert.JSONEq(t, raw, string(resp.Details))
}

func TestLoginSessionCapacity(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	s := newTestServer(t, func(ctx context.Context, redirectURI string, creds automation.Credentials) (*oauth.TokenResult, *apiError) {
		close(started)
		<-release
		return &oauth.TokenResult{RefreshToken: "rt"}, nil
	})
	s.sessions = semaphore.NewWeighted(1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		postLogin(s, `{"email":"a@b.c","password":"p"}`, nil)
	}()
	<-started

	rec := postLogin(s, `{"email":"d@e.f","password":"p"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "SERVER_BUSY", resp.Error)

	close(release)
	wg.Wait()
}

func TestLoginRateLimited(t *testing.T) {
	s := newTestServer(t, func(ctx context.Context, redirectURI string, creds automation.Credentials) (*oauth.TokenResult, *apiError) {
		return &oauth.TokenResult{RefreshToken: "rt"}, nil
	})
	s.limiter = newClientLimiters(0.001, 1)

	first := postLogin(s, `{"email":"a@b.c","password":"p"}`, nil)
	assert.Equal(t, http.StatusOK, first.Code)

	second := postLogin(s, `{"email":"a@b.c","password":"p"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestCallbackAcknowledges(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/callback?code=abc&state=12345", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Callback reached")
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "tokensmith", body["service"])
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.RemoteAddr = "198.51.100.4:5050"
	assert.Equal(t, "198.51.100.4", clientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(r))
}
