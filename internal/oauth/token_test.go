// File: internal/oauth/token_test.go
package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tokensmith/internal/config"
)

// newTestExchanger points an Exchanger at an httptest token endpoint.
func newTestExchanger(t *testing.T, handler http.HandlerFunc) *Exchanger {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewExchanger(config.OAuthConfig{
		ClientID: "client-123",
		// The exchanger derives its endpoint from the authority.
		Authority:       srv.URL,
		Scopes:          "offline_access Mail.Read",
		ExchangeTimeout: 5 * time.Second,
	}, zap.NewNop())
}

func TestExchangeSuccess(t *testing.T) {
	var gotForm map[string]string
	x := newTestExchanger(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"client_id":    r.PostFormValue("client_id"),
			"scope":        r.PostFormValue("scope"),
			"code":         r.PostFormValue("code"),
			"redirect_uri": r.PostFormValue("redirect_uri"),
			"grant_type":   r.PostFormValue("grant_type"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "at",
			"refresh_token": "rt",
			"expires_in": 3600,
			"scope": "Mail.Read",
			"token_type": "Bearer"
		}`))
	})

	result, xerr := x.Exchange(context.Background(), "auth-code", "http://localhost:8080/callback")
	require.Nil(t, xerr)

	assert.Equal(t, "rt", result.RefreshToken)
	assert.Equal(t, "at", result.AccessToken)
	assert.Equal(t, 3600, result.ExpiresIn)
	assert.Equal(t, "Bearer", result.TokenType)
	assert.WithinDuration(t, time.Now().UTC(), result.ObtainedAt, 5*time.Second)

	assert.Equal(t, map[string]string{
		"client_id":    "client-123",
		"scope":        "offline_access Mail.Read",
		"code":         "auth-code",
		"redirect_uri": "http://localhost:8080/callback",
		"grant_type":   "authorization_code",
	}, gotForm)
}

func TestExchangeBodyWithoutRefreshToken(t *testing.T) {
	body := `{"error":"invalid_grant","error_description":"AADSTS70008: expired"}`
	x := newTestExchanger(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(body))
	})

	result, xerr := x.Exchange(context.Background(), "stale-code", "http://h/cb")
	assert.Nil(t, result)
	require.NotNil(t, xerr)
	assert.Equal(t, KindTokenExchangeFailed, xerr.Kind)
	assert.Equal(t, body, xerr.RawBody)
}

func TestExchangeUnparseableBodyIsRequestFailed(t *testing.T) {
	x := newTestExchanger(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway timeout</html>"))
	})

	result, xerr := x.Exchange(context.Background(), "code", "http://h/cb")
	assert.Nil(t, result)
	require.NotNil(t, xerr)
	assert.Equal(t, KindRequestFailed, xerr.Kind)
}

func TestExchangeTransportFaultIsRequestFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	x := NewExchanger(config.OAuthConfig{
		ClientID:        "c",
		Authority:       srv.URL,
		Scopes:          "s",
		ExchangeTimeout: time.Second,
	}, zap.NewNop())

	result, xerr := x.Exchange(context.Background(), "code", "http://h/cb")
	assert.Nil(t, result)
	require.NotNil(t, xerr)
	assert.Equal(t, KindRequestFailed, xerr.Kind)
	assert.NotEmpty(t, xerr.Message)
}
