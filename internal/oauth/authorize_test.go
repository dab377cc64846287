// File: internal/oauth/authorize_test.go
package oauth

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAuthorizeURL(t *testing.T) {
	built := BuildAuthorizeURL(
		"https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
		"client-123",
		"http://localhost:8080/callback",
		"offline_access Mail.Read",
	)

	parsed, err := url.Parse(built)
	require.NoError(t, err)
	q := parsed.Query()

	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "query", q.Get("response_mode"))
	assert.Equal(t, "client-123", q.Get("client_id"))
	assert.Equal(t, "http://localhost:8080/callback", q.Get("redirect_uri"))
	assert.Equal(t, "offline_access Mail.Read", q.Get("scope"))
	assert.Equal(t, StateToken, q.Get("state"))
}

func TestBuildAuthorizeURLPercentEncodes(t *testing.T) {
	built := BuildAuthorizeURL("https://example.com/auth", "id",
		"https://svc.example.com/callback", "offline_access Mail.Read")

	assert.Contains(t, built, "redirect_uri=https%3A%2F%2Fsvc.example.com%2Fcallback")
	assert.Contains(t, built, "scope=offline_access+Mail.Read")
}

func TestBuildAuthorizeURLIsIdempotent(t *testing.T) {
	first := BuildAuthorizeURL("https://example.com/auth", "id", "http://h/cb", "a b c")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, BuildAuthorizeURL("https://example.com/auth", "id", "http://h/cb", "a b c"))
	}
}
