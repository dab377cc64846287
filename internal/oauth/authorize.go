// File: internal/oauth/authorize.go

// Package oauth covers the two provider touchpoints outside the browser:
// composing the authorize URL the automation navigates to, and exchanging
// the resulting authorization code for tokens.
package oauth

import "net/url"

// StateToken is the fixed anti-CSRF state value carried through the
// authorize redirect. It is never validated on return, so the only
// requirement is that it stays byte-identical across calls in one session.
const StateToken = "12345"

// BuildAuthorizeURL composes the provider's authorize-endpoint URL. Pure
// string composition: identical inputs always yield byte-identical URLs.
func BuildAuthorizeURL(endpoint, clientID, redirectURI, scopes string) string {
	q := url.Values{}
	q.Set("client_id", clientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", redirectURI)
	q.Set("response_mode", "query")
	q.Set("scope", scopes)
	q.Set("state", StateToken)

	return endpoint + "?" + q.Encode()
}
