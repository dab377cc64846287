// File: internal/oauth/token.go
package oauth

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tokensmith/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Exchange failure kinds, surfaced to callers as stable strings.
const (
	// KindTokenExchangeFailed means the provider answered but the body
	// carried no refresh token.
	KindTokenExchangeFailed = "TOKEN_EXCHANGE_FAILED"

	// KindRequestFailed is a transport-level fault: timeout, connection
	// failure, or a body that is not valid JSON.
	KindRequestFailed = "REQUEST_FAILED"
)

// ExchangeError is a terminal token-exchange failure. RawBody carries the
// provider's response verbatim for diagnostics when one was received.
type ExchangeError struct {
	Kind    string
	Message string
	RawBody string
}

func (e *ExchangeError) Error() string {
	return e.Kind + ": " + e.Message
}

// TokenResult is the normalized success record returned to the caller.
type TokenResult struct {
	RefreshToken string    `json:"refresh_token"`
	AccessToken  string    `json:"access_token"`
	ExpiresIn    int       `json:"expires_in"`
	Scope        string    `json:"scope"`
	TokenType    string    `json:"token_type"`
	ObtainedAt   time.Time `json:"obtained_at"`
}

// Exchanger performs the authorization-code grant against the provider's
// token endpoint. One synchronous POST per session, no retries.
type Exchanger struct {
	endpoint string
	clientID string
	scopes   string
	client   *http.Client
	logger   *zap.Logger
}

// NewExchanger builds an exchanger from the OAuth configuration.
func NewExchanger(cfg config.OAuthConfig, logger *zap.Logger) *Exchanger {
	timeout := cfg.ExchangeTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Exchanger{
		endpoint: cfg.TokenEndpoint(),
		clientID: cfg.ClientID,
		scopes:   cfg.Scopes,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.Named("oauth"),
	}
}

// Exchange trades the authorization code for tokens. The presence of a
// refresh token in the response decides success: a 200 without one is still
// a failure, carrying the raw body so the caller can see what the provider
// actually said.
func (x *Exchanger) Exchange(ctx context.Context, code, redirectURI string) (*TokenResult, *ExchangeError) {
	x.logger.Info("Exchanging authorization code for tokens.")

	form := url.Values{}
	form.Set("client_id", x.clientID)
	form.Set("scope", x.scopes)
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("grant_type", "authorization_code")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &ExchangeError{Kind: KindRequestFailed, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := x.client.Do(req)
	if err != nil {
		x.logger.Error("Token endpoint request failed.", zap.Error(err))
		return nil, &ExchangeError{Kind: KindRequestFailed, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ExchangeError{Kind: KindRequestFailed, Message: err.Error()}
	}

	var result TokenResult
	if err := json.Unmarshal(body, &result); err != nil {
		x.logger.Error("Token endpoint returned an unparseable body.",
			zap.Int("status", resp.StatusCode), zap.Error(err))
		return nil, &ExchangeError{
			Kind:    KindRequestFailed,
			Message: "token endpoint returned an unparseable body: " + err.Error(),
			RawBody: string(body),
		}
	}

	if result.RefreshToken == "" {
		x.logger.Error("Token response carried no refresh token.",
			zap.Int("status", resp.StatusCode))
		return nil, &ExchangeError{
			Kind:    KindTokenExchangeFailed,
			Message: "token response did not include a refresh token",
			RawBody: string(body),
		}
	}

	result.ObtainedAt = time.Now().UTC()
	x.logger.Info("Token exchange succeeded.",
		zap.Int("expires_in", result.ExpiresIn),
		zap.String("token_type", result.TokenType))
	x.logTokenClaims(result.AccessToken)

	return &result, nil
}

// logTokenClaims peeks at the access token's claims for debug logging. The
// token is parsed without signature verification and never influences the
// result; validation belongs to whoever consumes the tokens.
func (x *Exchanger) logTokenClaims(accessToken string) {
	if accessToken == "" || !x.logger.Core().Enabled(zap.DebugLevel) {
		return
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		x.logger.Debug("Access token is not a parseable JWT.", zap.Error(err))
		return
	}

	fields := make([]zap.Field, 0, 3)
	for _, key := range []string{"tid", "upn", "aud"} {
		if v, ok := claims[key].(string); ok {
			fields = append(fields, zap.String(key, v))
		}
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		fields = append(fields, zap.Time("exp", exp.Time))
	}
	x.logger.Debug("Access token claims.", fields...)
}
