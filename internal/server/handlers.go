// File: internal/server/handlers.go
package server

import (
	"context"
	encodingjson "encoding/json"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tokensmith/internal/automation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// loginRequest is the inbound credential tuple.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// apiError is the normalized failure surfaced to callers.
type apiError struct {
	Status  int
	Kind    string
	Message string
	// RawBody carries the provider's verbatim response when one exists.
	RawBody string
}

// errorResponse is the wire shape of a failure.
type errorResponse struct {
	Error   string                  `json:"error"`
	Message string                  `json:"message"`
	Details encodingjson.RawMessage `json:"details,omitempty"`
}

// handleLogin runs the full browser-driven flow for one credential pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !s.limiter.Allow(ip) {
		s.logger.Warn("Request rate limited.", zap.String("client_ip", ip))
		s.writeError(w, &apiError{
			Status:  http.StatusTooManyRequests,
			Kind:    "RATE_LIMITED",
			Message: "Too many requests from this client.",
		})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		s.writeError(w, &apiError{
			Status:  http.StatusBadRequest,
			Kind:    "INVALID_REQUEST",
			Message: "Could not read request body.",
		})
		return
	}

	var req loginRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, &apiError{
			Status:  http.StatusBadRequest,
			Kind:    "INVALID_REQUEST",
			Message: "Request body must be a JSON object.",
		})
		return
	}
	if req.Email == "" || req.Password == "" {
		s.writeError(w, &apiError{
			Status:  http.StatusBadRequest,
			Kind:    "MISSING_CREDENTIALS",
			Message: "Both email and password are required.",
		})
		return
	}

	release, ok := s.sessionAdmission()
	if !ok {
		s.logger.Warn("Session capacity exhausted.", zap.String("client_ip", ip))
		s.writeError(w, &apiError{
			Status:  http.StatusServiceUnavailable,
			Kind:    "SERVER_BUSY",
			Message: "All automation slots are in use. Retry later.",
		})
		return
	}
	defer release()

	ctx, cancel := context.WithTimeout(r.Context(), s.loginTimeout())
	defer cancel()

	redirectURI := s.redirectURI(r)
	s.logger.Info("Login automation requested.",
		zap.String("client_ip", ip),
		zap.String("redirect_uri", redirectURI))

	result, apiErr := s.runFlow(ctx, redirectURI, automation.Credentials{
		Email:    req.Email,
		Password: req.Password,
	})
	if apiErr != nil {
		s.writeError(w, apiErr)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleCallback is the provider's redirect target. The automation observes
// the code in the browser's address bar; this handler only has to exist and
// answer with something renderable.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "Callback reached. You can close this window.")
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": s.cfg.Logger.ServiceName,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response.", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, apiErr *apiError) {
	resp := errorResponse{Error: apiErr.Kind, Message: apiErr.Message}
	// Attach the provider's body when it is valid JSON; callers diagnosing
	// a failed exchange want the original error_description.
	if apiErr.RawBody != "" && json.Valid([]byte(apiErr.RawBody)) {
		resp.Details = encodingjson.RawMessage(apiErr.RawBody)
	}
	s.writeJSON(w, apiErr.Status, resp)
}
