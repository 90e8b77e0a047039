package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/bikeshrana/awfes/internal/auth"
	"github.com/bikeshrana/awfes/internal/config"
)

// AuthHandler authenticates the single configured operator identity and
// issues the JWT that protects the run-trigger endpoint. There is no user
// store: this guards one run-control surface, not a multi-tenant API.
type AuthHandler struct {
	jwtService *auth.JWTService
	operator   config.AuthConfig
	logger     zerolog.Logger
}

// NewAuthHandler returns an AuthHandler validating against cfg's operator
// credentials and issuing tokens through jwtService.
func NewAuthHandler(jwtService *auth.JWTService, cfg config.AuthConfig, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{jwtService: jwtService, operator: cfg, logger: logger}
}

// LoginRequest is the Login request body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the Login response body.
type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login authenticates the operator and issues a token pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !h.validOperator(req.Username, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	pair, err := h.jwtService.GenerateTokenPair(r.Context(), h.operator.OperatorUsername, auth.OperatorScopes)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to issue token pair")
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
	})
}

// validOperator compares username/password against the configured operator
// identity in constant time to avoid leaking a timing oracle.
func (h *AuthHandler) validOperator(username, password string) bool {
	if username == "" || password == "" {
		return false
	}
	userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(h.operator.OperatorUsername)) == 1
	passMatch := subtle.ConstantTimeCompare([]byte(password), []byte(h.operator.OperatorPassword)) == 1
	return userMatch && passMatch
}

// RefreshRequest is the RefreshToken request body.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshToken exchanges a valid refresh token for a new token pair.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pair, err := h.jwtService.RefreshAccessToken(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
	})
}

// GetCurrentUser returns the identity of the operator bound to the request's
// validated claims (populated by the auth middleware).
func (h *AuthHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username": claims.Username,
		"scopes":   claims.Scopes,
	})
}
