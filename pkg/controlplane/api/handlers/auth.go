package handlers

import (
	"errors"
	"time"

	"net/http"

	"github.com/reloadsync/reloadsync/pkg/controlplane/api/auth"
)

// operatorID is the fixed identifier of the single bootstrap admin
// operator account. reloadsyncd has no multi-user operator store; one
// admin account configured at init time authenticates the admin API.
const operatorID = "admin"

// AuthHandler handles the admin API's authentication endpoints, backed by
// a single bootstrap operator account rather than a user store.
type AuthHandler struct {
	username     string
	passwordHash string
	verify       func(password, hash string) bool
	jwtService   *auth.JWTService
}

// NewAuthHandler creates an AuthHandler for the single configured admin
// operator. verify compares a plaintext password against passwordHash
// (bcrypt comparison lives in the parent api package to avoid an import
// cycle back from handlers).
func NewAuthHandler(username, passwordHash string, verify func(password, hash string) bool, jwtService *auth.JWTService) *AuthHandler {
	return &AuthHandler{
		username:     username,
		passwordHash: passwordHash,
		verify:       verify,
		jwtService:   jwtService,
	}
}

// LoginRequest is the request body for POST /api/v1/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the response body for POST /api/v1/auth/login and
// POST /api/v1/auth/refresh.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// RefreshRequest is the request body for POST /api/v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) operator() auth.Operator {
	return auth.Operator{
		ID:       operatorID,
		Username: h.username,
		Role:     "admin",
	}
}

// Login handles POST /api/v1/auth/login: validates the admin operator's
// credentials and issues a fresh access/refresh token pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.Username == "" || req.Password == "" {
		BadRequest(w, "username and password are required")
		return
	}

	if req.Username != h.username || h.passwordHash == "" || !h.verify(req.Password, h.passwordHash) {
		Unauthorized(w, "invalid username or password")
		return
	}

	tokenPair, err := h.jwtService.GenerateTokenPair(h.operator())
	if err != nil {
		InternalServerError(w, "failed to generate token")
		return
	}

	WriteJSONOK(w, loginResponse(tokenPair))
}

// Refresh handles POST /api/v1/auth/refresh: exchanges a valid refresh
// token for a new access/refresh pair.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		BadRequest(w, "refresh_token is required")
		return
	}

	claims, err := h.jwtService.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			Unauthorized(w, "refresh token has expired")
			return
		}
		Unauthorized(w, "invalid refresh token")
		return
	}
	if claims.Username != h.username {
		Unauthorized(w, "unknown operator")
		return
	}

	tokenPair, err := h.jwtService.GenerateTokenPair(h.operator())
	if err != nil {
		InternalServerError(w, "failed to generate token")
		return
	}

	WriteJSONOK(w, loginResponse(tokenPair))
}

// Logout handles POST /api/v1/auth/logout. Tokens are stateless JWTs with
// no server-side revocation list, so logout is a no-op that simply tells
// the client its tokens are no longer valid for its own purposes.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	WriteNoContent(w)
}

func loginResponse(tokenPair *auth.TokenPair) LoginResponse {
	return LoginResponse{
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		TokenType:    tokenPair.TokenType,
		ExpiresIn:    tokenPair.ExpiresIn,
		ExpiresAt:    tokenPair.ExpiresAt,
	}
}
