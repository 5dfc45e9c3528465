package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/copilotd/copilot/internal/log"
	"github.com/copilotd/copilot/internal/user"
)

// Accounts is the slice of the user store the auth endpoints need.
type Accounts interface {
	Create(ctx context.Context, username, email, password string) (user.User, error)
	Authenticate(ctx context.Context, username, password string) (user.User, error)
}

// TokenSigner issues API tokens for authenticated accounts.
type TokenSigner interface {
	TokenVerifier
	Issue(u user.User) (string, error)
}

// AuthHandler serves signup and login.
type AuthHandler struct {
	accounts Accounts
	tokens   TokenSigner
	logger   log.Logger
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(accounts Accounts, tokens TokenSigner, logger log.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, tokens: tokens, logger: logger}
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string    `json:"token"`
	User  user.User `json:"user"`
}

// signup registers a new account.
func (h *AuthHandler) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	u, err := h.accounts.Create(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrDuplicate) {
			writeError(w, http.StatusConflict, "duplicate", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, u)
}

// login exchanges credentials for a signed token.
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	u, err := h.accounts.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
			return
		}
		h.logger.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "login failed")
		return
	}

	token, err := h.tokens.Issue(u)
	if err != nil {
		h.logger.Error("issuing token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "login failed")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: u})
}
