package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/copilotd/copilot/internal/chat"
	"github.com/copilotd/copilot/internal/log"
)

// Orchestrator answers chat questions.
type Orchestrator interface {
	Ask(ctx context.Context, req chat.Request) (chat.Response, error)
}

// ChatHandler serves POST /api/chat.
type ChatHandler struct {
	orchestrator Orchestrator
	logger       log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(orchestrator Orchestrator, logger log.Logger) *ChatHandler {
	return &ChatHandler{orchestrator: orchestrator, logger: logger}
}

type chatRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

// ask answers one question for the authenticated user.
func (h *ChatHandler) ask(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing token claims")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Question) == "" || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "question and session_id are required")
		return
	}

	resp, err := h.orchestrator.Ask(r.Context(), chat.Request{
		Question:  req.Question,
		UserID:    claims.Subject,
		SessionID: req.SessionID,
	})
	if err != nil {
		if errors.Is(err, chat.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "unknown user")
			return
		}
		h.logger.Error("chat request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "chat request failed")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
