package api

import (
	"context"
	"net/http"

	"github.com/copilotd/copilot/internal/conversation"
	"github.com/copilotd/copilot/internal/log"
)

// Transcripts is the read side of the conversation store.
type Transcripts interface {
	Read(ctx context.Context, userID, sessionID string) ([]conversation.Turn, error)
	ListSessions(ctx context.Context, userID string) ([]string, error)
}

// HistoryHandler serves the transcript read endpoints.
type HistoryHandler struct {
	transcripts Transcripts
	logger      log.Logger
}

// NewHistoryHandler creates a history handler.
func NewHistoryHandler(transcripts Transcripts, logger log.Logger) *HistoryHandler {
	return &HistoryHandler{transcripts: transcripts, logger: logger}
}

type sessionsResponse struct {
	Sessions []string `json:"sessions"`
}

type transcriptResponse struct {
	SessionID string              `json:"session_id"`
	Turns     []conversation.Turn `json:"turns"`
}

// listSessions returns the caller's session ids. Unknown users get an empty
// list, not an error.
func (h *HistoryHandler) listSessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing token claims")
		return
	}

	sessions, err := h.transcripts.ListSessions(r.Context(), claims.Subject)
	if err != nil {
		h.logger.Error("listing sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "listing sessions failed")
		return
	}

	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: sessions})
}

// readTranscript returns one session's turns in order. Unknown sessions get
// an empty transcript, not an error.
func (h *HistoryHandler) readTranscript(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing token claims")
		return
	}

	sessionID := r.PathValue("id")
	turns, err := h.transcripts.Read(r.Context(), claims.Subject, sessionID)
	if err != nil {
		h.logger.Error("reading transcript", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "reading transcript failed")
		return
	}

	writeJSON(w, http.StatusOK, transcriptResponse{SessionID: sessionID, Turns: turns})
}
