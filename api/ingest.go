package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/copilotd/copilot/internal/index"
	"github.com/copilotd/copilot/internal/ingest"
	"github.com/copilotd/copilot/internal/log"
)

// Ingestor indexes uploaded documents.
type Ingestor interface {
	Ingest(ctx context.Context, text string, metadata map[string]string) (int, error)
}

// IngestHandler serves POST /api/ingest.
type IngestHandler struct {
	ingestor Ingestor
	logger   log.Logger
}

// NewIngestHandler creates an ingest handler.
func NewIngestHandler(ingestor Ingestor, logger log.Logger) *IngestHandler {
	return &IngestHandler{ingestor: ingestor, logger: logger}
}

type ingestRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

type ingestResponse struct {
	Chunks int `json:"chunks"`
}

// ingest chunks and indexes a document owned by the authenticated user.
func (h *IngestHandler) ingest(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing token claims")
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.Source == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "source is required")
		return
	}

	count, err := h.ingestor.Ingest(r.Context(), req.Text, map[string]string{
		index.MetaSource: req.Source,
		index.MetaOwner:  claims.Subject,
	})
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "invalid_input", "document text is empty")
			return
		}
		if errors.Is(err, index.ErrRebuildInProgress) {
			writeError(w, http.StatusConflict, "rebuild_in_progress", "index rebuild in flight, retry later")
			return
		}
		h.logger.Error("ingestion failed", "source", req.Source, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "ingestion failed")
		return
	}

	writeJSON(w, http.StatusCreated, ingestResponse{Chunks: count})
}
