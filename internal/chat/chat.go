// Package chat orchestrates one question/answer exchange.
//
// The orchestrator is stateless between requests: it walks a fixed state
// machine per question, touching the retrieval, generation, transcript and
// user components through narrow consumer-side contracts. It never lets a
// backend failure escape; every outcome maps to a well-formed Response with
// one of the defined statuses.
package chat

import (
	"context"
	"errors"
)

// ErrUserNotFound gates the chat operation: questions from unregistered user
// ids are rejected before any retrieval work.
var ErrUserNotFound = errors.New("user not found")

// Status classifies the outcome of a chat request.
type Status string

const (
	StatusGreeting  Status = "greeting"
	StatusSuccess   Status = "success"
	StatusNoContext Status = "no_context"
	StatusDegraded  Status = "generation_degraded"
	StatusError     Status = "error"
)

// Request is one inbound question.
type Request struct {
	Question  string `json:"question"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// Source attributes part of an answer to an indexed document.
type Source struct {
	Provenance string `json:"provenance"`
	Confidence int    `json:"confidence"`
}

// Response is the answer to one Request. Answer is always non-empty and safe
// to show the user, whatever the status.
type Response struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	Status  Status   `json:"status"`
}

// state names one step of the per-request state machine, for logging.
type state string

const (
	stateReceived       state = "received"
	stateGreeting       state = "greeting"
	stateRetrieving     state = "retrieving"
	stateRetrievedEmpty state = "retrieving_empty"
	stateRetrievedOK    state = "retrieving_ok"
	stateGenerating     state = "generating"
	stateGenerated      state = "generated"
	stateDegraded       state = "degraded"
	statePersisted      state = "persisted"
	stateResponded      state = "responded"
)

// UserDirectory resolves a user id to a display name. Implementations return
// ErrUserNotFound (possibly wrapped) for unknown ids.
type UserDirectory interface {
	Lookup(ctx context.Context, userID string) (string, error)
}
