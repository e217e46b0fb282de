package persona

import "errors"

// Sentinel errors for persona sessions. Callers match with errors.Is().
var (
	// ErrPersonaNotFound indicates an ID absent from the tenant's roster.
	ErrPersonaNotFound = errors.New("persona not found")

	// ErrSessionNotFound indicates an unknown session ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionCancelled indicates the session was cancelled; no
	// further turns may be appended.
	ErrSessionCancelled = errors.New("session cancelled")

	// ErrSessionCompleted indicates the session already finished.
	ErrSessionCompleted = errors.New("session completed")

	// ErrTurnOrderViolation indicates a reaction was attempted before
	// the moderator turn it responds to.
	ErrTurnOrderViolation = errors.New("turn order violation")

	// ErrNoPersonas indicates an operation over an empty persona list.
	ErrNoPersonas = errors.New("no personas given")

	// ErrNoQuestions indicates a survey without questions.
	ErrNoQuestions = errors.New("no questions given")

	// ErrNoAgenda indicates a focus group without agenda items.
	ErrNoAgenda = errors.New("no agenda items given")
)
