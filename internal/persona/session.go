// Package persona simulates synthetic research participants: one-on-one
// chats, mass surveys, and moderated focus groups. Every generated
// answer flows through the tenant's grounding pipeline so personas only
// know what the tenant's research corpus supports.
package persona

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/genius-labs/insight/internal/tenant"
)

// SessionState is the lifecycle state of a session.
type SessionState int

const (
	// StateCreated means no turn has been appended yet.
	StateCreated SessionState = iota
	// StateInProgress means at least one turn exists.
	StateInProgress
	// StateCompleted means the session finished normally.
	StateCompleted
	// StateCancelled means the session was cancelled; partial history
	// is retained.
	StateCancelled
)

func (s SessionState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInProgress:
		return "in_progress"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// SessionKind tells chats, surveys and focus groups apart.
type SessionKind string

const (
	KindChat       SessionKind = "chat"
	KindSurvey     SessionKind = "survey"
	KindFocusGroup SessionKind = "focus_group"
)

// Turn is one exchange in a session. Indices are assigned in append
// order, starting at 0, with no gaps. Speaker is a persona ID or the
// reserved moderator name.
type Turn struct {
	Index      int
	Speaker    string
	Prompt     string
	Response   string
	AgendaItem string // focus groups only; empty otherwise
	CreatedAt  time.Time
}

// Session is an append-only turn sequence owned by one tenant.
// All methods are safe for concurrent use.
type Session struct {
	ID       uuid.UUID
	TenantID string
	Kind     SessionKind

	// personas participating in the session, keyed by ID. Immutable
	// after creation.
	personas map[string]tenant.Persona
	// primary is the single persona of a chat session.
	primary string
	// ten is the owning tenant, kept so turns can run the pipeline.
	ten *tenant.Tenant

	// opMu serializes whole chat exchanges (checkpoint, generation,
	// append) so concurrent callers never build history from a fork of
	// the conversation. Survey workers bypass it: each persona answers
	// on its own history and only the append itself needs ordering.
	opMu sync.Mutex

	mu    sync.Mutex
	state SessionState
	turns []Turn
}

func newSession(ten *tenant.Tenant, kind SessionKind, personas []tenant.Persona) *Session {
	byID := make(map[string]tenant.Persona, len(personas))
	for _, p := range personas {
		byID[p.ID] = p
	}
	return &Session{
		ID:       uuid.New(),
		TenantID: ten.ID,
		Kind:     kind,
		personas: byID,
		ten:      ten,
		state:    StateCreated,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Turns returns a copy of the turn history.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Cancel marks the session cancelled. Running operations observe the
// cancellation at their next turn boundary; turns already appended
// stay. Cancelling a finished session has no effect.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCompleted || s.state == StateCancelled {
		return
	}
	s.state = StateCancelled
}

// checkpoint reports whether another turn may start.
func (s *Session) checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateCancelled:
		return ErrSessionCancelled
	case StateCompleted:
		return ErrSessionCompleted
	}
	return nil
}

// append adds a turn, assigning the next index. The session moves to
// InProgress on the first turn.
func (s *Session) append(speaker, prompt, response, agendaItem string) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateCancelled:
		return Turn{}, ErrSessionCancelled
	case StateCompleted:
		return Turn{}, ErrSessionCompleted
	}

	turn := Turn{
		Index:      len(s.turns),
		Speaker:    speaker,
		Prompt:     prompt,
		Response:   response,
		AgendaItem: agendaItem,
		CreatedAt:  time.Now(),
	}
	s.turns = append(s.turns, turn)
	s.state = StateInProgress
	return turn, nil
}

// complete marks the session finished. A cancelled session stays
// cancelled.
func (s *Session) complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCancelled {
		return
	}
	s.state = StateCompleted
}

// hasModeratorTurn reports whether the moderator already posed the
// given agenda item.
func (s *Session) hasModeratorTurn(agendaItem string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.turns {
		if t.Speaker == tenant.Moderator && t.AgendaItem == agendaItem {
			return true
		}
	}
	return false
}

// historyFor collects the prior exchanges spoken by one persona, in
// turn order. Used to give each persona its own conversational memory.
func (s *Session) historyFor(personaID string) []exchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []exchange
	for _, t := range s.turns {
		if t.Speaker == personaID {
			out = append(out, exchange{prompt: t.Prompt, response: t.Response})
		}
	}
	return out
}

type exchange struct {
	prompt   string
	response string
}
