package persona

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/genius-labs/insight/internal/log"
	"github.com/genius-labs/insight/internal/pipeline"
	"github.com/genius-labs/insight/internal/tenant"
)

// Runner is the generation capability the engine consumes.
type Runner interface {
	Run(ctx context.Context, q pipeline.Query) (*pipeline.GenerationResult, error)
}

// DefaultSurveyWorkers bounds concurrent personas in a survey.
const DefaultSurveyWorkers = 4

// Config tunes the engine.
type Config struct {
	// Mode is the grounding mode persona answers run under.
	Mode pipeline.Mode
	// SurveyWorkers bounds concurrent personas during surveys.
	// Defaults to DefaultSurveyWorkers.
	SurveyWorkers int
}

// Engine drives persona sessions through the generation pipeline.
type Engine struct {
	runner        Runner
	mode          pipeline.Mode
	surveyWorkers int
	logger        log.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewEngine creates an Engine. logger may be nil.
func NewEngine(runner Runner, cfg Config, logger log.Logger) (*Engine, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.SurveyWorkers <= 0 {
		cfg.SurveyWorkers = DefaultSurveyWorkers
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{
		runner:        runner,
		mode:          cfg.Mode,
		surveyWorkers: cfg.SurveyWorkers,
		logger:        logger,
		sessions:      make(map[uuid.UUID]*Session),
	}, nil
}

// Session looks up a session by ID.
func (e *Engine) Session(id uuid.UUID) (*Session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

func (e *Engine) register(s *Session) {
	e.mu.Lock()
	e.sessions[s.ID] = s
	e.mu.Unlock()
}

// StartChat opens a one-on-one session with a persona from the
// tenant's roster.
func (e *Engine) StartChat(ten *tenant.Tenant, personaID string) (*Session, error) {
	if ten == nil {
		return nil, pipeline.ErrNilTenant
	}
	p, err := e.rosterPersona(ten, personaID)
	if err != nil {
		return nil, err
	}

	s := newSession(ten, KindChat, []tenant.Persona{p})
	s.primary = p.ID
	e.register(s)

	e.logger.Info("chat session started",
		"session_id", s.ID, "tenant_id", ten.ID, "persona_id", p.ID)
	return s, nil
}

// AppendTurn runs one chat exchange. The persona's trait profile and
// tone are re-injected into the instructions on every turn so long
// conversations cannot drift out of character.
//
// Exchanges on one session are serialized: a concurrent AppendTurn
// waits for the in-flight one, so its history always includes the
// earlier exchange.
func (e *Engine) AppendTurn(ctx context.Context, s *Session, prompt string) (Turn, error) {
	if s == nil {
		return Turn{}, fmt.Errorf("%w: nil session", ErrSessionNotFound)
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if err := s.checkpoint(); err != nil {
		return Turn{}, err
	}
	p, ok := s.personas[s.primary]
	if !ok {
		return Turn{}, fmt.Errorf("%w: session has no primary persona", ErrPersonaNotFound)
	}

	res, err := e.runner.Run(ctx, pipeline.Query{
		Tenant:            s.ten,
		Mode:              e.mode,
		Text:              prompt,
		History:           toExchanges(s.historyFor(p.ID)),
		PersonaDirectives: directivesFor(p),
	})
	if err != nil {
		return Turn{}, err
	}
	return s.append(p.ID, prompt, res.Text, "")
}

// Answer is one persona's response to one survey question.
type Answer struct {
	Question string
	Response string
}

// SurveyResult holds per-persona answer sequences. A persona that
// failed mid-survey appears in Failures; its completed answers remain
// in Responses.
type SurveyResult struct {
	Session   *Session
	Responses map[string][]Answer
	Failures  map[string]error
}

// RunSurvey asks every persona the same questions, each persona
// answering independently. Personas run concurrently under a worker
// bound; one persona failing never stops the others.
func (e *Engine) RunSurvey(ctx context.Context, ten *tenant.Tenant, personaIDs, questions []string) (*SurveyResult, error) {
	if ten == nil {
		return nil, pipeline.ErrNilTenant
	}
	if len(personaIDs) == 0 {
		return nil, ErrNoPersonas
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	personas, err := e.rosterPersonas(ten, personaIDs)
	if err != nil {
		return nil, err
	}

	s := newSession(ten, KindSurvey, personas)
	e.register(s)

	result := &SurveyResult{
		Session:   s,
		Responses: make(map[string][]Answer, len(personas)),
		Failures:  make(map[string]error),
	}
	var resultMu sync.Mutex

	sem := make(chan struct{}, e.surveyWorkers)
	var wg sync.WaitGroup
	for _, p := range personas {
		wg.Add(1)
		go func(p tenant.Persona) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			answers, err := e.surveyPersona(ctx, s, p, questions)
			resultMu.Lock()
			defer resultMu.Unlock()
			if len(answers) > 0 {
				result.Responses[p.ID] = answers
			}
			if err != nil {
				result.Failures[p.ID] = err
				e.logger.Warn("survey persona failed",
					"session_id", s.ID, "persona_id", p.ID, "error", err)
			}
		}(p)
	}
	wg.Wait()

	if err := s.checkpoint(); err != nil {
		return result, err
	}
	s.complete()
	e.logger.Info("survey completed",
		"session_id", s.ID, "tenant_id", ten.ID,
		"personas", len(personas), "failed", len(result.Failures))
	return result, nil
}

// surveyPersona answers all questions for one persona, stopping that
// persona at the first failure or cancellation.
func (e *Engine) surveyPersona(ctx context.Context, s *Session, p tenant.Persona, questions []string) ([]Answer, error) {
	var answers []Answer
	var history []pipeline.Exchange
	for _, q := range questions {
		if err := s.checkpoint(); err != nil {
			return answers, err
		}
		res, err := e.runner.Run(ctx, pipeline.Query{
			Tenant:            s.ten,
			Mode:              e.mode,
			Text:              q,
			History:           history,
			PersonaDirectives: directivesFor(p),
		})
		if err != nil {
			return answers, err
		}
		if _, err := s.append(p.ID, q, res.Text, ""); err != nil {
			return answers, err
		}
		answers = append(answers, Answer{Question: q, Response: res.Text})
		history = append(history, pipeline.Exchange{Prompt: q, Response: res.Text})
	}
	return answers, nil
}

// RunFocusGroup moderates a group discussion: for each agenda item the
// moderator poses the item, then every persona reacts once. A reaction
// can only exist after its moderator turn. Cancellation is observed at
// turn boundaries; turns already made are kept.
func (e *Engine) RunFocusGroup(ctx context.Context, ten *tenant.Tenant, personaIDs, agenda []string) (*Session, error) {
	if ten == nil {
		return nil, pipeline.ErrNilTenant
	}
	if len(personaIDs) == 0 {
		return nil, ErrNoPersonas
	}
	if len(agenda) == 0 {
		return nil, ErrNoAgenda
	}
	personas, err := e.rosterPersonas(ten, personaIDs)
	if err != nil {
		return nil, err
	}

	s := newSession(ten, KindFocusGroup, personas)
	e.register(s)

	for _, item := range agenda {
		if err := s.checkpoint(); err != nil {
			return s, err
		}
		if _, err := s.append(tenant.Moderator, item, "", item); err != nil {
			return s, err
		}
		for _, p := range personas {
			if err := s.checkpoint(); err != nil {
				return s, err
			}
			if _, err := e.React(ctx, s, p.ID, item); err != nil {
				return s, err
			}
		}
	}
	s.complete()

	e.logger.Info("focus group completed",
		"session_id", s.ID, "tenant_id", ten.ID,
		"personas", len(personas), "agenda_items", len(agenda))
	return s, nil
}

// React generates one persona's reaction to an agenda item. The
// moderator must already have posed the item in this session.
func (e *Engine) React(ctx context.Context, s *Session, personaID, agendaItem string) (Turn, error) {
	if s == nil {
		return Turn{}, fmt.Errorf("%w: nil session", ErrSessionNotFound)
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	p, ok := s.personas[personaID]
	if !ok {
		return Turn{}, fmt.Errorf("%w: %q not in session", ErrPersonaNotFound, personaID)
	}
	if !s.hasModeratorTurn(agendaItem) {
		return Turn{}, fmt.Errorf("%w: no moderator turn for agenda item %q", ErrTurnOrderViolation, agendaItem)
	}

	res, err := e.runner.Run(ctx, pipeline.Query{
		Tenant:            s.ten,
		Mode:              e.mode,
		Text:              agendaItem,
		History:           toExchanges(s.historyFor(p.ID)),
		PersonaDirectives: directivesFor(p),
	})
	if err != nil {
		return Turn{}, err
	}
	return s.append(p.ID, agendaItem, res.Text, agendaItem)
}

// rosterPersona resolves one persona from the tenant roster.
func (e *Engine) rosterPersona(ten *tenant.Tenant, personaID string) (tenant.Persona, error) {
	p, ok := ten.PersonaByID(personaID)
	if !ok {
		return tenant.Persona{}, fmt.Errorf("%w: %q (tenant %s)", ErrPersonaNotFound, personaID, ten.ID)
	}
	return p, nil
}

// rosterPersonas resolves all requested personas, failing fast on the
// first unknown ID.
func (e *Engine) rosterPersonas(ten *tenant.Tenant, personaIDs []string) ([]tenant.Persona, error) {
	personas := make([]tenant.Persona, 0, len(personaIDs))
	for _, id := range personaIDs {
		p, err := e.rosterPersona(ten, id)
		if err != nil {
			return nil, err
		}
		personas = append(personas, p)
	}
	return personas, nil
}

// directivesFor renders the persona's character sheet as instructions.
// Trait order is sorted so directives are stable across turns.
func directivesFor(p tenant.Persona) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, a synthetic research participant. Always answer in first person, in character.\n", p.Name)

	if len(p.Traits) > 0 {
		sb.WriteString("Your profile:\n")
		keys := make([]string, 0, len(p.Traits))
		for k := range p.Traits {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %s\n", k, p.Traits[k])
		}
	}
	if p.Tone != "" {
		fmt.Fprintf(&sb, "Speak with a %s tone.\n", p.Tone)
	}
	fmt.Fprintf(&sb, "Never break character or mention being simulated.")
	return sb.String()
}

func toExchanges(in []exchange) []pipeline.Exchange {
	if len(in) == 0 {
		return nil
	}
	out := make([]pipeline.Exchange, len(in))
	for i, ex := range in {
		out[i] = pipeline.Exchange{Prompt: ex.prompt, Response: ex.response}
	}
	return out
}
