// Package orchestrator is the single entry point for tenant-facing
// operations. Every request resolves its tenant first; everything that
// follows is scoped to that tenant's index, roster and mode set.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/genius-labs/insight/internal/imagegen"
	"github.com/genius-labs/insight/internal/index"
	"github.com/genius-labs/insight/internal/log"
	"github.com/genius-labs/insight/internal/persona"
	"github.com/genius-labs/insight/internal/pipeline"
	"github.com/genius-labs/insight/internal/retrieval"
	"github.com/genius-labs/insight/internal/tenant"
)

// Op names a tenant-facing operation.
type Op string

const (
	OpRAG             Op = "rag"
	OpPersonaChat     Op = "persona_chat"
	OpPersonaSurvey   Op = "persona_survey"
	OpFocusGroup      Op = "focus_group"
	OpPersonaValidate Op = "persona_validate"
	OpStats           Op = "stats"
	OpGenerateImage   Op = "generate_image"
	OpExportSession   Op = "export_session"
	OpExportPersonas  Op = "export_personas"
)

// Sentinel errors.
var (
	// ErrUnknownOp indicates an operation name outside the Op set.
	ErrUnknownOp = errors.New("unknown operation")

	// ErrOpUnavailable indicates a known operation whose backing
	// capability was not configured at setup.
	ErrOpUnavailable = errors.New("operation not available")

	// ErrModeDisabled indicates the tenant has not enabled the
	// requested mode.
	ErrModeDisabled = errors.New("mode disabled for tenant")
)

// Request is one tenant-facing call. TenantID accepts an explicit
// tenant identifier or a user email; resolution happens before
// anything else.
type Request struct {
	TenantID string
	Op       Op

	// RAG / chat fields.
	Mode    string
	Text    string
	History []pipeline.Exchange

	// Persona fields.
	PersonaID  string
	PersonaIDs []string
	Questions  []string
	Agenda     []string
	SessionID  uuid.UUID

	// Image fields.
	ImagePrompt string

	// Export fields. Format is "json" or "csv".
	Format string
}

// Response is the typed union of operation results. Only the fields
// for the executed op are set.
type Response struct {
	TenantID string
	Op       Op

	Text     string
	Passages []retrieval.Passage
	Mode     string

	SessionID  uuid.UUID
	Turn       *persona.Turn
	Survey     *persona.SurveyResult
	Transcript []persona.Turn

	Validation *RosterReport
	Stats      *StatsReport
	Image      *imagegen.Image
	Export     *ExportResult
}

// StatsReport is the stats op payload.
type StatsReport struct {
	Index index.Stats `json:"index"`
	Modes []string    `json:"modes"`
}

// StatsProvider is the corpus statistics capability.
type StatsProvider interface {
	Stats(ctx context.Context, indexHandle string) (index.Stats, error)
}

// Runner is the generation capability.
type Runner interface {
	Run(ctx context.Context, q pipeline.Query) (*pipeline.GenerationResult, error)
}

// Orchestrator routes requests to the pipeline, persona engine, index
// stats and image generation.
type Orchestrator struct {
	registry *tenant.Registry
	runner   Runner
	engine   *persona.Engine
	stats    StatsProvider
	images   imagegen.Generator
	logger   log.Logger
}

// New creates an Orchestrator. images and stats may be nil when those
// ops are not served; logger may be nil.
func New(registry *tenant.Registry, runner Runner, engine *persona.Engine, stats StatsProvider, images imagegen.Generator, logger log.Logger) (*Orchestrator, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	if engine == nil {
		return nil, errors.New("persona engine is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Orchestrator{
		registry: registry,
		runner:   runner,
		engine:   engine,
		stats:    stats,
		images:   images,
		logger:   logger,
	}, nil
}

// Handle executes one request. Failures carry the tenant ID and never
// any other tenant's data.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (*Response, error) {
	ten, err := o.registry.Resolve(req.TenantID)
	if err != nil {
		return nil, err
	}

	resp := &Response{TenantID: ten.ID, Op: req.Op}
	switch req.Op {
	case OpRAG:
		err = o.handleRAG(ctx, ten, req, resp)
	case OpPersonaChat:
		err = o.handleChat(ctx, ten, req, resp)
	case OpPersonaSurvey:
		err = o.handleSurvey(ctx, ten, req, resp)
	case OpFocusGroup:
		err = o.handleFocusGroup(ctx, ten, req, resp)
	case OpPersonaValidate:
		err = o.handleValidate(ten, resp)
	case OpStats:
		err = o.handleStats(ctx, ten, resp)
	case OpGenerateImage:
		err = o.handleImage(ctx, ten, req, resp)
	case OpExportSession:
		err = o.handleExportSession(ten, req, resp)
	case OpExportPersonas:
		err = o.handleExportPersonas(ten, req, resp)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownOp, req.Op)
	}
	if err != nil {
		return nil, fmt.Errorf("tenant %s: %w", ten.ID, err)
	}
	return resp, nil
}

func (o *Orchestrator) handleRAG(ctx context.Context, ten *tenant.Tenant, req Request, resp *Response) error {
	mode, err := pipeline.ParseMode(req.Mode)
	if err != nil {
		return err
	}
	if !ten.ModeEnabled(mode.String()) {
		return fmt.Errorf("%w: %s", ErrModeDisabled, mode)
	}

	res, err := o.runner.Run(ctx, pipeline.Query{
		Tenant:  ten,
		Mode:    mode,
		Text:    req.Text,
		History: req.History,
	})
	if err != nil {
		return err
	}
	resp.Text = res.Text
	resp.Passages = res.Passages
	resp.Mode = res.Mode.String()
	return nil
}

// handleChat starts a session on the first call and appends to it on
// subsequent calls carrying the session ID.
func (o *Orchestrator) handleChat(ctx context.Context, ten *tenant.Tenant, req Request, resp *Response) error {
	var (
		s   *persona.Session
		err error
	)
	if req.SessionID == uuid.Nil {
		s, err = o.engine.StartChat(ten, req.PersonaID)
	} else {
		s, err = o.engine.Session(req.SessionID)
		if err == nil && s.TenantID != ten.ID {
			// A session ID from another tenant is indistinguishable
			// from an unknown one.
			err = fmt.Errorf("%w: %s", persona.ErrSessionNotFound, req.SessionID)
		}
	}
	if err != nil {
		return err
	}

	turn, err := o.engine.AppendTurn(ctx, s, req.Text)
	if err != nil {
		return err
	}
	resp.SessionID = s.ID
	resp.Turn = &turn
	resp.Text = turn.Response
	return nil
}

func (o *Orchestrator) handleSurvey(ctx context.Context, ten *tenant.Tenant, req Request, resp *Response) error {
	res, err := o.engine.RunSurvey(ctx, ten, req.PersonaIDs, req.Questions)
	if err != nil {
		return err
	}
	resp.SessionID = res.Session.ID
	resp.Survey = res
	return nil
}

func (o *Orchestrator) handleFocusGroup(ctx context.Context, ten *tenant.Tenant, req Request, resp *Response) error {
	s, err := o.engine.RunFocusGroup(ctx, ten, req.PersonaIDs, req.Agenda)
	if err != nil {
		return err
	}
	resp.SessionID = s.ID
	resp.Transcript = s.Turns()
	return nil
}

func (o *Orchestrator) handleValidate(ten *tenant.Tenant, resp *Response) error {
	report := ValidateRoster(ten)
	resp.Validation = &report
	return nil
}

func (o *Orchestrator) handleStats(ctx context.Context, ten *tenant.Tenant, resp *Response) error {
	if o.stats == nil {
		return fmt.Errorf("%w: stats not configured", ErrOpUnavailable)
	}
	stats, err := o.stats.Stats(ctx, ten.IndexHandle)
	if err != nil {
		return err
	}
	resp.Stats = &StatsReport{
		Index: stats,
		Modes: ten.EnabledModes(),
	}
	return nil
}

// handleImage prefixes the prompt with the tenant's branding context
// before generation.
func (o *Orchestrator) handleImage(ctx context.Context, ten *tenant.Tenant, req Request, resp *Response) error {
	if o.images == nil {
		return fmt.Errorf("%w: image generation not configured", ErrOpUnavailable)
	}
	img, err := o.images.GenerateImage(ctx, brandedPrompt(ten, req.ImagePrompt))
	if err != nil {
		return err
	}
	resp.Image = &img
	return nil
}

// handleExportSession renders a session transcript for download. The
// session must belong to the resolved tenant.
func (o *Orchestrator) handleExportSession(ten *tenant.Tenant, req Request, resp *Response) error {
	s, err := o.engine.Session(req.SessionID)
	if err == nil && s.TenantID != ten.ID {
		// A session ID from another tenant is indistinguishable from an
		// unknown one.
		err = fmt.Errorf("%w: %s", persona.ErrSessionNotFound, req.SessionID)
	}
	if err != nil {
		return err
	}
	export, err := exportSession(ten, s, req.Format)
	if err != nil {
		return err
	}
	resp.SessionID = s.ID
	resp.Export = export
	return nil
}

// handleExportPersonas renders the tenant's roster, or the subset named
// by PersonaIDs, for download.
func (o *Orchestrator) handleExportPersonas(ten *tenant.Tenant, req Request, resp *Response) error {
	export, err := exportPersonas(ten, req.PersonaIDs, req.Format)
	if err != nil {
		return err
	}
	resp.Export = export
	return nil
}

// brandedPrompt applies the tenant's brand context to an image prompt.
func brandedPrompt(ten *tenant.Tenant, prompt string) string {
	if prompt == "" {
		return ""
	}
	return fmt.Sprintf("Brand context: %s, %s industry. %s", ten.Name, ten.Industry, prompt)
}
