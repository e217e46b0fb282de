// Package tenant implements the tenant registry: the single place that
// maps an explicit identifier or a requester's email domain to an isolated
// tenant configuration.
//
// Registry data is immutable after NewRegistry returns. Resolution is a
// pure lookup, so the registry needs no locking and resolving the same
// identifier twice always yields the same *Tenant. Tenant identity, not a
// process-wide "current tenant" variable, is the isolation boundary:
// every downstream component receives the resolved *Tenant explicitly.
package tenant

import (
	"fmt"
	"strings"

	"github.com/genius-labs/insight/internal/config"
	"github.com/genius-labs/insight/internal/log"
)

// Moderator is the reserved speaker identifier for simulation turns that
// do not belong to a persona. No roster persona may use it.
const Moderator = "moderator"

// Persona is one synthetic profile in a tenant's roster. Read-only during
// simulation; the persona engine re-reads traits on every turn.
type Persona struct {
	TenantID string
	ID       string
	Name     string
	Traits   map[string]string
	Tone     string
}

// Tenant is an isolated client organization. Immutable after load.
type Tenant struct {
	ID          string
	Name        string
	Industry    string
	IndexHandle string

	domains  map[string]struct{}
	modes    map[string]struct{} // empty = all modes enabled
	personas map[string]Persona
	roster   []Persona // stable roster order for listings
}

// ModeEnabled reports whether the named RAG mode is enabled for this
// tenant. A tenant configured with no explicit mode list has all modes.
func (t *Tenant) ModeEnabled(mode string) bool {
	if len(t.modes) == 0 {
		return true
	}
	_, ok := t.modes[strings.ToLower(mode)]
	return ok
}

// EnabledModes lists the enabled mode names in canonical order.
func (t *Tenant) EnabledModes() []string {
	all := []string{"pure", "creative", "hybrid"}
	out := make([]string, 0, len(all))
	for _, m := range all {
		if t.ModeEnabled(m) {
			out = append(out, m)
		}
	}
	return out
}

// PersonaByID returns the roster persona with the given id.
func (t *Tenant) PersonaByID(id string) (Persona, bool) {
	p, ok := t.personas[id]
	return p, ok
}

// Personas returns the roster in configuration order. The returned slice
// is a copy; callers cannot mutate the roster.
func (t *Tenant) Personas() []Persona {
	out := make([]Persona, len(t.roster))
	copy(out, t.roster)
	return out
}

// Domains returns the claimed email domains in sorted-input order.
func (t *Tenant) Domains() []string {
	out := make([]string, 0, len(t.domains))
	for d := range t.domains {
		out = append(out, d)
	}
	return out
}

// Registry resolves tenant identifiers and email domains to tenants.
// Safe for concurrent use: all state is written once in NewRegistry.
type Registry struct {
	byID     map[string]*Tenant
	byDomain map[string]*Tenant
	order    []*Tenant
	logger   log.Logger
}

// NewRegistry builds a registry from tenant configuration and validates
// the startup invariants:
//
//   - tenant ids are unique and non-empty
//   - index handles are unique and non-empty
//   - no email domain is claimed by two tenants
//   - persona ids are unique within a tenant and never "moderator"
//
// Any violation is returned as an error so the process refuses to start
// instead of serving with ambiguous isolation.
func NewRegistry(cfgs []config.TenantConfig, logger log.Logger) (*Registry, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	r := &Registry{
		byID:     make(map[string]*Tenant, len(cfgs)),
		byDomain: make(map[string]*Tenant),
		logger:   logger,
	}
	seenHandles := make(map[string]string, len(cfgs))

	for _, tc := range cfgs {
		id := strings.TrimSpace(tc.ID)
		handle := strings.TrimSpace(tc.IndexHandle)
		if id == "" || handle == "" {
			return nil, fmt.Errorf("%w: id=%q index_handle=%q", ErrInvalidTenant, tc.ID, tc.IndexHandle)
		}
		if _, dup := r.byID[id]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, id)
		}
		if owner, dup := seenHandles[handle]; dup {
			return nil, fmt.Errorf("%w: %q claimed by %q and %q", ErrDuplicateIndexHandle, handle, owner, id)
		}
		seenHandles[handle] = id

		t := &Tenant{
			ID:          id,
			Name:        tc.Name,
			Industry:    tc.Industry,
			IndexHandle: handle,
			domains:     make(map[string]struct{}, len(tc.Domains)),
			modes:       make(map[string]struct{}, len(tc.Modes)),
			personas:    make(map[string]Persona, len(tc.Personas)),
		}

		for _, d := range tc.Domains {
			domain := strings.ToLower(strings.TrimSpace(d))
			if domain == "" {
				continue
			}
			if owner, dup := r.byDomain[domain]; dup {
				return nil, fmt.Errorf("%w: %q claimed by %q and %q",
					ErrAmbiguousTenant, domain, owner.ID, id)
			}
			t.domains[domain] = struct{}{}
			r.byDomain[domain] = t
		}

		for _, m := range tc.Modes {
			t.modes[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
		}

		for _, pc := range tc.Personas {
			pid := strings.TrimSpace(pc.ID)
			if pid == "" || pid == Moderator {
				return nil, fmt.Errorf("%w: tenant %q persona id %q", ErrInvalidTenant, id, pc.ID)
			}
			if _, dup := t.personas[pid]; dup {
				return nil, fmt.Errorf("%w: tenant %q persona %q", ErrDuplicatePersona, id, pid)
			}
			p := Persona{
				TenantID: id,
				ID:       pid,
				Name:     pc.Name,
				Traits:   copyTraits(pc.Traits),
				Tone:     pc.Tone,
			}
			t.personas[pid] = p
			t.roster = append(t.roster, p)
		}

		r.byID[id] = t
		r.order = append(r.order, t)
	}

	logger.Info("tenant registry loaded",
		"tenants", len(r.byID),
		"domains", len(r.byDomain))

	return r, nil
}

// Resolve maps an explicit tenant identifier or a requester email address
// to a tenant. An explicit identifier wins; otherwise the email domain is
// matched exactly against each tenant's domain rules. Returns
// ErrUnknownTenant when nothing matches.
func (r *Registry) Resolve(identifierOrEmail string) (*Tenant, error) {
	s := strings.TrimSpace(identifierOrEmail)
	if s == "" {
		return nil, fmt.Errorf("%w: empty identifier", ErrUnknownTenant)
	}

	if t, ok := r.byID[s]; ok {
		return t, nil
	}

	if at := strings.LastIndexByte(s, '@'); at >= 0 && at < len(s)-1 {
		domain := strings.ToLower(s[at+1:])
		if t, ok := r.byDomain[domain]; ok {
			return t, nil
		}
		return nil, fmt.Errorf("%w: domain %q", ErrUnknownTenant, domain)
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownTenant, s)
}

// All returns every tenant in configuration order.
func (r *Registry) All() []*Tenant {
	out := make([]*Tenant, len(r.order))
	copy(out, r.order)
	return out
}

func copyTraits(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
