package orchestrator

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/genius-labs/insight/internal/persona"
	"github.com/genius-labs/insight/internal/tenant"
)

// ErrUnknownFormat indicates an export format outside json/csv.
var ErrUnknownFormat = errors.New("unknown export format")

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// ExportResult is a rendered export ready for download by the caller.
type ExportResult struct {
	Format   string `json:"format"`
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// sessionExport is the JSON shape of a transcript export.
type sessionExport struct {
	TenantID   string       `json:"tenant_id"`
	SessionID  string       `json:"session_id"`
	Kind       string       `json:"kind"`
	State      string       `json:"state"`
	ExportedAt time.Time    `json:"exported_at"`
	Turns      []turnExport `json:"turns"`
}

type turnExport struct {
	Index      int       `json:"index"`
	Speaker    string    `json:"speaker"`
	Prompt     string    `json:"prompt"`
	Response   string    `json:"response"`
	AgendaItem string    `json:"agenda_item,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// exportSession renders a session transcript. The session must belong
// to the resolved tenant; a foreign session ID reads as unknown.
func exportSession(ten *tenant.Tenant, s *persona.Session, format string) (*ExportResult, error) {
	turns := s.Turns()
	now := time.Now()

	switch format {
	case FormatJSON:
		export := sessionExport{
			TenantID:   ten.ID,
			SessionID:  s.ID.String(),
			Kind:       string(s.Kind),
			State:      s.State().String(),
			ExportedAt: now,
			Turns:      make([]turnExport, 0, len(turns)),
		}
		for _, t := range turns {
			export.Turns = append(export.Turns, turnExport{
				Index:      t.Index,
				Speaker:    t.Speaker,
				Prompt:     t.Prompt,
				Response:   t.Response,
				AgendaItem: t.AgendaItem,
				CreatedAt:  t.CreatedAt,
			})
		}
		data, err := json.MarshalIndent(export, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal session export: %w", err)
		}
		return newExportResult(FormatJSON, "session", now, data), nil

	case FormatCSV:
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		records := [][]string{{"index", "speaker", "agenda_item", "prompt", "response"}}
		for _, t := range turns {
			records = append(records, []string{
				strconv.Itoa(t.Index), t.Speaker, t.AgendaItem, t.Prompt, t.Response,
			})
		}
		if err := w.WriteAll(records); err != nil {
			return nil, fmt.Errorf("write session csv: %w", err)
		}
		return newExportResult(FormatCSV, "session", now, buf.Bytes()), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// rosterExport is the JSON shape of a persona export.
type rosterExport struct {
	TenantID      string          `json:"tenant_id"`
	ExportedAt    time.Time       `json:"exported_at"`
	TotalPersonas int             `json:"total_personas"`
	Personas      []personaExport `json:"personas"`
}

type personaExport struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Tone   string            `json:"tone"`
	Traits map[string]string `json:"traits"`
}

// exportPersonas renders the tenant's persona profiles. An empty
// personaIDs list exports the whole roster; an unknown ID fails rather
// than silently exporting a subset.
func exportPersonas(ten *tenant.Tenant, personaIDs []string, format string) (*ExportResult, error) {
	var roster []tenant.Persona
	if len(personaIDs) == 0 {
		roster = ten.Personas()
	} else {
		for _, id := range personaIDs {
			p, ok := ten.PersonaByID(id)
			if !ok {
				return nil, fmt.Errorf("%w: %q", persona.ErrPersonaNotFound, id)
			}
			roster = append(roster, p)
		}
	}
	now := time.Now()

	switch format {
	case FormatJSON:
		export := rosterExport{
			TenantID:      ten.ID,
			ExportedAt:    now,
			TotalPersonas: len(roster),
			Personas:      make([]personaExport, 0, len(roster)),
		}
		for _, p := range roster {
			export.Personas = append(export.Personas, personaExport{
				ID: p.ID, Name: p.Name, Tone: p.Tone, Traits: p.Traits,
			})
		}
		data, err := json.MarshalIndent(export, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal persona export: %w", err)
		}
		return newExportResult(FormatJSON, "personas", now, data), nil

	case FormatCSV:
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		records := [][]string{{"id", "name", "tone", "traits"}}
		for _, p := range roster {
			records = append(records, []string{p.ID, p.Name, p.Tone, flattenTraits(p.Traits)})
		}
		if err := w.WriteAll(records); err != nil {
			return nil, fmt.Errorf("write persona csv: %w", err)
		}
		return newExportResult(FormatCSV, "personas", now, buf.Bytes()), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

func newExportResult(format, subject string, now time.Time, data []byte) *ExportResult {
	mime := "application/json"
	if format == FormatCSV {
		mime = "text/csv"
	}
	return &ExportResult{
		Format:   format,
		Filename: fmt.Sprintf("insight_%s_%s.%s", subject, now.Format("20060102_150405"), format),
		MIMEType: mime,
		Data:     data,
	}
}

// flattenTraits renders traits as sorted key=value pairs for one CSV
// cell.
func flattenTraits(traits map[string]string) string {
	keys := make([]string, 0, len(traits))
	for k := range traits {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+traits[k])
	}
	return strings.Join(pairs, "; ")
}
