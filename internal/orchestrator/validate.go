package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/genius-labs/insight/internal/tenant"
)

// RosterReport is the persona-validation payload: roster integrity
// findings plus a trait diversity measure.
type RosterReport struct {
	TenantID     string   `json:"tenant_id"`
	PersonaCount int      `json:"persona_count"`
	Issues       []string `json:"issues,omitempty"`
	// DiversityRatio is distinct trait profiles over roster size, in
	// (0, 1]. A low ratio means personas that will answer alike.
	DiversityRatio float64 `json:"diversity_ratio"`
}

// Valid reports whether the roster passed with no findings.
func (r RosterReport) Valid() bool {
	return len(r.Issues) == 0
}

// ValidateRoster checks a tenant's persona roster: every persona needs
// traits and a tone to produce differentiated answers, names must not
// collide, and the roster should not collapse into identical profiles.
func ValidateRoster(ten *tenant.Tenant) RosterReport {
	roster := ten.Personas()
	report := RosterReport{
		TenantID:     ten.ID,
		PersonaCount: len(roster),
	}
	if len(roster) == 0 {
		report.Issues = append(report.Issues, "roster is empty")
		return report
	}

	seenNames := make(map[string]string, len(roster))
	signatures := make(map[string]struct{}, len(roster))
	for _, p := range roster {
		if len(p.Traits) == 0 {
			report.Issues = append(report.Issues,
				fmt.Sprintf("persona %q has no traits", p.ID))
		}
		if p.Tone == "" {
			report.Issues = append(report.Issues,
				fmt.Sprintf("persona %q has no tone", p.ID))
		}
		lower := strings.ToLower(p.Name)
		if other, dup := seenNames[lower]; dup {
			report.Issues = append(report.Issues,
				fmt.Sprintf("personas %q and %q share the name %q", other, p.ID, p.Name))
		} else if p.Name != "" {
			seenNames[lower] = p.ID
		}
		signatures[traitSignature(p)] = struct{}{}
	}

	report.DiversityRatio = float64(len(signatures)) / float64(len(roster))
	if report.DiversityRatio < 0.5 {
		report.Issues = append(report.Issues,
			fmt.Sprintf("trait diversity %.2f: most personas share identical profiles", report.DiversityRatio))
	}
	return report
}

// traitSignature renders a persona's traits deterministically so equal
// profiles hash identically.
func traitSignature(p tenant.Persona) string {
	keys := make([]string, 0, len(p.Traits))
	for k := range p.Traits {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(p.Traits[k])
		sb.WriteByte(';')
	}
	sb.WriteString("tone=")
	sb.WriteString(p.Tone)
	return sb.String()
}
