// Package retrieval wraps the external vector-index query capability
// behind a tenant-safe adapter.
//
// The adapter is the isolation boundary for knowledge lookups: it only
// ever queries the index handle carried by the resolved *tenant.Tenant
// and tags every returned passage with that tenant's identifier. There is
// no code path by which a caller can supply a foreign index handle.
//
// Empty results and failures are distinct: an empty passage slice means
// "nothing relevant" and is a valid ungrounded-generation scenario,
// while ErrUnavailable means the index itself could not answer.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/genius-labs/insight/internal/log"
	"github.com/genius-labs/insight/internal/tenant"
)

// ErrUnavailable indicates the external index failed to answer. It is
// never folded into an empty result so callers can distinguish "no
// relevant data" from "retrieval broken".
var ErrUnavailable = errors.New("retrieval unavailable")

// Provenance records which cutoff admitted a passage. The declaration
// order is the merge order: strict-provenance passages always precede
// relaxed ones regardless of raw score.
type Provenance int

const (
	// ProvenanceStrict marks passages that cleared the strict cutoff.
	ProvenanceStrict Provenance = iota

	// ProvenanceRelaxed marks passages admitted only by the relaxed
	// cutoff (hybrid mode's second pass).
	ProvenanceRelaxed
)

// String returns the provenance name.
func (p Provenance) String() string {
	switch p {
	case ProvenanceStrict:
		return "strict"
	case ProvenanceRelaxed:
		return "relaxed"
	default:
		return "unknown"
	}
}

// Hit is one raw result from the external index capability.
type Hit struct {
	DocumentID string
	Content    string
	Score      float64
	Metadata   map[string]string
}

// Passage is a tenant-tagged retrieval result, ready for context
// assembly. Ephemeral: produced per query, never persisted.
type Passage struct {
	DocumentID string
	Content    string
	Score      float64
	TenantID   string
	Provenance Provenance

	// Citation fields carried from index metadata.
	DocumentName string
	StudyType    string
	Year         string
}

// Searcher is the external vector-index query capability.
// Implementations must scope results to the given index handle and are
// safe for concurrent use.
type Searcher interface {
	Search(ctx context.Context, indexHandle, query string, topK int) ([]Hit, error)
}

// Adapter retrieves tenant-scoped passages with a relevance cutoff.
// Safe for concurrent use.
type Adapter struct {
	searcher Searcher
	timeout  time.Duration
	logger   log.Logger
}

// NewAdapter creates an Adapter. timeout bounds each Search call; zero
// means 10 seconds.
func NewAdapter(searcher Searcher, timeout time.Duration, logger log.Logger) (*Adapter, error) {
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Adapter{searcher: searcher, timeout: timeout, logger: logger}, nil
}

// Retrieve queries the tenant's index and returns passages scoring at or
// above minScore, tagged with prov. Passages below the cutoff are
// dropped, not returned with a zero score. An empty slice is a valid
// result; external-service failures are wrapped in ErrUnavailable.
func (a *Adapter) Retrieve(ctx context.Context, ten *tenant.Tenant, query string, topK int, minScore float64, prov Provenance) ([]Passage, error) {
	if ten == nil {
		return nil, errors.New("tenant is required")
	}

	searchCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	// The handle comes from the resolved tenant and nowhere else.
	hits, err := a.searcher.Search(searchCtx, ten.IndexHandle, query, topK)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: search timeout after %v: %v", ErrUnavailable, a.timeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	passages := make([]Passage, 0, len(hits))
	for _, h := range hits {
		if h.Score < minScore {
			continue
		}
		passages = append(passages, Passage{
			DocumentID:   h.DocumentID,
			Content:      h.Content,
			Score:        h.Score,
			TenantID:     ten.ID,
			Provenance:   prov,
			DocumentName: h.Metadata["document_name"],
			StudyType:    h.Metadata["study_type"],
			Year:         h.Metadata["year"],
		})
	}

	a.logger.Debug("retrieved passages",
		"tenant", ten.ID,
		"hits", len(hits),
		"kept", len(passages),
		"min_score", minScore,
		"provenance", prov.String())

	return passages, nil
}
