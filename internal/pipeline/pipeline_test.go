package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/genius-labs/insight/internal/config"
	"github.com/genius-labs/insight/internal/log"
	"github.com/genius-labs/insight/internal/retrieval"
	"github.com/genius-labs/insight/internal/tenant"
)

type retrieveCall struct {
	topK     int
	minScore float64
	prov     retrieval.Provenance
}

// mockRetriever returns scripted passages per provenance.
type mockRetriever struct {
	strict  []retrieval.Passage
	relaxed []retrieval.Passage
	err     error
	calls   []retrieveCall
}

func (m *mockRetriever) Retrieve(_ context.Context, _ *tenant.Tenant, _ string, topK int, minScore float64, prov retrieval.Provenance) ([]retrieval.Passage, error) {
	m.calls = append(m.calls, retrieveCall{topK: topK, minScore: minScore, prov: prov})
	if m.err != nil {
		return nil, m.err
	}
	if prov == retrieval.ProvenanceRelaxed {
		return m.relaxed, nil
	}
	return m.strict, nil
}

// mockGenerator returns scripted errors before succeeding.
type mockGenerator struct {
	response string
	errs     []error // consumed one per call, nil entries succeed
	delay    time.Duration
	requests []GenerateRequest
}

func (m *mockGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	m.requests = append(m.requests, req)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return m.response, nil
}

func testTenant(t *testing.T) *tenant.Tenant {
	t.Helper()
	r, err := tenant.NewRegistry([]config.TenantConfig{
		{ID: "tigo-honduras", IndexHandle: "tigo-insights", Domains: []string{"tigo-honduras.com"}},
	}, log.NewNop())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	ten, _ := r.Resolve("tigo-honduras")
	return ten
}

func testOptions() Options {
	return Options{
		TopK:        5,
		StrictScore: 0.45,
		RelaxedScore: 0.20,
		Timeout:     time.Second,
		Retry:       DefaultRetryConfig(),
	}
}

func newTestPipeline(t *testing.T, r Retriever, g Generator) *Pipeline {
	t.Helper()
	p, err := New(r, g, testOptions(), log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "pure", want: ModePure},
		{in: "creative", want: ModeCreative},
		{in: "hybrid", want: ModeHybrid},
		{in: "Pure", wantErr: true},
		{in: "", wantErr: true},
		{in: "strict", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownMode) {
				t.Errorf("ParseMode(%q) err = %v, want ErrUnknownMode", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseMode(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestModeTemperature(t *testing.T) {
	if ModePure.Temperature() != 0 {
		t.Error("pure mode must be deterministic")
	}
	if ModeCreative.Temperature() != 0.7 {
		t.Error("creative temperature changed")
	}
	if ModeHybrid.Temperature() != 0.3 {
		t.Error("hybrid temperature changed")
	}
}

func TestRunPureMode(t *testing.T) {
	ten := testTenant(t)
	ret := &mockRetriever{strict: []retrieval.Passage{
		{DocumentID: "d1", Content: "churn findings", Score: 0.8, TenantID: ten.ID},
	}}
	gen := &mockGenerator{response: "Churn rose because of price."}
	p := newTestPipeline(t, ret, gen)

	res, err := p.Run(context.Background(), Query{Tenant: ten, Mode: ModePure, Text: "why churn?"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Text != "Churn rose because of price." {
		t.Errorf("text %q", res.Text)
	}
	if len(res.Passages) != 1 || res.Passages[0].DocumentID != "d1" {
		t.Errorf("passages %+v", res.Passages)
	}
	if res.Mode != ModePure {
		t.Errorf("mode %v", res.Mode)
	}

	if len(ret.calls) != 1 {
		t.Fatalf("pure mode retrieved %d times, want 1", len(ret.calls))
	}
	if ret.calls[0].minScore != 0.45 || ret.calls[0].prov != retrieval.ProvenanceStrict {
		t.Errorf("pure retrieval call %+v", ret.calls[0])
	}

	req := gen.requests[0]
	if req.Temperature != 0 {
		t.Errorf("pure temperature %v", req.Temperature)
	}
	if !strings.Contains(req.Instructions, "decline") {
		t.Error("pure instructions must carry the decline directive")
	}
}

func TestRunPureModeEmptyContextStillDeclineDirected(t *testing.T) {
	ten := testTenant(t)
	ret := &mockRetriever{} // nothing clears the cutoff
	gen := &mockGenerator{response: "The available research does not cover this."}
	p := newTestPipeline(t, ret, gen)

	res, err := p.Run(context.Background(), Query{Tenant: ten, Mode: ModePure, Text: "unrelated question"})
	if err != nil {
		t.Fatalf("empty context must not fail the pipeline: %v", err)
	}
	if len(res.Passages) != 0 {
		t.Errorf("passages %+v", res.Passages)
	}
	if !strings.Contains(gen.requests[0].Instructions, "decline") {
		t.Error("decline directive must be present even with empty context")
	}
}

func TestRunCreativeMode(t *testing.T) {
	ten := testTenant(t)
	ret := &mockRetriever{strict: []retrieval.Passage{{DocumentID: "d1", Score: 0.6}}}
	gen := &mockGenerator{response: "A bold idea."}
	p := newTestPipeline(t, ret, gen)

	_, err := p.Run(context.Background(), Query{Tenant: ten, Mode: ModeCreative, Text: "campaign ideas"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ret.calls) != 1 {
		t.Fatalf("creative mode retrieved %d times, want 1", len(ret.calls))
	}
	if gen.requests[0].Temperature != 0.7 {
		t.Errorf("creative temperature %v", gen.requests[0].Temperature)
	}
}

func TestRunHybridModeMerge(t *testing.T) {
	ten := testTenant(t)
	// d2 clears both cutoffs; merged order must be strict first,
	// relaxed-only after, d2 deduplicated with strict provenance.
	ret := &mockRetriever{
		strict: []retrieval.Passage{
			{DocumentID: "d1", Score: 0.9, Provenance: retrieval.ProvenanceStrict},
			{DocumentID: "d2", Score: 0.5, Provenance: retrieval.ProvenanceStrict},
		},
		relaxed: []retrieval.Passage{
			{DocumentID: "d2", Score: 0.5, Provenance: retrieval.ProvenanceRelaxed},
			{DocumentID: "d3", Score: 0.95, Provenance: retrieval.ProvenanceRelaxed},
		},
	}
	gen := &mockGenerator{response: "[grounded] finding. [inferred] guess."}
	p := newTestPipeline(t, ret, gen)

	res, err := p.Run(context.Background(), Query{Tenant: ten, Mode: ModeHybrid, Text: "q"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(ret.calls) != 2 {
		t.Fatalf("hybrid mode retrieved %d times, want 2", len(ret.calls))
	}
	if ret.calls[0].minScore != 0.45 || ret.calls[1].minScore != 0.20 {
		t.Errorf("cutoffs %+v", ret.calls)
	}

	var ids []string
	for _, p := range res.Passages {
		ids = append(ids, p.DocumentID)
	}
	want := []string{"d1", "d2", "d3"}
	if len(ids) != len(want) {
		t.Fatalf("merged ids %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("merged ids %v, want %v", ids, want)
		}
	}
	// d3 outscores d1 but relaxed provenance keeps it behind.
	if res.Passages[0].Provenance != retrieval.ProvenanceStrict {
		t.Error("first passage must be strict provenance")
	}
	if res.Passages[1].Provenance != retrieval.ProvenanceStrict {
		t.Error("deduplicated passage must keep strict provenance")
	}
	if res.Passages[2].Provenance != retrieval.ProvenanceRelaxed {
		t.Error("relaxed-only passage must keep relaxed provenance")
	}

	if !strings.Contains(gen.requests[0].Instructions, "[grounded]") {
		t.Error("hybrid instructions must require grounding markers")
	}
	if gen.requests[0].Temperature != 0.3 {
		t.Errorf("hybrid temperature %v", gen.requests[0].Temperature)
	}
}

func TestRunRetrievalFailurePropagates(t *testing.T) {
	ten := testTenant(t)
	ret := &mockRetriever{err: retrieval.ErrUnavailable}
	gen := &mockGenerator{response: "never"}
	p := newTestPipeline(t, ret, gen)

	_, err := p.Run(context.Background(), Query{Tenant: ten, Mode: ModePure, Text: "q"})
	if !errors.Is(err, retrieval.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
	if len(gen.requests) != 0 {
		t.Error("generation must not run when retrieval fails")
	}
}

func TestRunRetriesTransientOnce(t *testing.T) {
	ten := testTenant(t)
	ret := &mockRetriever{}
	gen := &mockGenerator{
		response: "recovered",
		errs:     []error{errors.New("503 service unavailable"), nil},
	}
	opts := testOptions()
	opts.Retry.InitialInterval = time.Millisecond
	p, err := New(ret, gen, opts, log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := p.Run(context.Background(), Query{Tenant: ten, Mode: ModePure, Text: "q"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Text != "recovered" {
		t.Errorf("text %q", res.Text)
	}
	if len(gen.requests) != 2 {
		t.Errorf("made %d calls, want 2", len(gen.requests))
	}
}

func TestRunTransientExhaustsRetry(t *testing.T) {
	ten := testTenant(t)
	gen := &mockGenerator{errs: []error{
		errors.New("429 rate limit"),
		errors.New("429 rate limit"),
	}}
	opts := testOptions()
	opts.Retry.InitialInterval = time.Millisecond
	p, _ := New(&mockRetriever{}, gen, opts, log.NewNop())

	_, err := p.Run(context.Background(), Query{Tenant: ten, Mode: ModePure, Text: "q"})
	if !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("err = %v, want ErrGenerationFailed", err)
	}
	if len(gen.requests) != 2 {
		t.Errorf("made %d calls, want 2 (one retry)", len(gen.requests))
	}
}

func TestRunValidationFailureDoesNotRetry(t *testing.T) {
	ten := testTenant(t)
	gen := &mockGenerator{errs: []error{errors.New("invalid request: bad prompt")}}
	p := newTestPipeline(t, &mockRetriever{}, gen)

	_, err := p.Run(context.Background(), Query{Tenant: ten, Mode: ModePure, Text: "q"})
	if !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("err = %v, want ErrGenerationFailed", err)
	}
	if len(gen.requests) != 1 {
		t.Errorf("made %d calls, want 1 (no retry on validation failure)", len(gen.requests))
	}
}

func TestRunGenerationTimeout(t *testing.T) {
	ten := testTenant(t)
	gen := &mockGenerator{delay: 200 * time.Millisecond}
	opts := testOptions()
	opts.Timeout = 20 * time.Millisecond
	p, _ := New(&mockRetriever{}, gen, opts, log.NewNop())

	_, err := p.Run(context.Background(), Query{Tenant: ten, Mode: ModePure, Text: "q"})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}

func TestRunPersonaDirectivesAppended(t *testing.T) {
	ten := testTenant(t)
	gen := &mockGenerator{response: "ok"}
	p := newTestPipeline(t, &mockRetriever{}, gen)

	directives := "You are Maria, a prepaid customer. Stay in character."
	_, err := p.Run(context.Background(), Query{
		Tenant: ten, Mode: ModeHybrid, Text: "q", PersonaDirectives: directives,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(gen.requests[0].Instructions, directives) {
		t.Error("persona directives missing from instructions")
	}
}

func TestRunInputValidation(t *testing.T) {
	ten := testTenant(t)
	p := newTestPipeline(t, &mockRetriever{}, &mockGenerator{response: "ok"})

	if _, err := p.Run(context.Background(), Query{Mode: ModePure, Text: "q"}); !errors.Is(err, ErrNilTenant) {
		t.Errorf("nil tenant err = %v", err)
	}
	if _, err := p.Run(context.Background(), Query{Tenant: ten, Mode: ModePure}); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("empty text err = %v", err)
	}
	if _, err := p.Run(context.Background(), Query{Tenant: ten, Mode: Mode(42), Text: "q"}); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("bad mode err = %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	ret, gen := &mockRetriever{}, &mockGenerator{}

	if _, err := New(nil, gen, testOptions(), nil); err == nil {
		t.Error("nil retriever accepted")
	}
	if _, err := New(ret, nil, testOptions(), nil); err == nil {
		t.Error("nil generator accepted")
	}

	bad := testOptions()
	bad.RelaxedScore = 0.9
	if _, err := New(ret, gen, bad, nil); err == nil {
		t.Error("relaxed cutoff above strict accepted")
	}
}
