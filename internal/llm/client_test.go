package llm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/firebase/genkit/go/genkit"

	"github.com/genius-labs/insight/internal/log"
	"github.com/genius-labs/insight/internal/pipeline"
	"github.com/genius-labs/insight/internal/retrieval"
	"github.com/genius-labs/insight/internal/testutil"
)

func newTestClient(t *testing.T) (*Client, *testutil.MockLLM) {
	t.Helper()
	g := genkit.Init(context.Background())
	mock := testutil.NewMockLLM("fallback answer")
	mock.RegisterModel(g)

	client, err := New(g, Config{ModelName: "mock/test-model"}, log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client, mock
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, Config{ModelName: "m"}, nil); err == nil {
		t.Error("nil genkit accepted")
	}
	g := genkit.Init(context.Background())
	if _, err := New(g, Config{}, nil); err == nil {
		t.Error("empty model name accepted")
	}
}

func TestGenerate(t *testing.T) {
	client, mock := newTestClient(t)
	mock.AddResponse("churn", "Churn is driven by price sensitivity.")

	text, err := client.Generate(context.Background(), pipeline.GenerateRequest{
		Instructions: "Answer from research only.",
		Text:         "what drives churn?",
		Temperature:  0,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "Churn is driven by price sensitivity." {
		t.Errorf("text %q", text)
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("%d model calls, want 1", len(calls))
	}
	if calls[0].UserMessage != "what drives churn?" {
		t.Errorf("user message %q", calls[0].UserMessage)
	}
	if !strings.Contains(calls[0].System, "research only") {
		t.Errorf("system prompt %q missing instructions", calls[0].System)
	}
}

func TestGenerateWithHistory(t *testing.T) {
	client, mock := newTestClient(t)

	_, err := client.Generate(context.Background(), pipeline.GenerateRequest{
		Instructions: "sys",
		History: []pipeline.Exchange{
			{Prompt: "first question", Response: "first answer"},
		},
		Text: "follow-up question",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// The current text must be the last user message the model sees.
	calls := mock.Calls()
	if calls[0].UserMessage != "follow-up question" {
		t.Errorf("last user message %q", calls[0].UserMessage)
	}
}

func TestGenerateWithPassages(t *testing.T) {
	client, mock := newTestClient(t)
	mock.AddResponse("question", "grounded answer")

	_, err := client.Generate(context.Background(), pipeline.GenerateRequest{
		Instructions: "sys",
		Text:         "question about brand",
		Context: []retrieval.Passage{
			{DocumentID: "d1", Content: "brand tracking finding", Score: 0.8,
				Provenance: retrieval.ProvenanceStrict, DocumentName: "Wave 3", Year: "2024"},
		},
	})
	if err != nil {
		t.Fatalf("Generate with docs: %v", err)
	}
	if len(mock.Calls()) != 1 {
		t.Fatalf("model not called")
	}
}

func TestGenerateCircuitOpenShortCircuits(t *testing.T) {
	client, mock := newTestClient(t)

	// Force the breaker open; the model must not be called.
	for i := 0; i < DefaultCircuitBreakerConfig().FailureThreshold; i++ {
		client.breaker.Failure()
	}
	_, err := client.Generate(context.Background(), pipeline.GenerateRequest{Text: "q"})
	if err == nil || client.BreakerState() != CircuitOpen {
		t.Fatalf("err = %v, state = %v", err, client.BreakerState())
	}
	if len(mock.Calls()) != 0 {
		t.Error("model called while circuit open")
	}
}

func TestBuildMessages(t *testing.T) {
	msgs := buildMessages([]pipeline.Exchange{
		{Prompt: "q1", Response: "a1"},
		{Prompt: "q2", Response: "a2"},
	}, "q3")

	if len(msgs) != 5 {
		t.Fatalf("%d messages, want 5", len(msgs))
	}
	if msgs[0].Text() != "q1" || msgs[1].Text() != "a1" || msgs[4].Text() != "q3" {
		t.Errorf("message order wrong: %q %q %q", msgs[0].Text(), msgs[1].Text(), msgs[4].Text())
	}
}

func TestBuildDocs(t *testing.T) {
	docs := buildDocs([]retrieval.Passage{
		{DocumentID: "d1", Content: "finding", Score: 0.7,
			Provenance: retrieval.ProvenanceRelaxed, StudyType: "tracking"},
	})
	if len(docs) != 1 {
		t.Fatalf("%d docs", len(docs))
	}
	if docs[0].Metadata["provenance"] != "relaxed" {
		t.Errorf("provenance metadata %v", docs[0].Metadata["provenance"])
	}
	if docs[0].Metadata["study_type"] != "tracking" {
		t.Errorf("study_type metadata %v", docs[0].Metadata["study_type"])
	}
}

func TestGenerateThrottled(t *testing.T) {
	g := genkit.Init(context.Background())
	mock := testutil.NewMockLLM("answer")
	mock.RegisterModel(g)

	// Burst 1 at 50 req/s: three calls need two limiter waits, so the
	// batch cannot finish faster than 40ms.
	client, err := New(g, Config{
		ModelName:         "mock/test-model",
		RequestsPerSecond: 50,
		Burst:             1,
	}, log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Now()
	for range 3 {
		if _, err := client.Generate(context.Background(), pipeline.GenerateRequest{Text: "q"}); err != nil {
			t.Fatalf("Generate: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("three calls finished in %v, limiter not applied", elapsed)
	}
	if got := len(mock.Calls()); got != 3 {
		t.Errorf("%d model calls, want 3", got)
	}
}

func TestGenerateThrottleCancelled(t *testing.T) {
	g := genkit.Init(context.Background())
	mock := testutil.NewMockLLM("answer")
	mock.RegisterModel(g)

	client, err := New(g, Config{
		ModelName:         "mock/test-model",
		RequestsPerSecond: 0.001, // next token is ~17 minutes away
		Burst:             1,
	}, log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// First call consumes the burst token.
	if _, err := client.Generate(context.Background(), pipeline.GenerateRequest{Text: "q"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := client.Generate(ctx, pipeline.GenerateRequest{Text: "q"}); err == nil {
		t.Error("expected rate limit wait to fail on cancelled context")
	}
	if got := len(mock.Calls()); got != 1 {
		t.Errorf("%d model calls, want 1 (second call must not reach the model)", got)
	}
}
