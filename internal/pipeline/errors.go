package pipeline

import "errors"

// Sentinel errors for generation. Callers match with errors.Is.
var (
	// ErrUnknownMode indicates a mode name outside pure/creative/hybrid.
	ErrUnknownMode = errors.New("unknown generation mode")

	// ErrGenerationFailed indicates the model call failed after any retry.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrTimeout indicates the generation deadline elapsed.
	ErrTimeout = errors.New("generation timed out")

	// ErrEmptyQuery indicates a query with no text.
	ErrEmptyQuery = errors.New("query text is empty")

	// ErrNilTenant indicates a query without a resolved tenant.
	ErrNilTenant = errors.New("query has no tenant")
)
