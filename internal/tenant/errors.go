package tenant

import "errors"

// Sentinel errors for tenant resolution and registry construction.
// Check with errors.Is.
var (
	// ErrUnknownTenant indicates no tenant matches the identifier or
	// email domain.
	ErrUnknownTenant = errors.New("unknown tenant")

	// ErrAmbiguousTenant indicates two tenants claim the same email
	// domain. This is a configuration error and is fatal at startup;
	// NewRegistry refuses to build rather than resolve ambiguously at
	// request time.
	ErrAmbiguousTenant = errors.New("ambiguous tenant domain")

	// ErrDuplicateID indicates two tenants share an identifier.
	ErrDuplicateID = errors.New("duplicate tenant id")

	// ErrDuplicateIndexHandle indicates two tenants share a knowledge
	// index handle, which would break isolation. Fatal at startup.
	ErrDuplicateIndexHandle = errors.New("duplicate index handle")

	// ErrInvalidTenant indicates a tenant definition is incomplete
	// (missing id or index handle).
	ErrInvalidTenant = errors.New("invalid tenant definition")

	// ErrDuplicatePersona indicates a tenant roster reuses a persona id.
	ErrDuplicatePersona = errors.New("duplicate persona id")
)
