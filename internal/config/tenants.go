package config

// TenantConfig declares one isolated tenant: its knowledge index handle,
// the email domains that resolve to it, the RAG modes it may use, and its
// persona roster. Tenants are immutable after load; request handling never
// mutates them.
type TenantConfig struct {
	// ID is the stable tenant identifier (e.g. "tigo-honduras").
	ID string `mapstructure:"id" json:"id"`

	// Name is the human-readable display name.
	Name string `mapstructure:"name" json:"name"`

	// Industry gives the persona and image prompts business context.
	Industry string `mapstructure:"industry" json:"industry"`

	// IndexHandle identifies the tenant's knowledge index. Handles must be
	// unique across tenants; tenant.NewRegistry refuses duplicates.
	IndexHandle string `mapstructure:"index_handle" json:"index_handle"`

	// Domains are the email domains that resolve to this tenant. A domain
	// claimed by two tenants is a fatal configuration error.
	Domains []string `mapstructure:"domains" json:"domains"`

	// Modes lists the enabled RAG modes ("pure", "creative", "hybrid").
	// Empty means all modes are enabled.
	Modes []string `mapstructure:"modes" json:"modes"`

	// Personas is the tenant's synthetic persona roster.
	Personas []PersonaConfig `mapstructure:"personas" json:"personas"`
}

// PersonaConfig declares one synthetic persona in a tenant's roster.
type PersonaConfig struct {
	// ID is unique within the tenant.
	ID string `mapstructure:"id" json:"id"`

	// Name is the persona's display name.
	Name string `mapstructure:"name" json:"name"`

	// Traits holds the demographic and attitudinal profile as key-value
	// pairs (e.g. "age": "34", "service_type": "prepaid").
	Traits map[string]string `mapstructure:"traits" json:"traits"`

	// Tone is a free-form style directive ("informal, skeptical, brief").
	Tone string `mapstructure:"tone" json:"tone"`
}
