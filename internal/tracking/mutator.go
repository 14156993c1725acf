package tracking

import "context"

// Mutator changes the tracked repository state. Every operation has set
// semantics and returns only the items it actually changed, so replaying a
// plan is harmless.
type Mutator interface {
	AddRepos(ctx context.Context, repos []string) ([]string, error)
	RemoveRepos(ctx context.Context, repos []string) ([]string, error)
	AddSearchTerms(ctx context.Context, terms []string) ([]string, error)
	RemoveSearchTerms(ctx context.Context, terms []string) ([]string, error)
	// ApplyConfigDelta merges delta into the config section and returns the
	// dotted keys whose value changed.
	ApplyConfigDelta(ctx context.Context, delta map[string]any) ([]string, error)
}

// State is the persisted shape of the tracked state file.
type State struct {
	Config       map[string]any `yaml:"config,omitempty"`
	Repositories []string       `yaml:"repositories"`
	SearchTerms  []string       `yaml:"search_terms"`
}
