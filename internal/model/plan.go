package model

import "time"

type PlanType string

const (
	PlanTypeAddRepos     PlanType = "add_repos"
	PlanTypeRemoveRepos  PlanType = "remove_repos"
	PlanTypeUpdateTerms  PlanType = "update_terms"
	PlanTypeUpdateConfig PlanType = "update_config"
	PlanTypeBatch        PlanType = "batch"
)

// Valid reports whether t is one of the known plan types.
func (t PlanType) Valid() bool {
	switch t {
	case PlanTypeAddRepos, PlanTypeRemoveRepos, PlanTypeUpdateTerms, PlanTypeUpdateConfig, PlanTypeBatch:
		return true
	default:
		return false
	}
}

type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusExecuting ExecutionStatus = "executing"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

const (
	MinPriority     = 1
	MaxPriority     = 10
	DefaultPriority = 5
)

// UpdatePlan describes the tracked-state mutations requested by one issue.
// Once ExecutionStatus is completed the plan is never modified again.
type UpdatePlan struct {
	CreatedAt       time.Time       `json:"created_at"`
	ExecutedAt      *time.Time      `json:"executed_at,omitempty"`
	ConfigUpdates   map[string]any  `json:"config_updates,omitempty"`
	Details         map[string]any  `json:"details,omitempty"`
	PlanID          string          `json:"plan_id"`
	PlanType        PlanType        `json:"plan_type"`
	ExecutionStatus ExecutionStatus `json:"execution_status"`
	ReposToAdd      []string        `json:"repos_to_add,omitempty"`
	ReposToRemove   []string        `json:"repos_to_remove,omitempty"`
	TermsToAdd      []string        `json:"terms_to_add,omitempty"`
	TermsToRemove   []string        `json:"terms_to_remove,omitempty"`
	Notes           []string        `json:"notes,omitempty"`
	SourceIssue     int             `json:"source_issue"`
	Priority        int             `json:"priority"`
}

// HasActions reports whether the plan would change anything.
func (p UpdatePlan) HasActions() bool {
	return len(p.ReposToAdd) > 0 ||
		len(p.ReposToRemove) > 0 ||
		len(p.TermsToAdd) > 0 ||
		len(p.TermsToRemove) > 0 ||
		len(p.ConfigUpdates) > 0
}

// ExecutionResult records a single execution attempt of a plan.
type ExecutionResult struct {
	ExecutedAt time.Time      `json:"executed_at"`
	Details    map[string]any `json:"details,omitempty"`
	Error      *string        `json:"error,omitempty"`
	PlanID     string         `json:"plan_id"`
	Message    string         `json:"message"`
	ID         int64          `json:"id"`
	Success    bool           `json:"success"`
}
