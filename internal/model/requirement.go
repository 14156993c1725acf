package model

type RequirementType string

const (
	RequirementRepoRequest    RequirementType = "repo-request"
	RequirementRemoveRepo     RequirementType = "remove-repo"
	RequirementFeatureRequest RequirementType = "feature-request"
	RequirementConfigUpdate   RequirementType = "config-update"
	RequirementSearchTerms    RequirementType = "search-terms"
)

// Requirement is one typed signal extracted from issue text.
//
// Data keys by type:
//   - repo-request, remove-repo: "repository" (string, owner/name)
//   - feature-request: "feature" (string)
//   - config-update: "config" (map[string]any), "format" (string)
//   - search-terms: "terms" ([]string)
type Requirement struct {
	Data       map[string]any  `json:"data"`
	Type       RequirementType `json:"type"`
	SourceText string          `json:"source_text"`
	Confidence float64         `json:"confidence"`
}

// IssueType is the kind of request an issue represents.
type IssueType string

const (
	IssueTypeRepoRequest    IssueType = "repo-request"
	IssueTypeFeatureRequest IssueType = "feature-request"
	IssueTypeBugReport      IssueType = "bug-report"
	IssueTypeConfigUpdate   IssueType = "config-update"
	IssueTypeUnknown        IssueType = "unknown"
)
