package webhook

import (
	"strings"

	"basegraph.app/skillflow/internal/model"
)

const (
	LabelRepoRequest    = "repo-request"
	LabelBug            = "bug"
	LabelEnhancement    = "enhancement"
	LabelFeatureRequest = "feature-request"
)

// Categorize maps an event to its processing category. It is total: any
// event type and any payload shape yields exactly one category.
func Categorize(eventType string, payload map[string]any) model.Category {
	switch eventType {
	case "pull_request", "pull_request_review":
		return model.CategorySkillSubmission
	case "issues", "issue_comment":
		return categorizeLabels(IssueLabels(payload))
	default:
		return model.CategoryOther
	}
}

func categorizeLabels(labels []string) model.Category {
	has := make(map[string]bool, len(labels))
	for _, l := range labels {
		has[strings.ToLower(strings.TrimSpace(l))] = true
	}

	switch {
	case has[LabelRepoRequest]:
		return model.CategoryRepoRequest
	case has[LabelBug]:
		return model.CategoryBug
	case has[LabelEnhancement], has[LabelFeatureRequest]:
		return model.CategoryFeature
	default:
		return model.CategoryOther
	}
}

// IssueLabels returns issue.labels[].name, skipping entries of any other
// shape.
func IssueLabels(payload map[string]any) []string {
	issue, ok := payload["issue"].(map[string]any)
	if !ok {
		return nil
	}
	return LabelNames(issue["labels"])
}

// LabelNames reads a GitHub label array. Plain strings are accepted too.
func LabelNames(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}

	names := make([]string, 0, len(raw))
	for _, item := range raw {
		switch l := item.(type) {
		case map[string]any:
			if name, ok := l["name"].(string); ok && name != "" {
				names = append(names, name)
			}
		case string:
			if l != "" {
				names = append(names, l)
			}
		}
	}
	return names
}
