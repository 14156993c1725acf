// Package planner turns extracted requirements into validated update plans.
package planner

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"basegraph.app/skillflow/internal/domain"
	"basegraph.app/skillflow/internal/model"
)

var (
	ErrNoRequirements = errors.New("no requirements to plan")
	ErrNothingToMerge = errors.New("no plans to merge")
)

var repoNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+/[a-zA-Z0-9_.-]+$`)

const (
	maxOwnerLen = 39
	maxRepoLen  = 100
	minTermLen  = 2
)

// Generate groups requirements into a plan for issue. Lists are deduplicated
// in first-seen order. A single kind of action gets its specific plan type;
// a mix becomes a batch.
func Generate(issue model.IssueRecord, reqs []model.Requirement) (*model.UpdatePlan, error) {
	if len(reqs) == 0 {
		return nil, domain.Validation("generate plan", ErrNoRequirements)
	}

	plan := &model.UpdatePlan{
		PlanID:          uuid.NewString(),
		SourceIssue:     issue.Number,
		ExecutionStatus: model.ExecutionStatusPending,
		CreatedAt:       time.Now().UTC(),
	}

	repoCount := 0
	for _, r := range reqs {
		switch r.Type {
		case model.RequirementRepoRequest:
			repoCount++
			if repo := stringField(r.Data, "repository"); repo != "" {
				plan.ReposToAdd = append(plan.ReposToAdd, repo)
			}
		case model.RequirementRemoveRepo:
			if repo := stringField(r.Data, "repository"); repo != "" {
				plan.ReposToRemove = append(plan.ReposToRemove, repo)
			}
		case model.RequirementSearchTerms:
			plan.TermsToAdd = append(plan.TermsToAdd, stringsField(r.Data, "terms")...)
		case model.RequirementConfigUpdate:
			if cfg, ok := r.Data["config"].(map[string]any); ok && len(cfg) > 0 {
				if plan.ConfigUpdates == nil {
					plan.ConfigUpdates = make(map[string]any, len(cfg))
				}
				maps.Copy(plan.ConfigUpdates, cfg)
			}
		case model.RequirementFeatureRequest:
			// informational only; nothing in tracked state to change
		}
	}

	plan.ReposToAdd = dedupe(plan.ReposToAdd)
	plan.ReposToRemove = dedupe(plan.ReposToRemove)
	plan.TermsToAdd = dedupe(plan.TermsToAdd)
	plan.PlanType = planType(plan)
	plan.Priority = priority(issue, repoCount)
	plan.Notes = notes(plan)

	return plan, nil
}

func planType(p *model.UpdatePlan) model.PlanType {
	var types []model.PlanType
	if len(p.ReposToAdd) > 0 {
		types = append(types, model.PlanTypeAddRepos)
	}
	if len(p.ReposToRemove) > 0 {
		types = append(types, model.PlanTypeRemoveRepos)
	}
	if len(p.TermsToAdd) > 0 || len(p.TermsToRemove) > 0 {
		types = append(types, model.PlanTypeUpdateTerms)
	}
	if len(p.ConfigUpdates) > 0 {
		types = append(types, model.PlanTypeUpdateConfig)
	}
	if len(types) == 1 {
		return types[0]
	}
	return model.PlanTypeBatch
}

func priority(issue model.IssueRecord, repoCount int) int {
	p := model.DefaultPriority

	if issue.HasLabel("enhancement") || issue.HasLabel("feature") {
		p++
	}
	if issue.HasLabel("bug") {
		p += 2
	}
	if issue.HasLabel("priority") || issue.HasLabel("important") {
		p += 2
	}

	if repoCount > 5 {
		p++
	}
	if repoCount > 10 {
		p++
	}
	if issue.Reactions > 5 {
		p++
	}
	if issue.Reactions > 10 {
		p++
	}

	return min(max(p, model.MinPriority), model.MaxPriority)
}

func notes(p *model.UpdatePlan) []string {
	var out []string
	if n := len(p.ReposToAdd); n > 0 {
		out = append(out, fmt.Sprintf("Add %d repo(s)", n))
	}
	if n := len(p.ReposToRemove); n > 0 {
		out = append(out, fmt.Sprintf("Remove %d repo(s)", n))
	}
	if len(p.TermsToAdd) > 0 || len(p.TermsToRemove) > 0 {
		out = append(out, "Update search terms")
	}
	if n := len(p.ConfigUpdates); n > 0 {
		out = append(out, fmt.Sprintf("Apply %d config change(s)", n))
	}
	return out
}

// Validate checks a plan before it is stored or executed. The returned
// messages are shown to the issue author as they are.
func Validate(p *model.UpdatePlan) (bool, []string) {
	if p == nil {
		return false, []string{"Plan is missing"}
	}

	var errs []string
	if strings.TrimSpace(p.PlanID) == "" {
		errs = append(errs, "Plan ID is required")
	}
	if p.SourceIssue <= 0 {
		errs = append(errs, "Source issue number must be positive")
	}
	if !p.PlanType.Valid() {
		errs = append(errs, fmt.Sprintf("Invalid plan type: %s", p.PlanType))
	}
	if !p.HasActions() {
		errs = append(errs, "Plan must contain at least one update action")
	}
	for _, repo := range slices.Concat(p.ReposToAdd, p.ReposToRemove) {
		if !ValidRepoName(repo) {
			errs = append(errs, fmt.Sprintf("Invalid repository name: %s", repo))
		}
	}
	for _, term := range slices.Concat(p.TermsToAdd, p.TermsToRemove) {
		if len(strings.TrimSpace(term)) < minTermLen {
			errs = append(errs, fmt.Sprintf("Invalid search term: %q", term))
		}
	}
	if p.Priority < model.MinPriority || p.Priority > model.MaxPriority {
		errs = append(errs, fmt.Sprintf("Priority must be between %d and %d", model.MinPriority, model.MaxPriority))
	}

	return len(errs) == 0, errs
}

// ValidRepoName reports whether repo is an owner/name pair GitHub would accept.
func ValidRepoName(repo string) bool {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return false
	}
	if len(owner) > maxOwnerLen || len(name) > maxRepoLen {
		return false
	}
	return repoNamePattern.MatchString(repo)
}

// Merge combines plans into one batch plan attributed to the earliest source
// issue, keeping the highest priority. A single plan is returned unchanged.
func Merge(plans ...*model.UpdatePlan) (*model.UpdatePlan, error) {
	switch len(plans) {
	case 0:
		return nil, ErrNothingToMerge
	case 1:
		return plans[0], nil
	}

	merged := &model.UpdatePlan{
		PlanID:          uuid.NewString(),
		PlanType:        model.PlanTypeBatch,
		ExecutionStatus: model.ExecutionStatusPending,
		SourceIssue:     plans[0].SourceIssue,
		CreatedAt:       plans[0].CreatedAt,
		Priority:        plans[0].Priority,
	}

	for _, p := range plans {
		merged.SourceIssue = min(merged.SourceIssue, p.SourceIssue)
		merged.Priority = max(merged.Priority, p.Priority)
		if p.CreatedAt.Before(merged.CreatedAt) {
			merged.CreatedAt = p.CreatedAt
		}

		merged.ReposToAdd = append(merged.ReposToAdd, p.ReposToAdd...)
		merged.ReposToRemove = append(merged.ReposToRemove, p.ReposToRemove...)
		merged.TermsToAdd = append(merged.TermsToAdd, p.TermsToAdd...)
		merged.TermsToRemove = append(merged.TermsToRemove, p.TermsToRemove...)
		if len(p.ConfigUpdates) > 0 {
			if merged.ConfigUpdates == nil {
				merged.ConfigUpdates = make(map[string]any)
			}
			maps.Copy(merged.ConfigUpdates, p.ConfigUpdates)
		}
	}

	merged.ReposToAdd = dedupe(merged.ReposToAdd)
	merged.ReposToRemove = dedupe(merged.ReposToRemove)
	merged.TermsToAdd = dedupe(merged.TermsToAdd)
	merged.TermsToRemove = dedupe(merged.TermsToRemove)
	merged.Notes = append(notes(merged), fmt.Sprintf("Merged from %d plans", len(plans)))

	return merged, nil
}

func dedupe(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return strings.TrimSpace(s)
}

// stringsField accepts both []string and the []any a JSON round trip yields.
func stringsField(data map[string]any, key string) []string {
	switch v := data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	default:
		return nil
	}
}
