package analyzer

import (
	"encoding/json"
	"strings"

	"basegraph.app/skillflow/internal/model"
)

// Extractor turns parsed issue content into typed requirements.
type Extractor interface {
	Extract(p Parsed) []model.Requirement
}

// RuleExtractor maps each parsed signal to a requirement with a fixed
// confidence.
type RuleExtractor struct{}

func (RuleExtractor) Extract(p Parsed) []model.Requirement {
	var reqs []model.Requirement

	if p.Type == model.IssueTypeRepoRequest {
		for _, repo := range p.Repositories {
			reqs = append(reqs, model.Requirement{
				Type:       model.RequirementRepoRequest,
				Data:       map[string]any{"repository": repo},
				Confidence: 0.9,
				SourceText: "Add repository: " + repo,
			})
		}
	}

	for _, repo := range p.Removals {
		reqs = append(reqs, model.Requirement{
			Type:       model.RequirementRemoveRepo,
			Data:       map[string]any{"repository": repo},
			Confidence: 0.9,
			SourceText: "Remove repository: " + repo,
		})
	}

	if p.Type == model.IssueTypeFeatureRequest {
		for _, f := range p.Features {
			reqs = append(reqs, model.Requirement{
				Type:       model.RequirementFeatureRequest,
				Data:       map[string]any{"feature": f},
				Confidence: 0.7,
				SourceText: f,
			})
		}
	}

	if len(p.Configs) > 0 {
		src, _ := json.Marshal(p.Configs)
		reqs = append(reqs, model.Requirement{
			Type:       model.RequirementConfigUpdate,
			Data:       map[string]any{"config": p.Configs, "format": p.ConfigFormat},
			Confidence: 0.8,
			SourceText: string(src),
		})
	}

	if len(p.SearchTerms) > 0 {
		reqs = append(reqs, model.Requirement{
			Type:       model.RequirementSearchTerms,
			Data:       map[string]any{"terms": p.SearchTerms},
			Confidence: 0.8,
			SourceText: strings.Join(p.SearchTerms, ", "),
		})
	}

	return reqs
}
