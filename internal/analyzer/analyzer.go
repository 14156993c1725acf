package analyzer

import (
	"context"
	"log/slog"
	"strings"

	"basegraph.app/skillflow/common/logger"
	"basegraph.app/skillflow/internal/model"
)

// Input is the issue content to analyze.
type Input struct {
	Title  string
	Body   string
	Author string
	Labels []string
}

// Rejection says which check turned an issue away.
type Rejection string

const (
	RejectNone     Rejection = ""
	RejectSecurity Rejection = "security"
	RejectAuthor   Rejection = "author"
)

// Analysis is the verdict on one issue. Requirements is only populated for
// safe issues.
type Analysis struct {
	Security     *FilterResult       `json:"security,omitempty"`
	Author       *AuthorInfo         `json:"author,omitempty"`
	Parsed       *Parsed             `json:"parsed,omitempty"`
	Severity     *model.Severity     `json:"severity,omitempty"`
	IssueType    model.IssueType     `json:"issue_type"`
	Rejection    Rejection           `json:"rejection,omitempty"`
	FilterReason string              `json:"filter_reason,omitempty"`
	Requirements []model.Requirement `json:"requirements"`
	Safe         bool                `json:"safe"`
}

type Options struct {
	Security  *SecurityChecker
	Extractor Extractor
	// Author and Classifier are optional.
	Author     *AuthorChecker
	Classifier Classifier
}

// ContentAnalyzer runs the security filter, the parser, the optional author
// check and requirement extraction, in that order. Nothing after the
// security filter runs for flagged content.
type ContentAnalyzer struct {
	security   *SecurityChecker
	extractor  Extractor
	author     *AuthorChecker
	classifier Classifier
}

func New(opts Options) *ContentAnalyzer {
	extractor := opts.Extractor
	if extractor == nil {
		extractor = RuleExtractor{}
	}
	security := opts.Security
	if security == nil {
		security, _ = NewSecurityChecker("")
	}
	return &ContentAnalyzer{
		security:   security,
		extractor:  extractor,
		author:     opts.Author,
		classifier: opts.Classifier,
	}
}

// Analyze returns an error only when a collaborator failed; every verdict,
// including a rejection, is returned as an Analysis.
func (a *ContentAnalyzer) Analyze(ctx context.Context, in Input) (Analysis, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "skillflow.analyzer"})
	res := Analysis{IssueType: model.IssueTypeUnknown}

	sec := a.security.Check(in.Title + "\n\n" + in.Body)
	if sec.Malicious {
		sev := sec.Severity
		res.Security = &sec
		res.Severity = &sev
		res.Rejection = RejectSecurity
		res.FilterReason = "Security check failed: " + sec.Reason
		slog.WarnContext(ctx, "issue failed security check",
			"severity", sev,
			"matched", strings.Join(sec.Matched, "; "))
		return res, nil
	}

	parsed := Parse(in.Title, in.Body, in.Labels)
	if parsed.Type == model.IssueTypeUnknown && a.classifier != nil {
		t, err := a.classifier.Classify(ctx, in.Title, in.Body)
		if err != nil {
			return res, err
		}
		parsed.Type = t
	}
	res.Parsed = &parsed
	res.IssueType = parsed.Type

	if a.author != nil && in.Author != "" {
		info, err := a.author.Check(ctx, in.Author)
		if err != nil {
			return res, err
		}
		res.Author = &info
		if info.Suspicious {
			res.Rejection = RejectAuthor
			res.FilterReason = "Author validation failed: " + strings.Join(info.Reasons, ", ")
			slog.WarnContext(ctx, "issue author flagged", "author", in.Author, "reasons", info.Reasons)
			return res, nil
		}
	}

	res.Requirements = a.extractor.Extract(parsed)
	res.Safe = true

	slog.DebugContext(ctx, "issue analyzed",
		"issue_type", parsed.Type,
		"requirements", len(res.Requirements))
	return res, nil
}
