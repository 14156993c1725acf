package notify

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"basegraph.app/skillflow/internal/model"
	"basegraph.app/skillflow/internal/submission"
)

//go:embed templates/*.md.tmpl
var templateFS embed.FS

const listPreview = 5

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"json":    prettyJSON,
	"preview": preview,
	"more":    more,
	"title":   humanize,
	"author":  mention,
}).ParseFS(templateFS, "templates/*.md.tmpl"))

type PlanOutcome struct {
	Plan             *model.UpdatePlan
	Result           *model.ExecutionResult
	Author           string
	IssueType        model.IssueType
	RequirementCount int
}

type SecurityRejection struct {
	Author   string
	Reason   string
	Severity model.Severity
	Matched  int
}

type AuthorRejection struct {
	Author  string
	Reasons []string
}

type NoRequirements struct {
	Author string
}

type ValidationFailure struct {
	Author string
	Errors []string
}

type ProcessingError struct {
	Message string
}

type PRReport struct {
	MergeError     string
	AutoMergeLabel string
	Result         submission.ValidationResult
	Merged         bool
}

// PlanCompleted renders the plan summary together with its successful
// execution.
func PlanCompleted(d PlanOutcome) (string, error) { return render("plan_completed", d) }

func ExecutionFailed(d PlanOutcome) (string, error) { return render("execution_failed", d) }

func SecurityRejected(d SecurityRejection) (string, error) { return render("security_rejected", d) }

func AuthorRejected(d AuthorRejection) (string, error) { return render("author_rejected", d) }

func NoRequirementsFound(d NoRequirements) (string, error) { return render("no_requirements", d) }

func ValidationFailed(d ValidationFailure) (string, error) { return render("validation_failed", d) }

func ProcessingFailed(d ProcessingError) (string, error) { return render("processing_error", d) }

func PRValidation(d PRReport) (string, error) { return render("pr_validation", d) }

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name+".md.tmpl", data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()) + "\n", nil
}

func prettyJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func preview(items []string) []string {
	if len(items) > listPreview {
		return items[:listPreview]
	}
	return items
}

func more(items []string) int {
	if len(items) > listPreview {
		return len(items) - listPreview
	}
	return 0
}

// humanize turns add_repos into "Add Repos".
func humanize(s any) string {
	words := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(fmt.Sprint(s)))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func mention(login string) string {
	if login == "" {
		return "there"
	}
	return "@" + login
}
