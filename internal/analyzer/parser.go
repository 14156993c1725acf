package analyzer

import (
	"encoding/json"
	"regexp"
	"slices"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"basegraph.app/skillflow/internal/model"
)

// Parsed is the structured content of an issue.
type Parsed struct {
	Configs      map[string]any  `json:"configs,omitempty"`
	Type         model.IssueType `json:"type"`
	ConfigFormat string          `json:"config_format,omitempty"`
	Repositories []string        `json:"repositories,omitempty"`
	Removals     []string        `json:"removals,omitempty"`
	Features     []string        `json:"features,omitempty"`
	SearchTerms  []string        `json:"search_terms,omitempty"`
}

var labelTypes = map[string]model.IssueType{
	"repo-request": model.IssueTypeRepoRequest,
	"repository":   model.IssueTypeRepoRequest,
	"enhancement":  model.IssueTypeFeatureRequest,
	"feature":      model.IssueTypeFeatureRequest,
	"bug":          model.IssueTypeBugReport,
	"config":       model.IssueTypeConfigUpdate,
}

// checked in order; the first indicator found in the text wins
var typeIndicators = []struct {
	issueType  model.IssueType
	indicators []string
}{
	{model.IssueTypeRepoRequest, []string{"add repo", "add repository", "repository request", "new repo", "include repo"}},
	{model.IssueTypeFeatureRequest, []string{"feature", "enhancement", "improvement", "add feature", "new feature"}},
	{model.IssueTypeBugReport, []string{"bug", "issue", "error", "not working", "broken", "fix"}},
	{model.IssueTypeConfigUpdate, []string{"config", "configuration", "setting", "update config", "change config"}},
}

var (
	repoPattern = regexp.MustCompile(
		"(?i)(?:https?://)?(?:www\\.)?github\\.com/([\\w-]+/[\\w.-]+)" +
			"|`([\\w-]+/[\\w.-]+)`" +
			"|\\*\\*([\\w-]+/[\\w.-]+)\\*\\*")
	listItemPattern   = regexp.MustCompile(`^(?:[-*+]|\d+\.)\s+`)
	fencePattern      = regexp.MustCompile("(?s)```([A-Za-z]*)[ \\t]*\\n(.*?)```")
	searchTermPattern = regexp.MustCompile(`(?im)(?:search terms?|add terms?|keywords?):[ \t]*([^\n]+)`)
	removalPattern    = regexp.MustCompile(`(?im)remove (?:repos?|repositor(?:y|ies)):[ \t]*([^\n]+)`)
	repoNamePattern   = regexp.MustCompile(`[\w-]+/[\w.-]+`)
	githubURLPrefix   = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?github\.com/`)
)

// Parse extracts the issue type and every structured signal from an issue.
func Parse(title, body string, labels []string) Parsed {
	text := title + "\n\n" + body

	removals := extractRemovals(text)
	configs, format := extractConfigs(text)

	return Parsed{
		Type:         detectType(title, body, labels),
		Repositories: without(extractRepositories(text), removals),
		Removals:     removals,
		Features:     extractFeatures(text),
		Configs:      configs,
		ConfigFormat: format,
		SearchTerms:  extractSearchTerms(text),
	}
}

func detectType(title, body string, labels []string) model.IssueType {
	for _, l := range labels {
		if t, ok := labelTypes[strings.ToLower(l)]; ok {
			return t
		}
	}

	text := strings.ToLower(title + " " + body)
	for _, ti := range typeIndicators {
		for _, ind := range ti.indicators {
			if strings.Contains(text, ind) {
				return ti.issueType
			}
		}
	}
	return model.IssueTypeUnknown
}

// extractRepositories returns the sorted, distinct owner/name pairs
// referenced as github URLs, backtick spans or bold spans.
func extractRepositories(text string) []string {
	seen := map[string]struct{}{}
	for _, m := range repoPattern.FindAllStringSubmatch(text, -1) {
		for _, group := range m[1:] {
			if group == "" {
				continue
			}
			if repo := cleanRepo(group); repo != "" {
				seen[repo] = struct{}{}
			}
			break
		}
	}

	repos := make([]string, 0, len(seen))
	for r := range seen {
		repos = append(repos, r)
	}
	slices.Sort(repos)
	return repos
}

func cleanRepo(s string) string {
	s = strings.TrimRight(strings.TrimSpace(s), "/.")
	s = strings.TrimSuffix(s, ".git")
	if !strings.Contains(s, "/") || strings.HasSuffix(s, "/") {
		return ""
	}
	return s
}

func extractRemovals(text string) []string {
	var out []string
	for _, m := range removalPattern.FindAllStringSubmatch(text, -1) {
		line := githubURLPrefix.ReplaceAllString(m[1], "")
		for _, candidate := range repoNamePattern.FindAllString(line, -1) {
			if repo := cleanRepo(candidate); repo != "" && !slices.Contains(out, repo) {
				out = append(out, repo)
			}
		}
	}
	return out
}

func extractFeatures(text string) []string {
	var features []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		loc := listItemPattern.FindStringIndex(trimmed)
		if loc == nil {
			continue
		}
		feature := trimmed[loc[1]:]
		if n := len(feature); n > 5 && n < 500 {
			features = append(features, feature)
		}
	}
	return features
}

// extractConfigs merges every fenced YAML or JSON object in text. JSON
// blocks may carry comments and trailing commas. Blocks that do not parse
// to an object are ignored.
func extractConfigs(text string) (map[string]any, string) {
	var (
		configs = map[string]any{}
		formats []string
	)

	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		lang, content := strings.ToLower(m[1]), m[2]

		var parsed map[string]any
		switch lang {
		case "yaml", "yml":
			if err := yaml.Unmarshal([]byte(content), &parsed); err != nil {
				continue
			}
			lang = "yaml"
		case "json", "jsonc", "":
			if err := json.Unmarshal(jsonc.ToJSON([]byte(content)), &parsed); err != nil {
				continue
			}
			lang = "json"
		default:
			continue
		}
		if len(parsed) == 0 {
			continue
		}

		for k, v := range parsed {
			configs[k] = v
		}
		if !slices.Contains(formats, lang) {
			formats = append(formats, lang)
		}
	}

	if len(configs) == 0 {
		return nil, ""
	}
	return configs, strings.Join(formats, "+")
}

func extractSearchTerms(text string) []string {
	var terms []string
	for _, m := range searchTermPattern.FindAllStringSubmatch(text, -1) {
		for _, term := range strings.FieldsFunc(m[1], func(r rune) bool { return r == ',' || r == ';' }) {
			term = strings.Trim(strings.TrimSpace(term), `"'`)
			if n := len(term); n >= 2 && n <= 100 && !slices.Contains(terms, term) {
				terms = append(terms, term)
			}
		}
	}
	return terms
}

func without(list, remove []string) []string {
	if len(remove) == 0 {
		return list
	}
	out := list[:0:0]
	for _, item := range list {
		if !slices.Contains(remove, item) {
			out = append(out, item)
		}
	}
	return out
}
