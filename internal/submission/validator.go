package submission

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"basegraph.app/skillflow/internal/domain"
	"basegraph.app/skillflow/internal/model"
	"basegraph.app/skillflow/internal/store"
)

const (
	primaryFile   = "skill.md"
	companionFile = "README.md"

	minContentLength = 50
)

var requiredMetadata = []string{"name", "description"}

var frontmatterPattern = regexp.MustCompile(`(?s)^---[ \t]*\r?\n(.*?)\r?\n---[ \t]*(?:\r?\n|$)`)

// Submission is one skill directory found in a pull request.
type Submission struct {
	Metadata map[string]any `json:"metadata,omitempty"`
	Dir      string         `json:"dir"`
	Hash     string         `json:"hash"`
	Errors   []string       `json:"errors,omitempty"`
}

type ValidationResult struct {
	Submissions    []Submission `json:"submissions"`
	Errors         []string     `json:"errors"`
	Warnings       []string     `json:"warnings"`
	DuplicateCount int          `json:"duplicate_count"`
	IsValid        bool         `json:"is_valid"`
	CanAutoMerge   bool         `json:"can_auto_merge"`
}

// Hashes returns the content hash of every submission.
func (r ValidationResult) Hashes() []string {
	out := make([]string, 0, len(r.Submissions))
	for _, s := range r.Submissions {
		out = append(out, s.Hash)
	}
	return out
}

type Validator struct {
	content        store.ContentIndex
	autoMergeLabel string
}

func NewValidator(content store.ContentIndex, autoMergeLabel string) *Validator {
	if autoMergeLabel == "" {
		autoMergeLabel = "auto-merge"
	}
	return &Validator{content: content, autoMergeLabel: autoMergeLabel}
}

// Validate checks the skill submissions contained in files. Only a failing
// content index lookup produces an error.
func (v *Validator) Validate(ctx context.Context, pr model.PRRecord, files []model.PRFile) (ValidationResult, error) {
	result := ValidationResult{Errors: []string{}, Warnings: []string{}}

	if pr.State != "" && pr.State != "open" {
		result.Errors = append(result.Errors, fmt.Sprintf("PR is not open (state: %s)", pr.State))
		return result, nil
	}

	dirs := collect(files)
	for _, dir := range sortedKeys(dirs) {
		d := dirs[dir]
		switch {
		case d.skill == nil:
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s is missing", displayDir(dir), primaryFile))
			continue
		case d.readme == nil:
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s is missing", displayDir(dir), companionFile))
			continue
		}

		sub := inspect(dir, d.skill.Content, d.readme.Content)
		if sub.Metadata == nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: no metadata found in %s or %s", displayDir(dir), primaryFile, companionFile))
		}
		for _, e := range sub.Errors {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", displayDir(dir), e))
		}
		result.Submissions = append(result.Submissions, sub)
	}

	if len(result.Submissions) == 0 && len(result.Errors) == 0 {
		result.Errors = append(result.Errors,
			"No valid skill submissions found. Required structure: category-name/skill-name/ with skill.md and README.md")
	}

	seen := make(map[string]bool)
	for _, sub := range result.Submissions {
		duplicate := seen[sub.Hash]
		if !duplicate {
			found, err := v.content.Contains(ctx, sub.Hash)
			if err != nil {
				return result, domain.FatalStore("checking content index", err)
			}
			duplicate = found
		}
		seen[sub.Hash] = true

		if duplicate {
			result.DuplicateCount++
			result.Errors = append(result.Errors,
				fmt.Sprintf("Duplicate skill found: %s (hash: %s...)", displayDir(sub.Dir), sub.Hash[:16]))
		}
	}

	result.IsValid = len(result.Errors) == 0 && result.DuplicateCount == 0 && len(result.Submissions) > 0
	result.CanAutoMerge = result.IsValid && pr.HasLabel(v.autoMergeLabel)

	return result, nil
}

type dirFiles struct {
	skill  *model.PRFile
	readme *model.PRFile
}

// collect groups the primary and companion files by directory. The
// repository's own README.md is not part of any submission.
func collect(files []model.PRFile) map[string]*dirFiles {
	dirs := make(map[string]*dirFiles)
	get := func(dir string) *dirFiles {
		d, ok := dirs[dir]
		if !ok {
			d = &dirFiles{}
			dirs[dir] = d
		}
		return d
	}

	for i := range files {
		f := &files[i]
		if f.Status == "removed" {
			continue
		}
		dir, name := path.Split(f.Path)
		dir = strings.TrimSuffix(dir, "/")

		switch {
		case strings.EqualFold(name, primaryFile):
			get(dir).skill = f
		case name == companionFile && dir != "":
			get(dir).readme = f
		}
	}

	return dirs
}

func inspect(dir, skill, readme string) Submission {
	sub := Submission{Dir: dir, Hash: ContentHash(skill, readme)}

	if len(strings.TrimSpace(skill)) < minContentLength {
		sub.Errors = append(sub.Errors, "Skill content is too short or empty")
	}

	// README metadata wins; skill.md frontmatter is the fallback but must
	// still parse when present.
	skillMeta, err := frontmatter(skill)
	if err != nil {
		sub.Errors = append(sub.Errors, fmt.Sprintf("YAML frontmatter parse error: %v", err))
	}
	meta, err := frontmatter(readme)
	if err != nil {
		sub.Errors = append(sub.Errors, fmt.Sprintf("YAML frontmatter parse error in %s: %v", companionFile, err))
	}
	if meta == nil {
		meta = skillMeta
	}
	sub.Metadata = meta

	if meta == nil {
		sub.Errors = append(sub.Errors, "Missing YAML frontmatter")
		return sub
	}
	for _, field := range requiredMetadata {
		if s, _ := meta[field].(string); strings.TrimSpace(s) == "" {
			sub.Errors = append(sub.Errors, "Missing required metadata field: "+field)
		}
	}
	return sub
}

// frontmatter returns the YAML mapping at the top of content, or nil when
// there is none.
func frontmatter(content string) (map[string]any, error) {
	m := frontmatterPattern.FindStringSubmatch(strings.TrimPrefix(content, "\ufeff"))
	if m == nil {
		return nil, nil
	}

	var meta map[string]any
	if err := yaml.Unmarshal([]byte(m[1]), &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// ContentHash identifies a submission by its primary and companion content.
func ContentHash(skill, readme string) string {
	sum := sha256.Sum256([]byte(skill + readme))
	return hex.EncodeToString(sum[:])
}

func displayDir(dir string) string {
	if dir == "" {
		return "(root)"
	}
	return dir
}

func sortedKeys(m map[string]*dirFiles) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
