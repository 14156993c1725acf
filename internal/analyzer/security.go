package analyzer

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"basegraph.app/skillflow/internal/model"
)

// Rule is one pattern the security filter looks for.
type Rule struct {
	Pattern  *regexp.Regexp
	Type     string
	Severity model.Severity
}

// FilterResult is the outcome of a security check.
type FilterResult struct {
	Severity  model.Severity `json:"severity"`
	Reason    string         `json:"reason"`
	Matched   []string       `json:"matched"`
	Malicious bool           `json:"malicious"`
}

func rule(pattern, typ string, sev model.Severity) Rule {
	return Rule{Pattern: regexp.MustCompile("(?im)" + pattern), Type: typ, Severity: sev}
}

var defaultRules = []Rule{
	rule(`rm\s+-rf\s+/`, "command_injection", model.SeverityCritical),
	rule(`rm\s+-rf\s+\*`, "command_injection", model.SeverityCritical),
	rule(`rm\s+-rf\s+\.git`, "repo_destruction", model.SeverityCritical),
	rule(`drop\s+table`, "sql_injection", model.SeverityHigh),
	rule(`delete\s+from\s+\w+\s+where`, "sql_injection", model.SeverityHigh),
	rule(`eval\s*\(`, "code_execution", model.SeverityHigh),
	rule(`exec\s*\(`, "code_execution", model.SeverityHigh),
	rule(`__import__\s*\(`, "python_import", model.SeverityHigh),
	rule(`subprocess\.`, "subprocess", model.SeverityMedium),
	rule(`os\.system`, "system_command", model.SeverityMedium),
	rule(`shell_exec`, "shell_command", model.SeverityMedium),
	rule(`passthru\(`, "php_execution", model.SeverityHigh),
	rule(`<\?php`, "php_injection", model.SeverityMedium),
	rule(`format\s+disk`, "disk_destruction", model.SeverityCritical),
	rule(`format\s+c:`, "disk_destruction", model.SeverityCritical),
}

var defaultBlockedKeywords = []string{
	"delete all",
	"remove all",
	"format disk",
	"wipe database",
	"destroy repo",
	"nuke",
	"crypto mining",
	"bitcoin miner",
	"malware",
	"backdoor",
	"trojan",
	"ransomware",
	"exploit kit",
	"botnet",
}

// Suspicious patterns match anywhere in the text, inside identifiers too.
var defaultSuspicious = []Rule{
	rule(`crypto|bitcoin|mining|xmr|monero`, "crypto_mining", model.SeverityLow),
	rule(`access_token|api_key|secret`, "credential_theft", model.SeverityMedium),
	rule(`phish|credential|password`, "phishing", model.SeverityMedium),
	rule(`0x[0-9a-f]{16,}`, "shellcode_pattern", model.SeverityHigh),
}

// SecurityChecker scans issue text for malicious or suspicious content.
type SecurityChecker struct {
	rules      []Rule
	keywords   []string
	suspicious []Rule
}

type rulesFile struct {
	MaliciousPatterns []struct {
		Pattern  string `yaml:"pattern"`
		Type     string `yaml:"type"`
		Severity string `yaml:"severity"`
	} `yaml:"malicious_patterns"`
	BlockedKeywords []string `yaml:"blocked_keywords"`
}

// NewSecurityChecker builds a checker with the built-in rules plus any
// extra rules in the YAML file at rulesPath. An empty path uses the
// built-in rules only.
func NewSecurityChecker(rulesPath string) (*SecurityChecker, error) {
	c := &SecurityChecker{
		rules:      append([]Rule(nil), defaultRules...),
		suspicious: append([]Rule(nil), defaultSuspicious...),
	}
	for _, kw := range defaultBlockedKeywords {
		c.keywords = append(c.keywords, strings.ToLower(strings.TrimSpace(kw)))
	}

	if rulesPath == "" {
		return c, nil
	}

	raw, err := os.ReadFile(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("reading security rules: %w", err)
	}
	if err := c.load(raw); err != nil {
		return nil, fmt.Errorf("security rules %s: %w", rulesPath, err)
	}
	return c, nil
}

func (c *SecurityChecker) load(raw []byte) error {
	var f rulesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parsing: %w", err)
	}

	for i, p := range f.MaliciousPatterns {
		re, err := regexp.Compile("(?im)" + p.Pattern)
		if err != nil {
			return fmt.Errorf("malicious_patterns[%d]: %w", i, err)
		}
		sev := model.Severity(strings.ToLower(p.Severity))
		if sev.Rank() == 0 {
			return fmt.Errorf("malicious_patterns[%d]: unknown severity %q", i, p.Severity)
		}
		typ := p.Type
		if typ == "" {
			typ = "custom"
		}
		c.rules = append(c.rules, Rule{Pattern: re, Type: typ, Severity: sev})
	}

	for _, kw := range f.BlockedKeywords {
		if strings.TrimSpace(kw) != "" {
			c.keywords = append(c.keywords, strings.ToLower(strings.TrimSpace(kw)))
		}
	}
	return nil
}

// Check reports every rule text matches and the highest severity among them.
func (c *SecurityChecker) Check(text string) FilterResult {
	var (
		matched []string
		worst   model.Severity
	)
	raise := func(sev model.Severity) {
		if sev.Rank() > worst.Rank() {
			worst = sev
		}
	}

	for _, r := range c.rules {
		if r.Pattern.MatchString(text) {
			matched = append(matched, r.Type+": "+strings.TrimPrefix(r.Pattern.String(), "(?im)"))
			raise(r.Severity)
		}
	}
	lower := strings.ToLower(text)
	for _, kw := range c.keywords {
		if strings.Contains(lower, kw) {
			matched = append(matched, "blocked_keyword: "+kw)
			raise(model.SeverityHigh)
		}
	}
	for _, r := range c.suspicious {
		if r.Pattern.MatchString(text) {
			matched = append(matched, "suspicious: "+r.Type)
			raise(r.Severity)
		}
	}

	if len(matched) == 0 {
		return FilterResult{Severity: model.SeverityLow, Reason: "no issues found"}
	}
	return FilterResult{
		Malicious: true,
		Severity:  worst,
		Reason:    fmt.Sprintf("found %d suspicious pattern(s)", len(matched)),
		Matched:   matched,
	}
}
