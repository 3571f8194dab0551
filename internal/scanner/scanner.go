// Package scanner is a pattern-based review of Solidity-like source text. It
// matches substrings and regular expressions only; it does not parse the code,
// so false positives and negatives are expected.
package scanner

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Severity grades an issue
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Issue is a single finding
type Issue struct {
	Severity Severity `json:"severity"`
	Issue    string   `json:"issue"`
}

// Report is the result of scanning one source text
type Report struct {
	Issues  []Issue `json:"issues"`
	Summary string  `json:"summary"`
}

// Rule maps a predicate over the source text to an issue template
type Rule struct {
	ID       string   `yaml:"id"`
	Severity Severity `yaml:"severity"`
	Issue    string   `yaml:"issue"`
	AllOf    []string `yaml:"all_of"`
	AnyOf    []string `yaml:"any_of"`
	NoneOf   []string `yaml:"none_of"`
	Pattern  string   `yaml:"pattern"`

	re *regexp.Regexp
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

//go:embed rules.yaml
var defaultRulesYAML []byte

var defaultScanner = MustNew(mustParseRules(defaultRulesYAML))

// Scanner evaluates an ordered rule set
type Scanner struct {
	rules []Rule
}

// New validates and compiles rules. Order is preserved in every Report.
func New(rules []Rule) (*Scanner, error) {
	compiled := make([]Rule, 0, len(rules))
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rule %d: id is required", i)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("rule %q: duplicate id", r.ID)
		}
		seen[r.ID] = true
		switch r.Severity {
		case SeverityLow, SeverityMedium, SeverityHigh:
		default:
			return nil, fmt.Errorf("rule %q: invalid severity %q", r.ID, r.Severity)
		}
		if r.Issue == "" {
			return nil, fmt.Errorf("rule %q: issue text is required", r.ID)
		}
		if len(r.AllOf) == 0 && len(r.AnyOf) == 0 && len(r.NoneOf) == 0 && r.Pattern == "" {
			return nil, fmt.Errorf("rule %q: at least one condition is required", r.ID)
		}
		if r.Pattern != "" {
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %q: compile pattern: %w", r.ID, err)
			}
			r.re = re
		}
		compiled = append(compiled, r)
	}
	return &Scanner{rules: compiled}, nil
}

// MustNew is New for rule sets known to be valid
func MustNew(rules []Rule) *Scanner {
	s, err := New(rules)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseRules decodes a YAML rule file
func ParseRules(data []byte) ([]Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("parse rules: no rules defined")
	}
	return f.Rules, nil
}

func mustParseRules(data []byte) []Rule {
	rules, err := ParseRules(data)
	if err != nil {
		panic(err)
	}
	return rules
}

// DefaultRules returns a copy of the built-in rule set
func DefaultRules() []Rule {
	return append([]Rule(nil), defaultScanner.rules...)
}

// Default returns the scanner built from the embedded rule set
func Default() *Scanner {
	return defaultScanner
}

// Scan runs the built-in rule set over src
func Scan(src string) Report {
	return defaultScanner.Scan(src)
}

// Rules returns the compiled rules in evaluation order
func (s *Scanner) Rules() []Rule {
	return append([]Rule(nil), s.rules...)
}

// Scan evaluates every rule against src. The result depends only on src.
func (s *Scanner) Scan(src string) Report {
	issues := make([]Issue, 0)
	for _, r := range s.rules {
		if r.matches(src) {
			issues = append(issues, Issue{Severity: r.Severity, Issue: r.Issue})
		}
	}
	return Report{Issues: issues, Summary: Summarize(len(issues))}
}

// Summarize renders the issue count line
func Summarize(n int) string {
	if n == 0 {
		return "No issues found"
	}
	return fmt.Sprintf("%d potential issues", n)
}

func (r Rule) matches(src string) bool {
	for _, s := range r.AllOf {
		if !strings.Contains(src, s) {
			return false
		}
	}
	if len(r.AnyOf) > 0 && !containsAny(src, r.AnyOf) {
		return false
	}
	if containsAny(src, r.NoneOf) {
		return false
	}
	if r.re != nil && !r.re.MatchString(src) {
		return false
	}
	return true
}

func containsAny(src string, subs []string) bool {
	for _, s := range subs {
		if strings.Contains(src, s) {
			return true
		}
	}
	return false
}
