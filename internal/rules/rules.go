// Package rules implements stage 3 of the pipeline: deterministic
// classification from patterns, keywords, and size. Rules are evaluated
// in declaration order; the first rule whose full predicate matches
// wins. A file matching no rule is left for the LLM classifier.
package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"organizer/internal/model"
)

// DefaultMinRuleConfidence is the floor a rule's own confidence must meet
// to be eligible at all — independent of, and evaluated before, the
// Planner's apply-threshold gate.
const DefaultMinRuleConfidence = 0

// Rule is one classification rule loaded from configuration.
type Rule struct {
	ID          string          `yaml:"id"`
	Pattern     string          `yaml:"pattern"`
	Keywords    []string        `yaml:"keywords,omitempty"`
	MinSize     *int64          `yaml:"min_size,omitempty"`
	MaxSize     *int64          `yaml:"max_size,omitempty"`
	Category    model.Category  `yaml:"category"`
	Subcategory string          `yaml:"subcategory,omitempty"`
	Confidence  int             `yaml:"confidence"`
}

// fileConfig is the top-level shape of a rules YAML document.
type fileConfig struct {
	Rules []Rule `yaml:"rules"`
}

// Load reads an ordered list of Rules from a YAML file. Rules are kept
// in declaration order — that order is the matching priority.
func Load(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a rules YAML document from raw bytes.
func Parse(data []byte) ([]Rule, error) {
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing rules yaml: %w", err)
	}
	for i, r := range cfg.Rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rule at index %d missing id", i)
		}
		if !model.IsValidCategory(r.Category) {
			return nil, fmt.Errorf("rule %s: unknown category %q", r.ID, r.Category)
		}
	}
	return cfg.Rules, nil
}

// Stats accumulates per-run rule engine statistics, surfaced in the
// Planner's human-readable plan summary.
type Stats struct {
	TotalClassified int
	TotalUnmatched  int
	RuleHits        map[string]int
}

// Engine evaluates FileRecords against an ordered list of Rules.
type Engine struct {
	rules       []Rule
	minConf     int
	stats       Stats
}

// New builds an Engine from rules, in declaration order. minRuleConfidence
// is the floor a rule's own confidence must meet to be eligible;
// lower-confidence rules are skipped (evaluation continues to later
// rules), independent of the Planner's separate apply-threshold gate.
func New(rulesList []Rule, minRuleConfidence int) *Engine {
	return &Engine{
		rules:   rulesList,
		minConf: minRuleConfidence,
		stats:   Stats{RuleHits: make(map[string]int)},
	}
}

// Stats returns a snapshot of the engine's accumulated statistics.
func (e *Engine) Stats() Stats {
	hits := make(map[string]int, len(e.stats.RuleHits))
	for k, v := range e.stats.RuleHits {
		hits[k] = v
	}
	return Stats{
		TotalClassified: e.stats.TotalClassified,
		TotalUnmatched:  e.stats.TotalUnmatched,
		RuleHits:        hits,
	}
}

// Classify returns a Classification for record if any rule's full
// predicate matches, and ok=true. If no rule matches, ok=false and the
// caller should route the file to the LLM classifier.
func (e *Engine) Classify(record *model.FileRecord) (model.Classification, bool) {
	for _, rule := range e.rules {
		if rule.Confidence < e.minConf {
			continue
		}
		if !matches(record, rule) {
			continue
		}

		e.stats.TotalClassified++
		e.stats.RuleHits[rule.ID]++

		return buildClassification(record, rule), true
	}

	e.stats.TotalUnmatched++
	return model.Classification{}, false
}

// matches applies the full predicate: glob, then size bounds, then (if
// any keywords are present) at least one keyword hit.
func matches(record *model.FileRecord, rule Rule) bool {
	if !matchNamePattern(record.Path, rule.Pattern) {
		return false
	}
	if rule.MinSize != nil && record.Size < *rule.MinSize {
		return false
	}
	if rule.MaxSize != nil && record.Size > *rule.MaxSize {
		return false
	}
	if len(rule.Keywords) > 0 && !matchKeywords(record, rule.Keywords) {
		return false
	}
	return true
}

// matchNamePattern supports glob patterns on the base name, including
// brace-expansion over comma-separated alternatives, e.g.
// "*.{jpg,jpeg,png}" or "invoice_{2023,2024}*". Matching is
// case-insensitive.
func matchNamePattern(path, pattern string) bool {
	base := strings.ToLower(filepath.Base(path))
	pattern = strings.ToLower(pattern)

	for _, p := range expandBraces(pattern) {
		if matched, err := filepath.Match(p, base); err == nil && matched {
			return true
		}
	}
	return false
}

// expandBraces expands a single {a,b,c} group in pattern into its
// alternatives, returning the unexpanded pattern if it has none.
func expandBraces(pattern string) []string {
	open := strings.Index(pattern, "{")
	shut := strings.Index(pattern, "}")
	if open < 0 || shut < 0 || shut < open {
		return []string{pattern}
	}

	prefix, inner, suffix := pattern[:open], pattern[open+1:shut], pattern[shut+1:]
	alts := strings.Split(inner, ",")
	expanded := make([]string, 0, len(alts))
	for _, alt := range alts {
		expanded = append(expanded, prefix+strings.TrimSpace(alt)+suffix)
	}
	return expanded
}

// matchKeywords reports whether any keyword appears as a case-insensitive
// substring of the excerpt or the file's base name.
func matchKeywords(record *model.FileRecord, keywords []string) bool {
	haystack := strings.ToLower(record.Excerpt + " " + filepath.Base(record.Path))
	for _, kw := range keywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

var yearPattern = regexp.MustCompile(`(19|20)\d{2}`)

// extractYear finds a plausible year token (1900-2099) in the base name,
// returning 0 if none is found.
func extractYear(baseName string) int {
	match := yearPattern.FindString(baseName)
	if match == "" {
		return 0
	}
	year, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return year
}

func buildClassification(record *model.FileRecord, rule Rule) model.Classification {
	baseName := strings.TrimSuffix(filepath.Base(record.Path), filepath.Ext(record.Path))
	year := extractYear(baseName) // fallback 0 when no year token is present, per spec

	dateStr := "0000-00-00"
	if !record.ModTime.IsZero() {
		dateStr = record.ModTime.Format("2006-01-02")
	}
	subject := sanitizeSubject(baseName)
	suggestedName := fmt.Sprintf("%s__%s__%s", dateStr, rule.Category, subject)

	return model.Classification{
		Category:      rule.Category,
		Subcategory:   rule.Subcategory,
		Subject:       subject,
		Year:          year,
		SuggestedName: suggestedName,
		Confidence:    rule.Confidence,
		Rationale:     fmt.Sprintf("matched rule %s", rule.ID),
		Source:        model.RuleSource(rule.ID),
	}
}

func sanitizeSubject(baseName string) string {
	if len(baseName) > 60 {
		return baseName[:60]
	}
	return baseName
}
