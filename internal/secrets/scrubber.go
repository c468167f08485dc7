package secrets

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
)

// DefaultReplacement replaces each redacted span.
const DefaultReplacement = "[REDACTED]"

// Config configures the scrubber.
type Config struct {
	// Enabled controls whether scrubbing is active (default: false). Stored
	// text is only byte-for-byte identical to the input while disabled.
	Enabled bool `koanf:"enabled"`

	// Replacement is written in place of each secret (default: "[REDACTED]")
	Replacement string `koanf:"replacement"`

	// Rules replaces DefaultRules when non-empty.
	Rules []Rule `koanf:"rules"`

	// AllowList holds patterns for matches that must be kept, such as
	// documented example keys.
	AllowList []string `koanf:"allow_list"`
}

// DefaultConfig returns a disabled config with the built-in rules.
func DefaultConfig() *Config {
	return &Config{
		Enabled:     false,
		Replacement: DefaultReplacement,
	}
}

// Result is the outcome of one Scrub call.
type Result struct {
	// Text is the input with secrets replaced.
	Text string

	// ByRule counts matches per rule ID. Matched values are never kept.
	ByRule map[string]int
}

// Total returns the number of secrets found.
func (r Result) Total() int {
	n := 0
	for _, c := range r.ByRule {
		n += c
	}
	return n
}

type compiledRule struct {
	id       string
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
}

// Scrubber redacts secrets. It is safe for concurrent use; a nil
// *Scrubber returns its input unchanged.
type Scrubber struct {
	replacement string
	rules       []compiledRule
	allow       []*regexp.Regexp
}

// New compiles cfg into a Scrubber. A nil cfg uses DefaultConfig. A
// disabled config returns a nil Scrubber.
func New(cfg *Config) (*Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if !cfg.Enabled {
		return nil, nil
	}

	s := &Scrubber{replacement: cfg.Replacement}
	if s.replacement == "" {
		s.replacement = DefaultReplacement
	}

	rules := cfg.Rules
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	for i, rule := range rules {
		if rule.ID == "" {
			return nil, fmt.Errorf("rule %d: id is required", i)
		}
		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %s: invalid pattern: %w", rule.ID, err)
		}
		if rule.Pattern == "" {
			return nil, fmt.Errorf("rule %s: pattern is required", rule.ID)
		}
		cr := compiledRule{id: rule.ID, pattern: pattern}
		for _, kw := range rule.Keywords {
			cr.keywords = append(cr.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		s.rules = append(s.rules, cr)
	}

	for i, p := range cfg.AllowList {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("allow_list %d: invalid pattern: %w", i, err)
		}
		s.allow = append(s.allow, re)
	}
	return s, nil
}

type span struct{ start, end int }

// Scrub replaces every secret in content. Overlapping matches from
// different rules collapse into one replacement.
func (s *Scrubber) Scrub(content string) Result {
	res := Result{Text: content}
	if s == nil || content == "" {
		return res
	}

	var spans []span
	for _, rule := range s.rules {
		if !rule.applies(content) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			if m[0] == m[1] || s.allowed(content[m[0]:m[1]]) {
				continue
			}
			if res.ByRule == nil {
				res.ByRule = make(map[string]int)
			}
			res.ByRule[rule.id]++
			spans = append(spans, span{m[0], m[1]})
		}
	}
	if len(spans) == 0 {
		return res
	}

	slices.SortFunc(spans, func(a, b span) int { return cmp.Compare(a.start, b.start) })
	merged := spans[:1]
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start <= last.end {
			last.end = max(last.end, sp.end)
			continue
		}
		merged = append(merged, sp)
	}

	out := make([]byte, 0, len(content))
	prev := 0
	for _, sp := range merged {
		out = append(out, content[prev:sp.start]...)
		out = append(out, s.replacement...)
		prev = sp.end
	}
	out = append(out, content[prev:]...)
	res.Text = string(out)
	return res
}

func (r compiledRule) applies(content string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(content) {
			return true
		}
	}
	return false
}

func (s *Scrubber) allowed(match string) bool {
	for _, re := range s.allow {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}
