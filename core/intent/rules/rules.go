// Package rules implements intent classification as a data-driven ordered
// rule set loaded once at startup. Rules are matched first to last; the
// first rule with a matching pattern wins.
package rules

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/voxloop/voxloop-core/core/intent"
)

// EntityExtractor pulls one named entity out of the matched text using the
// pattern's first capture group.
type EntityExtractor struct {
	Name    string
	Pattern *regexp.Regexp
}

type Rule struct {
	Intent     string
	Patterns   []*regexp.Regexp
	Confidence float64
	Extractors []EntityExtractor
	// Scenarios restricts the rule to conversations carrying one of these
	// scenario tags. Empty means the rule always applies.
	Scenarios []string
}

type classifierOptions struct {
	unknownConfidence float64
}

type ClassifierOption func(*classifierOptions)

func WithUnknownConfidence(confidence float64) ClassifierOption {
	return func(o *classifierOptions) { o.unknownConfidence = confidence }
}

// Classifier is an ordered-rule intent classifier. It is immutable after
// construction and safe for concurrent use.
type Classifier struct {
	rules   []Rule
	options classifierOptions
}

func NewClassifier(ruleSet []Rule, opts ...ClassifierOption) (*Classifier, error) {
	options := classifierOptions{unknownConfidence: 0.3}
	for _, opt := range opts {
		opt(&options)
	}

	for i, rule := range ruleSet {
		if rule.Intent == "" {
			return nil, fmt.Errorf("rule %d has no intent name", i)
		}
		if len(rule.Patterns) == 0 {
			return nil, fmt.Errorf("rule %q has no patterns", rule.Intent)
		}
	}

	return &Classifier{rules: slices.Clone(ruleSet), options: options}, nil
}

func (c *Classifier) Classify(text string, scenario string) (intent.Intent, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))

	for _, rule := range c.rules {
		if len(rule.Scenarios) > 0 && !slices.Contains(rule.Scenarios, scenario) {
			continue
		}

		for _, pattern := range rule.Patterns {
			if !pattern.MatchString(normalized) {
				continue
			}

			entities := map[string]string{}
			for _, extractor := range rule.Extractors {
				if match := extractor.Pattern.FindStringSubmatch(normalized); len(match) > 1 {
					entities[extractor.Name] = match[1]
				}
			}

			return intent.Intent{
				Name:       rule.Intent,
				Confidence: rule.Confidence,
				Entities:   entities,
				RawText:    text,
			}, nil
		}
	}

	return intent.Intent{
		Name:       intent.NameUnknown,
		Confidence: c.options.unknownConfidence,
		Entities:   map[string]string{},
		RawText:    text,
	}, nil
}

// DefaultRuleSet returns the built-in conversational rule table. Callers
// with scenario content load their own table instead.
func DefaultRuleSet() []Rule {
	return []Rule{
		{
			Intent:     "greeting",
			Confidence: 0.9,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b(hello|hi|hey)\b`),
				regexp.MustCompile(`\bgood (morning|afternoon|evening)\b`),
			},
		},
		{
			Intent:     "goodbye",
			Confidence: 0.9,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b(goodbye|bye|see you)\b`),
				regexp.MustCompile(`\b(take care|talk to you later)\b`),
			},
		},
		{
			Intent:     "how_are_you",
			Confidence: 0.85,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`\bhow (are|'re) you\b`),
				regexp.MustCompile(`\bhow is it going\b`),
			},
		},
		{
			Intent:     "device_control",
			Confidence: 0.9,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`\bturn (on|off) (the )?\w+`),
				regexp.MustCompile(`\bswitch (on|off) (the )?\w+`),
			},
			Extractors: []EntityExtractor{
				{Name: "state", Pattern: regexp.MustCompile(`\b(?:turn|switch) (on|off)\b`)},
				{Name: "device", Pattern: regexp.MustCompile(`\b(?:turn|switch) (?:on|off) (?:the )?(\w+)`)},
			},
		},
		{
			Intent:     "request_repeat",
			Confidence: 0.85,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b(repeat|say that again|what did you say|pardon)\b`),
				regexp.MustCompile(`\b(didn't catch that|one more time)\b`),
			},
		},
		{
			Intent:     "question",
			Confidence: 0.6,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b(who|what|where|when|why|how)\b`),
			},
		},
	}
}
