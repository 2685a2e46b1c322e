package rules

import (
	"regexp"
	"testing"

	"github.com/voxloop/voxloop-core/core/intent"
)

func TestClassifyMatchesDeviceControlWithEntities(t *testing.T) {
	c, err := NewClassifier(DefaultRuleSet())
	if err != nil {
		t.Fatalf("expected classifier to build, got %v", err)
	}

	got, err := c.Classify("Turn on the lights", "")
	if err != nil {
		t.Fatalf("expected classification to succeed, got %v", err)
	}
	if got.Name != "device_control" {
		t.Fatalf("expected device_control, got %q", got.Name)
	}
	if got.Entities["state"] != "on" || got.Entities["device"] != "lights" {
		t.Fatalf("expected state=on device=lights, got %v", got.Entities)
	}
	if got.RawText != "Turn on the lights" {
		t.Fatalf("expected raw text preserved, got %q", got.RawText)
	}
}

func TestClassifyFallsBackToUnknown(t *testing.T) {
	c, err := NewClassifier(DefaultRuleSet())
	if err != nil {
		t.Fatalf("expected classifier to build, got %v", err)
	}

	got, err := c.Classify("fhqwhgads", "")
	if err != nil {
		t.Fatalf("expected classification to succeed, got %v", err)
	}
	if got.Name != intent.NameUnknown {
		t.Fatalf("expected unknown intent, got %q", got.Name)
	}
	if got.Confidence != 0.3 {
		t.Fatalf("expected default unknown confidence 0.3, got %v", got.Confidence)
	}
}

func TestClassifyFirstMatchingRuleWins(t *testing.T) {
	c, err := NewClassifier(DefaultRuleSet())
	if err != nil {
		t.Fatalf("expected classifier to build, got %v", err)
	}

	// Matches both greeting and how_are_you; greeting is earlier in the set.
	got, err := c.Classify("hello, how are you?", "")
	if err != nil {
		t.Fatalf("expected classification to succeed, got %v", err)
	}
	if got.Name != "greeting" {
		t.Fatalf("expected earlier rule greeting to win, got %q", got.Name)
	}
}

func TestClassifyRespectsScenarioRestriction(t *testing.T) {
	ruleSet := []Rule{
		{
			Intent:     "order_pizza",
			Confidence: 0.9,
			Patterns:   []*regexp.Regexp{regexp.MustCompile(`\bpizza\b`)},
			Scenarios:  []string{"restaurant"},
		},
	}
	c, err := NewClassifier(ruleSet)
	if err != nil {
		t.Fatalf("expected classifier to build, got %v", err)
	}

	got, _ := c.Classify("I want a pizza", "")
	if got.Name != intent.NameUnknown {
		t.Fatalf("expected scenario-restricted rule skipped outside its scenario, got %q", got.Name)
	}

	got, _ = c.Classify("I want a pizza", "restaurant")
	if got.Name != "order_pizza" {
		t.Fatalf("expected order_pizza inside restaurant scenario, got %q", got.Name)
	}
}

func TestNewClassifierRejectsInvalidRules(t *testing.T) {
	if _, err := NewClassifier([]Rule{{Intent: ""}}); err == nil {
		t.Fatalf("expected an error for a rule without an intent name")
	}
	if _, err := NewClassifier([]Rule{{Intent: "empty"}}); err == nil {
		t.Fatalf("expected an error for a rule without patterns")
	}
}

func TestWithUnknownConfidence(t *testing.T) {
	c, err := NewClassifier(DefaultRuleSet(), WithUnknownConfidence(0.1))
	if err != nil {
		t.Fatalf("expected classifier to build, got %v", err)
	}

	got, _ := c.Classify("fhqwhgads", "")
	if got.Confidence != 0.1 {
		t.Fatalf("expected configured unknown confidence 0.1, got %v", got.Confidence)
	}
}
