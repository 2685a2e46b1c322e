package response

import (
	"context"
	"fmt"
	"testing"

	"github.com/voxloop/voxloop-core/core/conversations"
	"github.com/voxloop/voxloop-core/core/intent"
)

func deviceControlIntent(text string) intent.Intent {
	return intent.Intent{
		Name:       "device_control",
		Confidence: 0.9,
		Entities:   map[string]string{"state": "on", "device": "lights"},
		RawText:    text,
	}
}

func TestComposeFillsTemplateEntities(t *testing.T) {
	c := NewComposer()
	conversation := conversations.NewContext()

	unit, err := c.Compose(context.Background(), deviceControlIntent("turn on the lights"), conversation, false)
	if err != nil {
		t.Fatalf("expected composition to succeed, got %v", err)
	}
	if unit.Text != "Turning on the lights" {
		t.Fatalf("expected filled template, got %q", unit.Text)
	}
	if unit.Source != SourceTemplate {
		t.Fatalf("expected template source, got %q", unit.Source)
	}
}

func TestComposeServesRepeatedUtteranceFromCache(t *testing.T) {
	c := NewComposer()
	conversation := conversations.NewContext()

	first, err := c.Compose(context.Background(), deviceControlIntent("turn on the lights"), conversation, false)
	if err != nil {
		t.Fatalf("expected composition to succeed, got %v", err)
	}

	// Same normalized utterance, same conversation fingerprint.
	second, err := c.Compose(context.Background(), deviceControlIntent("Turn on the lights!"), conversation, false)
	if err != nil {
		t.Fatalf("expected composition to succeed, got %v", err)
	}
	if second.Source != SourceCache {
		t.Fatalf("expected the repeat to come from cache, got %q", second.Source)
	}
	if second.Text != first.Text {
		t.Fatalf("expected identical cached text, got %q and %q", first.Text, second.Text)
	}
}

func TestComposeCacheKeyedOnConversationFingerprint(t *testing.T) {
	c := NewComposer()
	conversation := conversations.NewContext()

	c.Compose(context.Background(), deviceControlIntent("turn on the lights"), conversation, false)

	// Recording a turn changes the fingerprint, so the same utterance must
	// not reuse the old entry.
	conversation.RecordTurn("turn on the lights", "device_control", "Turning on the lights")
	unit, err := c.Compose(context.Background(), deviceControlIntent("turn on the lights"), conversation, false)
	if err != nil {
		t.Fatalf("expected composition to succeed, got %v", err)
	}
	if unit.Source == SourceCache {
		t.Fatalf("expected a fresh composition after the fingerprint changed")
	}
}

func TestComposeSkipCacheWrite(t *testing.T) {
	c := NewComposer()
	conversation := conversations.NewContext()

	c.Compose(context.Background(), deviceControlIntent("turn on the lights"), conversation, true)
	unit, err := c.Compose(context.Background(), deviceControlIntent("turn on the lights"), conversation, false)
	if err != nil {
		t.Fatalf("expected composition to succeed, got %v", err)
	}
	if unit.Source == SourceCache {
		t.Fatalf("expected nothing cached while cache writes are skipped")
	}
}

func TestComposeUsesDynamicGeneratorForUncoveredIntents(t *testing.T) {
	c := NewComposer(
		WithTemplates(map[string][]string{}),
		WithDynamicGenerator(func(ctx context.Context, in intent.Intent, history []conversations.Turn) (string, error) {
			return fmt.Sprintf("dynamic for %s with %d prior turns", in.Name, len(history)), nil
		}),
	)
	conversation := conversations.NewContext()
	conversation.RecordTurn("hi", "greeting", "hello")

	unit, err := c.Compose(context.Background(), intent.Intent{Name: "weather", RawText: "what's the weather"}, conversation, false)
	if err != nil {
		t.Fatalf("expected composition to succeed, got %v", err)
	}
	if unit.Source != SourceDynamic {
		t.Fatalf("expected dynamic source, got %q", unit.Source)
	}
	if unit.Text != "dynamic for weather with 1 prior turns" {
		t.Fatalf("unexpected dynamic text %q", unit.Text)
	}
}

func TestComposeFallsBackToUnknownTemplate(t *testing.T) {
	c := NewComposer()
	conversation := conversations.NewContext()

	unit, err := c.Compose(context.Background(), intent.Intent{Name: "weather", RawText: "what's the weather"}, conversation, false)
	if err != nil {
		t.Fatalf("expected composition to succeed, got %v", err)
	}
	if unit.Source != SourceTemplate || unit.Text == "" {
		t.Fatalf("expected an unknown-intent template response, got %+v", unit)
	}
}

func TestFallbackNeverFails(t *testing.T) {
	c := NewComposer(WithFallbackText("custom apology"))

	unit := c.Fallback()
	if unit.Text != "custom apology" {
		t.Fatalf("expected configured fallback text, got %q", unit.Text)
	}
}

func TestNormalizeUtterance(t *testing.T) {
	cases := map[string]string{
		"  Turn ON the Lights!  ": "turn on the lights",
		"What's up?":              "what's up",
		"one,two  three":          "one two three",
	}
	for in, want := range cases {
		if got := normalizeUtterance(in); got != want {
			t.Fatalf("expected %q normalized to %q, got %q", in, want, got)
		}
	}
}
