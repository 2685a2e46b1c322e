// Package response selects or generates response text for classified
// intents, de-duplicating work through a bounded single-flight cache.
package response

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/voxloop/voxloop-core/core/conversations"
	"github.com/voxloop/voxloop-core/core/intent"
)

type Source string

const (
	SourceCache    Source = "cache"
	SourceTemplate Source = "template"
	SourceDynamic  Source = "dynamic"
)

// Unit is one generated response ready for synthesis.
type Unit struct {
	Text        string
	Source      Source
	GeneratedAt time.Time
}

// DynamicGenerator produces response text when no template covers the
// intent. It sees the conversation history up to the configured lookback.
type DynamicGenerator func(ctx context.Context, in intent.Intent, history []conversations.Turn) (string, error)

const defaultFallbackText = "Sorry, I'm having trouble responding right now. Let's try again in a moment."

type composerOptions struct {
	templates    map[string][]string
	dynamic      DynamicGenerator
	fallbackText string
	cacheSize    int
	cacheTTL     time.Duration
}

type ComposerOption func(*composerOptions)

// WithTemplates replaces the whole template table: intent name to candidate
// response texts. Texts may reference entities as {name} placeholders.
func WithTemplates(templates map[string][]string) ComposerOption {
	return func(o *composerOptions) { o.templates = templates }
}

// WithTemplate adds or replaces the candidate texts for one intent.
func WithTemplate(intentName string, texts ...string) ComposerOption {
	return func(o *composerOptions) {
		if o.templates == nil {
			o.templates = map[string][]string{}
		}
		o.templates[intentName] = texts
	}
}

func WithDynamicGenerator(generator DynamicGenerator) ComposerOption {
	return func(o *composerOptions) { o.dynamic = generator }
}

// WithFallbackText sets the static apology spoken when a turn has to be
// aborted after repeated engine failures.
func WithFallbackText(text string) ComposerOption {
	return func(o *composerOptions) { o.fallbackText = text }
}

func WithCacheSize(size int) ComposerOption {
	return func(o *composerOptions) { o.cacheSize = size }
}

func WithCacheTTL(ttl time.Duration) ComposerOption {
	return func(o *composerOptions) { o.cacheTTL = ttl }
}

// Composer picks response text for an intent: a template when one covers
// the intent, the dynamic generator otherwise. Results are cached keyed on
// the normalized utterance plus the conversation fingerprint.
type Composer struct {
	options composerOptions
	cache   *Cache

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewComposer(opts ...ComposerOption) *Composer {
	options := composerOptions{
		templates:    DefaultTemplates(),
		fallbackText: defaultFallbackText,
		cacheSize:    DefaultCacheSize,
		cacheTTL:     DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Composer{
		options: options,
		cache:   NewCache(options.cacheSize, options.cacheTTL),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Compose returns the response unit for the intent. skipCacheWrite keeps
// the generated unit out of the cache; the degrade policy sets it when the
// latency budget is at risk.
func (c *Composer) Compose(ctx context.Context, in intent.Intent, conversation *conversations.Context, skipCacheWrite bool) (Unit, error) {
	key := fmt.Sprintf("%s|%s", normalizeUtterance(in.RawText), conversation.Fingerprint())

	unit, _, err := c.cache.GetOrGenerate(key, func() (Unit, error) {
		return c.generate(ctx, in, conversation)
	}, !skipCacheWrite)
	if err != nil {
		return Unit{}, fmt.Errorf("failed to compose response: %w", err)
	}

	return unit, nil
}

// Fallback returns the static apology unit. It never fails and is never
// cached.
func (c *Composer) Fallback() Unit {
	return Unit{
		Text:        c.options.fallbackText,
		Source:      SourceTemplate,
		GeneratedAt: time.Now(),
	}
}

func (c *Composer) generate(ctx context.Context, in intent.Intent, conversation *conversations.Context) (Unit, error) {
	if texts, ok := c.options.templates[in.Name]; ok && len(texts) > 0 {
		return Unit{
			Text:        fillEntities(c.pick(texts), in.Entities),
			Source:      SourceTemplate,
			GeneratedAt: time.Now(),
		}, nil
	}

	if c.options.dynamic != nil {
		text, err := c.options.dynamic(ctx, in, conversation.History())
		if err != nil {
			return Unit{}, fmt.Errorf("dynamic generation failed: %w", err)
		}
		return Unit{Text: text, Source: SourceDynamic, GeneratedAt: time.Now()}, nil
	}

	texts := c.options.templates[intent.NameUnknown]
	if len(texts) == 0 {
		return c.Fallback(), nil
	}
	return Unit{Text: c.pick(texts), Source: SourceTemplate, GeneratedAt: time.Now()}, nil
}

func (c *Composer) pick(texts []string) string {
	if len(texts) == 1 {
		return texts[0]
	}

	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return texts[c.rng.Intn(len(texts))]
}

func fillEntities(text string, entities map[string]string) string {
	for name, value := range entities {
		text = strings.ReplaceAll(text, "{"+name+"}", value)
	}
	return text
}

func normalizeUtterance(text string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(text)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// DefaultTemplates is the built-in response table keyed by intent name.
func DefaultTemplates() map[string][]string {
	return map[string][]string{
		"greeting": {
			"Hello! How can I help you?",
			"Hi there! What can I do for you?",
		},
		"goodbye": {
			"Goodbye! Have a great day!",
			"Bye! Talk to you soon!",
		},
		"how_are_you": {
			"I'm doing well, thanks for asking.",
		},
		"device_control": {
			"Turning {state} the {device}",
		},
		"request_repeat": {
			"Sure, let me say that again.",
		},
		intent.NameUnknown: {
			"I'm not sure I understand. Could you rephrase that?",
			"Sorry, I didn't get that. Can you say it differently?",
		},
	}
}
