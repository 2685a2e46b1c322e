// Package intent defines the understanding contract: free text in,
// classified intent with extracted entities out.
package intent

// NameUnknown is the intent assigned when no classification applies.
const NameUnknown = "unknown"

type Intent struct {
	Name       string
	Confidence float64
	Entities   map[string]string
	RawText    string
}

// Classifier maps a finalized transcript to an intent. The scenario tag of
// the active conversation is passed along so scenario-scoped rules can
// match; implementations may ignore it.
type Classifier interface {
	Classify(text string, scenario string) (Intent, error)
}
