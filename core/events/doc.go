// Package events defines the typed pipeline event contract.
//
// Event kinds are grouped by namespace:
//
//   - user_input.* — capture-side activity: speech boundaries and
//     transcription progress.
//   - turn_state.* — lifecycle of a request/response turn, including
//     barge-in cancellation.
//   - pipeline.* — orchestrator housekeeping: degrade policy actions,
//     stage restarts, capture queue overflow and latency reports.
//
// Every event carries a creation timestamp via Base. Events are emitted by
// the orchestrator and are informational; dropping them never changes
// pipeline behavior.
package events
