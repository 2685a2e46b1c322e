package pipeline

import "errors"

var (
	// ErrModelUnavailable wraps engine failures and per-call timeouts for
	// the recognition and synthesis stages.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrRecognitionTimeout is returned when the recognition engine finishes
	// without producing a final transcript for the utterance.
	ErrRecognitionTimeout = errors.New("recognition timed out without a final transcript")

	// ErrAlreadyRunning is returned by Run when the pipeline was started twice.
	ErrAlreadyRunning = errors.New("pipeline is already running")
)
