package events

// KindSpeechStarted identifies the idle-to-speech gate transition.
const KindSpeechStarted Kind = "user_input.speech_started"

// SpeechStarted fires the instant user speech is detected, before any
// segment is assembled. It is the trigger for barge-in cancellation.
type SpeechStarted struct{ Base }

func NewSpeechStarted() SpeechStarted {
	return SpeechStarted{Base: NewBase(KindSpeechStarted)}
}

// KindSpeechEnded identifies the trailing-to-idle gate transition.
const KindSpeechEnded Kind = "user_input.speech_ended"

type SpeechEnded struct{ Base }

func NewSpeechEnded() SpeechEnded {
	return SpeechEnded{Base: NewBase(KindSpeechEnded)}
}
