package events

// KindTranscriptPartial identifies an interim transcription update.
const KindTranscriptPartial Kind = "user_input.transcript_partial"

type TranscriptPartial struct {
	Base
	UtteranceID string
	Transcript  string
}

func (t TranscriptPartial) String() string { return t.Transcript + "..." }

func NewTranscriptPartial(utteranceID, transcript string) TranscriptPartial {
	return TranscriptPartial{
		Base:        NewBase(KindTranscriptPartial),
		UtteranceID: utteranceID,
		Transcript:  transcript,
	}
}

// KindTranscriptFinal identifies the terminal transcript for an utterance.
const KindTranscriptFinal Kind = "user_input.transcript_final"

type TranscriptFinal struct {
	Base
	UtteranceID string
	Transcript  string
	Confidence  float64
}

func (t TranscriptFinal) String() string { return t.Transcript }

func NewTranscriptFinal(utteranceID, transcript string, confidence float64) TranscriptFinal {
	return TranscriptFinal{
		Base:        NewBase(KindTranscriptFinal),
		UtteranceID: utteranceID,
		Transcript:  transcript,
		Confidence:  confidence,
	}
}
