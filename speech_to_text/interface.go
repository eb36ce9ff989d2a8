package speech_to_text

import (
	"time"

	"assistant-voice-pipeline/utterance"
)

type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

type Interface interface {
	Process(u *utterance.Utterance) ([]Segment, error)
	Transcribe(u *utterance.Utterance) (string, error)
}
