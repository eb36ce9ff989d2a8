// Package phrase spots a wake phrase by transcribing the most recent audio
// and looking for the phrase in the text. It is slow compared to a dedicated
// keyword model and only transcribes every Stride windows.
package phrase

import (
	"fmt"
	"strings"
	"time"

	"assistant-voice-pipeline/ring_buffer"
	"assistant-voice-pipeline/utterance"
	"assistant-voice-pipeline/voice_activity/flux"
)

// Transcriber is satisfied by speech_to_text.Interface.
type Transcriber interface {
	Transcribe(u *utterance.Utterance) (string, error)
}

type Config struct {
	STTEngine  Transcriber
	Phrase     string
	SampleRate int
	// Lookback is how much recent audio is transcribed each time.
	Lookback time.Duration
	// Stride is the number of windows between transcriptions.
	Stride int
	// MinLevel skips transcription when the lookback audio is quieter than this RMS level.
	MinLevel float64
}

type Classifier struct {
	sttEngine Transcriber
	phrase    string
	rate      int
	ring      ring_buffer.Interface
	stride    int
	minLevel  float64
	pending   int
}

func New(cfg *Config) (*Classifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.STTEngine == nil {
		return nil, fmt.Errorf("sttEngine is nil")
	}

	phrase := Normalize(cfg.Phrase)
	if phrase == "" {
		return nil, fmt.Errorf("phrase is empty")
	}

	if cfg.SampleRate <= 0 || cfg.Lookback <= 0 {
		return nil, fmt.Errorf("sample rate and lookback must be positive")
	}

	stride := cfg.Stride
	if stride <= 0 {
		stride = 1
	}

	return &Classifier{
		sttEngine: cfg.STTEngine,
		phrase:    phrase,
		rate:      cfg.SampleRate,
		ring:      ring_buffer.New(int(int64(cfg.SampleRate) * int64(cfg.Lookback) / int64(time.Second))),
		stride:    stride,
		minLevel:  cfg.MinLevel,
	}, nil
}

// Normalize keeps letters, digits and single spaces, lower-cased, so that
// punctuation in a transcription does not hide the phrase.
func Normalize(text string) string {
	kept := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == ' ' {
			return r
		}

		return -1
	}, text)

	return strings.Join(strings.Fields(strings.ToLower(kept)), " ")
}

func (c *Classifier) Classify(window []int16) (bool, error) {
	c.ring.Add(window)
	c.pending++

	if c.pending < c.stride {
		return false, nil
	}

	c.pending = 0

	samples := c.ring.Read()
	if flux.Level(samples) < c.minLevel {
		return false, nil
	}

	text, err := c.sttEngine.Transcribe(utterance.New(samples, c.rate, time.Now()))
	if err != nil {
		return false, err
	}

	if !strings.Contains(" "+Normalize(text)+" ", " "+c.phrase+" ") {
		return false, nil
	}

	// the phrase must not fire again from the same audio
	c.ring.Clear()

	return true, nil
}

func (c *Classifier) Reset() {
	c.ring.Clear()
	c.pending = 0
}
