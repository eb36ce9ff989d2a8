package speech_to_text

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"assistant-voice-pipeline/utterance"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// segmentContext is the part of whisper.Context used for one transcription.
type segmentContext interface {
	Process(data []float32, cb whisper.SegmentCallback) error
	NextSegment() (whisper.Segment, error)
}

type sttImpl struct {
	// whisper contexts share the model; one transcription at a time
	mu         sync.Mutex
	newContext func() (segmentContext, error)
}

type Config struct {
	Model whisper.Model
	// Language is a whisper language code; empty keeps the model default.
	Language string
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Model == nil {
		return nil, fmt.Errorf("model is nil")
	}

	model := cfg.Model
	language := cfg.Language

	return &sttImpl{
		newContext: func() (segmentContext, error) {
			context, err := model.NewContext()
			if err != nil {
				return nil, err
			}

			if language != "" {
				if err = context.SetLanguage(language); err != nil {
					return nil, err
				}
			}

			return context, nil
		},
	}, nil
}

func (stt *sttImpl) Process(u *utterance.Utterance) ([]Segment, error) {
	stt.mu.Lock()
	defer stt.mu.Unlock()

	// Create processing context
	context, err := stt.newContext()
	if err != nil {
		return nil, err
	}

	data := u.AsIntBuffer().AsFloat32Buffer().Data

	var cb whisper.SegmentCallback

	err = context.Process(data, cb)
	if err != nil {
		return nil, err
	}

	return outputSegments(context)
}

// Transcribe joins the kept segments into one line of text.
func (stt *sttImpl) Transcribe(u *utterance.Utterance) (string, error) {
	segments, err := stt.Process(u)
	if err != nil {
		return "", err
	}

	texts := make([]string, 0, len(segments))
	for _, segment := range segments {
		texts = append(texts, strings.TrimSpace(segment.Text))
	}

	return strings.TrimSpace(strings.Join(texts, " ")), nil
}

func outputSegments(context segmentContext) ([]Segment, error) {
	seenText := make(map[string]bool)

	segments := make([]Segment, 0)

	for {
		segment, err := context.NextSegment()
		if err == io.EOF {
			return segments, nil
		} else if err != nil {
			return nil, err
		}

		// if segment text starts or ends with a parenthesis or a bracket, then ignore it
		// ("[BLANK_AUDIO]", "(wind blowing)")
		text := strings.TrimSpace(segment.Text)
		if len(text) > 0 && (text[0] == '(' || text[0] == '[' ||
			text[len(text)-1] == ')' || text[len(text)-1] == ']') {
			continue
		}

		// if we've already seen this text, then ignore it
		if _, ok := seenText[text]; ok {
			continue
		} else {
			seenText[text] = true
		}

		segments = append(segments, Segment{
			Start: segment.Start,
			End:   segment.End,
			Text:  segment.Text,
		})
	}
}
