// Package porcupine spots keywords with Picovoice Porcupine.
package porcupine

import (
	"fmt"

	pv "github.com/Picovoice/porcupine/binding/go/v3"
)

type Config struct {
	AccessKey string
	// ModelPath is an optional language model (.pv); empty uses the bundled English model.
	ModelPath string
	// KeywordPaths are custom keyword files (.ppn).
	KeywordPaths []string
	// BuiltInKeywords are used when no KeywordPaths are given, e.g. "porcupine", "computer".
	BuiltInKeywords []string
	Sensitivity     float32
}

type Classifier struct {
	handle *pv.Porcupine
}

// FrameLength is the window size the engine requires (512 at 16 kHz).
func FrameLength() int {
	return pv.FrameLength
}

func SampleRate() int {
	return pv.SampleRate
}

func New(cfg *Config) (*Classifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.AccessKey == "" {
		return nil, fmt.Errorf("access key is empty")
	}

	handle := &pv.Porcupine{
		AccessKey: cfg.AccessKey,
		ModelPath: cfg.ModelPath,
	}

	count := len(cfg.KeywordPaths)
	if count > 0 {
		handle.KeywordPaths = cfg.KeywordPaths
	} else {
		for _, name := range cfg.BuiltInKeywords {
			handle.BuiltInKeywords = append(handle.BuiltInKeywords, pv.BuiltInKeyword(name))
		}

		count = len(handle.BuiltInKeywords)
	}

	if count == 0 {
		return nil, fmt.Errorf("no keywords configured")
	}

	if cfg.Sensitivity > 0 {
		handle.Sensitivities = make([]float32, count)
		for i := range handle.Sensitivities {
			handle.Sensitivities[i] = cfg.Sensitivity
		}
	}

	if err := handle.Init(); err != nil {
		return nil, fmt.Errorf("porcupine init: %w", err)
	}

	return &Classifier{handle: handle}, nil
}

// Classify reports whether any configured keyword ends in this frame.
func (c *Classifier) Classify(window []int16) (bool, error) {
	keywordIndex, err := c.handle.Process(window)
	if err != nil {
		return false, err
	}

	return keywordIndex >= 0, nil
}

func (c *Classifier) Close() error {
	return c.handle.Delete()
}
