package voice_activity

import (
	"fmt"

	"assistant-voice-pipeline/pipeline_errors"
)

type detectorImpl struct {
	classifier Classifier
	windowSize int
	name       string
}

type Config struct {
	Classifier Classifier
	WindowSize int
	Name       string
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Classifier == nil {
		return nil, fmt.Errorf("classifier is nil")
	}

	if cfg.WindowSize <= 0 {
		return nil, pipeline_errors.Configuration("vad window size must be positive, got %d", cfg.WindowSize)
	}

	name := cfg.Name
	if name == "" {
		name = "vad"
	}

	return &detectorImpl{
		classifier: cfg.Classifier,
		windowSize: cfg.WindowSize,
		name:       name,
	}, nil
}

func (d *detectorImpl) WindowSize() int {
	return d.windowSize
}

func (d *detectorImpl) Classify(window []int16) (bool, error) {
	if len(window) != d.windowSize {
		return false, fmt.Errorf("%s: got %d samples, want %d: %w", d.name, len(window), d.windowSize, pipeline_errors.ErrWindowSize)
	}

	speech, err := d.classifier.Classify(window)
	if err != nil {
		return false, pipeline_errors.Model(d.name, err)
	}

	return speech, nil
}

// Reset clears backend state at the start of a capture episode.
func (d *detectorImpl) Reset() {
	if r, ok := d.classifier.(Resetter); ok {
		r.Reset()
	}
}
