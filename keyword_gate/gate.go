package keyword_gate

import (
	"fmt"

	"assistant-voice-pipeline/pipeline_errors"
)

type gateImpl struct {
	classifier Classifier
	windowSize int
	name       string
	last       bool
}

type Config struct {
	Classifier Classifier
	WindowSize int
	// Name identifies the backend in errors and logs.
	Name string
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Classifier == nil {
		return nil, fmt.Errorf("classifier is nil")
	}

	if cfg.WindowSize <= 0 {
		return nil, pipeline_errors.Configuration("keyword window size must be positive, got %d", cfg.WindowSize)
	}

	name := cfg.Name
	if name == "" {
		name = "keyword"
	}

	return &gateImpl{
		classifier: cfg.Classifier,
		windowSize: cfg.WindowSize,
		name:       name,
	}, nil
}

func (g *gateImpl) WindowSize() int {
	return g.windowSize
}

// Detect classifies one keyword window. A wrong-length window is a wiring
// bug and is reported as ErrWindowSize, never passed to the classifier.
func (g *gateImpl) Detect(window []int16) (Detection, error) {
	if len(window) != g.windowSize {
		return Detection{}, fmt.Errorf("%s: got %d samples, want %d: %w", g.name, len(window), g.windowSize, pipeline_errors.ErrWindowSize)
	}

	hit, err := g.classifier.Classify(window)
	if err != nil {
		return Detection{}, pipeline_errors.Model(g.name, err)
	}

	detection := Detection{
		Hit:    hit,
		Rising: hit && !g.last,
	}

	g.last = hit

	return detection, nil
}

// Rearm forgets the previous classification and the backend's state; call
// it when the keyword stream resumes after being paused.
func (g *gateImpl) Rearm() {
	g.last = false

	if r, ok := g.classifier.(Resetter); ok {
		r.Reset()
	}
}
