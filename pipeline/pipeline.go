// Package pipeline is the capture loop. It reads keyword windows while idle,
// switches to voice activity windows after a keyword hit and hands finished
// utterances to the sink.
//
// Both detectors read the same stream through their own cursor. The cursor
// that is not being read is moved forward in step, so after an episode the
// keyword gate resumes at the first sample after the utterance and a new
// episode starts its capture right after the keyword window.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"assistant-voice-pipeline/endpointing"
	"assistant-voice-pipeline/frame_demux"
	"assistant-voice-pipeline/keyword_gate"
	"assistant-voice-pipeline/metrics"
	"assistant-voice-pipeline/pipeline_errors"
	"assistant-voice-pipeline/utterance_sink"
	"assistant-voice-pipeline/voice_activity"
)

type pipelineImpl struct {
	demux     *frame_demux.Demultiplexer
	kwCursor  *frame_demux.Cursor
	vadCursor *frame_demux.Cursor
	gate      keyword_gate.Interface
	vad       voice_activity.Interface
	machine   *endpointing.Machine
	sink      utterance_sink.Interface
	logger    *slog.Logger
	metrics   *metrics.Metrics
	observer  endpointing.Observer
}

type Config struct {
	Source      frame_demux.Source
	KeywordGate keyword_gate.Interface
	VAD         voice_activity.Interface
	Sink        utterance_sink.Interface

	SampleRate        int
	SilenceDuration   time.Duration
	VoiceStartMaxWait time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time
	// StreamClock measures time by the samples read so far instead of Clock,
	// for sources that deliver faster than real time (WAV replay).
	StreamClock bool
	// Observer is called after the pipeline's own transition handling.
	Observer endpointing.Observer

	Logger *slog.Logger
	// Metrics is optional.
	Metrics *metrics.Metrics
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Source == nil {
		return nil, fmt.Errorf("source is nil")
	}

	if cfg.KeywordGate == nil {
		return nil, fmt.Errorf("keyword gate is nil")
	}

	if cfg.VAD == nil {
		return nil, fmt.Errorf("vad is nil")
	}

	if cfg.Sink == nil {
		return nil, fmt.Errorf("sink is nil")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	demux, err := frame_demux.New(cfg.Source)
	if err != nil {
		return nil, err
	}

	kwCursor, err := demux.NewCursor(cfg.KeywordGate.WindowSize())
	if err != nil {
		return nil, err
	}

	vadCursor, err := demux.NewCursor(cfg.VAD.WindowSize())
	if err != nil {
		return nil, err
	}

	p := &pipelineImpl{
		demux:     demux,
		kwCursor:  kwCursor,
		vadCursor: vadCursor,
		gate:      cfg.KeywordGate,
		vad:       cfg.VAD,
		sink:      cfg.Sink,
		logger:    logger,
		metrics:   cfg.Metrics,
		observer:  cfg.Observer,
	}

	clock := cfg.Clock
	if cfg.StreamClock {
		if cfg.SampleRate <= 0 {
			return nil, pipeline_errors.Configuration("sample rate must be positive, got %d", cfg.SampleRate)
		}

		clock = p.streamClock(time.Now(), cfg.SampleRate)
	}

	p.machine, err = endpointing.New(&endpointing.Config{
		SampleRate:        cfg.SampleRate,
		WindowSize:        cfg.VAD.WindowSize(),
		SilenceDuration:   cfg.SilenceDuration,
		VoiceStartMaxWait: cfg.VoiceStartMaxWait,
		Clock:             clock,
		Observer:          p.onTransition,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("pipeline ready",
		"keyword_window", kwCursor.Size(),
		"vad_window", vadCursor.Size(),
		"max_silence_windows", p.machine.MaxSilenceWindows(),
	)

	return p, nil
}

// streamClock reports start plus the duration of the stream read so far by
// the leading cursor.
func (p *pipelineImpl) streamClock(start time.Time, sampleRate int) func() time.Time {
	return func() time.Time {
		offset := max(p.kwCursor.Offset(), p.vadCursor.Offset())

		return start.Add(time.Duration(offset) * time.Second / time.Duration(sampleRate))
	}
}

func (p *pipelineImpl) Run(ctx context.Context) error {
	// a partial capture is never emitted on the way out
	defer p.machine.Reset()

	for {
		if ctx.Err() != nil {
			return nil
		}

		var err error
		if p.machine.State() == endpointing.Idle {
			err = p.listenForKeyword(ctx)
		} else {
			err = p.captureVoice(ctx)
		}

		if err != nil {
			return err
		}
	}
}

func (p *pipelineImpl) listenForKeyword(ctx context.Context) error {
	window, err := p.kwCursor.Next()
	if err != nil {
		return err
	}

	start := time.Now()

	detection, err := p.gate.Detect(window)
	if err != nil {
		return err
	}

	p.recordClassification(ctx, "keyword", time.Since(start))

	// voice windows before the keyword ended are never needed
	p.vadCursor.SkipTo(p.kwCursor.Offset())

	if !detection.Hit {
		return nil
	}

	if detection.Rising {
		p.logger.Debug("keyword rising edge", "offset", p.kwCursor.Offset())
	}

	p.vad.Reset()
	p.machine.KeywordHit()

	return nil
}

func (p *pipelineImpl) captureVoice(ctx context.Context) error {
	window, err := p.vadCursor.Next()
	if err != nil {
		return err
	}

	// the keyword stream is paused for the whole episode
	p.kwCursor.SkipTo(p.vadCursor.Offset())

	if p.machine.Expire() {
		return nil
	}

	start := time.Now()

	speech, err := p.vad.Classify(window)
	if err != nil {
		return err
	}

	p.recordClassification(ctx, "vad", time.Since(start))

	u, err := p.machine.VoiceFrame(window, speech)
	if err != nil {
		return err
	}

	if u == nil {
		return nil
	}

	p.logger.Info("utterance captured", "duration", u.Duration(), "samples", u.NumSamples())

	if p.metrics != nil {
		p.metrics.RecordUtterance(ctx, u.Duration())
	}

	p.sink.Accept(u)

	return nil
}

func (p *pipelineImpl) onTransition(t endpointing.Transition) {
	p.logger.Info(string(t.Reason), "from", t.From.String(), "to", t.To.String())

	if t.To == endpointing.Idle {
		p.gate.Rearm()
	}

	if p.metrics != nil {
		ctx := context.Background()

		switch t.Reason {
		case endpointing.ReasonKeyword:
			p.metrics.KeywordHits.Add(ctx, 1)
		case endpointing.ReasonTimeout:
			p.metrics.FalseAlarms.Add(ctx, 1)
		}
	}

	if p.observer != nil {
		p.observer(t)
	}
}

func (p *pipelineImpl) recordClassification(ctx context.Context, detector string, took time.Duration) {
	if p.metrics != nil {
		p.metrics.RecordClassification(ctx, detector, took)
	}
}
