package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"assistant-voice-pipeline/endpointing"
	"assistant-voice-pipeline/keyword_gate"
	"assistant-voice-pipeline/metrics"
	"assistant-voice-pipeline/pipeline_errors"
	"assistant-voice-pipeline/utterance"
	"assistant-voice-pipeline/voice_activity"
)

const (
	testRate      = 1000
	keywordWindow = 32
	vadWindow     = 20
	keywordMarker = 7
)

type part struct {
	value int16
	n     int
}

func signal(parts ...part) []int16 {
	var out []int16
	for _, p := range parts {
		for i := 0; i < p.n; i++ {
			out = append(out, p.value)
		}
	}

	return out
}

// scriptSource plays samples in fixed blocks and advances the clock by the
// duration of every block it delivers.
type scriptSource struct {
	samples []int16
	block   int
	pos     int
	blocks  int
	now     time.Time
	onBlock func(blocks int)
}

func (s *scriptSource) NextBlock() ([]int16, error) {
	if s.pos >= len(s.samples) {
		return nil, pipeline_errors.Capture("script", io.EOF)
	}

	end := min(s.pos+s.block, len(s.samples))
	block := append([]int16(nil), s.samples[s.pos:end]...)
	s.pos = end
	s.blocks++
	s.now = s.now.Add(time.Duration(len(block)) * time.Second / testRate)

	if s.onBlock != nil {
		s.onBlock(s.blocks)
	}

	return block, nil
}

func (s *scriptSource) clock() time.Time {
	return s.now
}

type classifierFunc func(window []int16) (bool, error)

func (f classifierFunc) Classify(window []int16) (bool, error) {
	return f(window)
}

func markerKeyword(window []int16) (bool, error) {
	for _, s := range window {
		if s == keywordMarker {
			return true, nil
		}
	}

	return false, nil
}

func onesAreSpeech(window []int16) (bool, error) {
	return window[0] == 1, nil
}

type recordingSink struct {
	utterances []*utterance.Utterance
}

func (s *recordingSink) Accept(u *utterance.Utterance) {
	s.utterances = append(s.utterances, u)
}

type harness struct {
	source      *scriptSource
	sink        *recordingSink
	transitions []endpointing.Transition
	pipeline    Interface
}

func newHarness(t *testing.T, source *scriptSource, keyword classifierFunc, m *metrics.Metrics, configure ...func(cfg *Config)) *harness {
	t.Helper()

	gate, err := keyword_gate.New(&keyword_gate.Config{Classifier: keyword, WindowSize: keywordWindow})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vad, err := voice_activity.New(&voice_activity.Config{Classifier: classifierFunc(onesAreSpeech), WindowSize: vadWindow})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h := &harness{source: source, sink: &recordingSink{}}

	cfg := &Config{
		Source:            source,
		KeywordGate:       gate,
		VAD:               vad,
		Sink:              h.sink,
		SampleRate:        testRate,
		SilenceDuration:   100 * time.Millisecond,
		VoiceStartMaxWait: time.Second,
		Clock:             source.clock,
		Observer: func(tr endpointing.Transition) {
			h.transitions = append(h.transitions, tr)
		},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: m,
	}

	for _, fn := range configure {
		fn(cfg)
	}

	h.pipeline, err = New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return h
}

func (h *harness) reasons() []endpointing.Reason {
	var out []endpointing.Reason
	for _, tr := range h.transitions {
		out = append(out, tr.Reason)
	}

	return out
}

func sameReasons(a, b []endpointing.Reason) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}

			var total int64
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				total += dp.Value
			}

			return total
		}
	}

	return 0
}

func TestRun(t *testing.T) {
	start := time.Unix(1000, 0)

	t.Run("keyword then speech then silence emits one trimmed utterance", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

		m, err := metrics.NewMetrics(mp)
		if err != nil {
			t.Fatalf("NewMetrics: %v", err)
		}

		source := &scriptSource{
			samples: signal(
				part{0, 64},
				part{keywordMarker, 32},
				part{0, 40},
				part{1, 100},
				part{0, 100},
				part{0, 64},
			),
			block: 16,
			now:   start,
		}

		h := newHarness(t, source, markerKeyword, m)

		err = h.pipeline.Run(context.Background())
		if !errors.Is(err, io.EOF) {
			t.Fatalf("expected the end of the script, got %v", err)
		}

		want := []endpointing.Reason{endpointing.ReasonKeyword, endpointing.ReasonVoice, endpointing.ReasonSilence}
		if !sameReasons(h.reasons(), want) {
			t.Errorf("expected transitions %v, got %v", want, h.reasons())
		}

		if len(h.sink.utterances) != 1 {
			t.Fatalf("expected 1 utterance, got %d", len(h.sink.utterances))
		}

		samples := h.sink.utterances[0].Samples()
		if len(samples) != 140 {
			t.Fatalf("expected 140 samples, got %d", len(samples))
		}

		for i, s := range samples {
			want := int16(0)
			if i >= 40 {
				want = 1
			}

			if s != want {
				t.Fatalf("sample %d: expected %d, got %d", i, want, s)
			}
		}

		if got := counterValue(t, reader, "voice_pipeline.keyword.hits"); got != 1 {
			t.Errorf("expected 1 keyword hit, got %d", got)
		}

		if got := counterValue(t, reader, "voice_pipeline.utterances.emitted"); got != 1 {
			t.Errorf("expected 1 utterance emitted, got %d", got)
		}
	})

	t.Run("no voice after the keyword is a false alarm", func(t *testing.T) {
		source := &scriptSource{
			samples: signal(
				part{keywordMarker, 96},
				part{0, 1200},
			),
			block: 16,
			now:   start,
		}

		h := newHarness(t, source, markerKeyword, nil)

		err := h.pipeline.Run(context.Background())
		if !errors.Is(err, io.EOF) {
			t.Fatalf("expected the end of the script, got %v", err)
		}

		want := []endpointing.Reason{endpointing.ReasonKeyword, endpointing.ReasonTimeout}
		if !sameReasons(h.reasons(), want) {
			t.Errorf("expected transitions %v, got %v", want, h.reasons())
		}

		if len(h.sink.utterances) != 0 {
			t.Errorf("expected no utterance, got %d", len(h.sink.utterances))
		}
	})

	t.Run("stream time drives the voice wait for sources faster than real time", func(t *testing.T) {
		source := &scriptSource{
			samples: signal(
				part{keywordMarker, 32},
				part{0, 10000},
				part{1, 100},
				part{0, 100},
			),
			block: 16,
			now:   start,
		}

		h := newHarness(t, source, markerKeyword, nil, func(cfg *Config) {
			// wall clock barely moves while the script is read
			cfg.Clock = nil
			cfg.StreamClock = true
		})

		err := h.pipeline.Run(context.Background())
		if !errors.Is(err, io.EOF) {
			t.Fatalf("expected the end of the script, got %v", err)
		}

		want := []endpointing.Reason{endpointing.ReasonKeyword, endpointing.ReasonTimeout}
		if !sameReasons(h.reasons(), want) {
			t.Errorf("expected transitions %v, got %v", want, h.reasons())
		}

		if len(h.sink.utterances) != 0 {
			t.Errorf("expected no utterance, got %d", len(h.sink.utterances))
		}
	})

	t.Run("a held keyword starts a single episode", func(t *testing.T) {
		source := &scriptSource{
			samples: signal(
				part{keywordMarker, 96},
				part{1, 60},
				part{0, 140},
			),
			block: 16,
			now:   start,
		}

		h := newHarness(t, source, markerKeyword, nil)

		_ = h.pipeline.Run(context.Background())

		if len(h.sink.utterances) != 1 {
			t.Errorf("expected 1 utterance, got %d", len(h.sink.utterances))
		}

		if h.transitions[0].Reason != endpointing.ReasonKeyword || h.transitions[1].Reason != endpointing.ReasonVoice {
			t.Errorf("unexpected transitions %v", h.reasons())
		}
	})

	t.Run("classifier failures stop the loop", func(t *testing.T) {
		modelErr := errors.New("model file corrupt")

		source := &scriptSource{samples: signal(part{0, 128}), block: 16, now: start}

		h := newHarness(t, source, func([]int16) (bool, error) { return false, modelErr }, nil)

		err := h.pipeline.Run(context.Background())

		var target *pipeline_errors.ModelError
		if !errors.As(err, &target) || !errors.Is(err, modelErr) {
			t.Errorf("expected a ModelError wrapping the classifier error, got %v", err)
		}
	})

	t.Run("cancellation discards the partial capture", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		source := &scriptSource{
			samples: signal(
				part{0, 64},
				part{keywordMarker, 32},
				part{1, 2000},
			),
			block: 16,
			now:   start,
			onBlock: func(blocks int) {
				if blocks == 15 {
					cancel()
				}
			},
		}

		h := newHarness(t, source, markerKeyword, nil)

		if err := h.pipeline.Run(ctx); err != nil {
			t.Fatalf("expected nil on cancellation, got %v", err)
		}

		want := []endpointing.Reason{endpointing.ReasonKeyword, endpointing.ReasonVoice, endpointing.ReasonShutdown}
		if !sameReasons(h.reasons(), want) {
			t.Errorf("expected transitions %v, got %v", want, h.reasons())
		}

		if len(h.sink.utterances) != 0 {
			t.Errorf("expected no utterance, got %d", len(h.sink.utterances))
		}
	})
}

func TestNew(t *testing.T) {
	gate, _ := keyword_gate.New(&keyword_gate.Config{Classifier: classifierFunc(markerKeyword), WindowSize: keywordWindow})
	vad, _ := voice_activity.New(&voice_activity.Config{Classifier: classifierFunc(onesAreSpeech), WindowSize: vadWindow})

	_, err := New(&Config{
		Source:            &scriptSource{block: 16},
		KeywordGate:       gate,
		VAD:               vad,
		Sink:              &recordingSink{},
		SampleRate:        testRate,
		VoiceStartMaxWait: time.Second,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	var configErr *pipeline_errors.ConfigurationError
	if !errors.As(err, &configErr) {
		t.Errorf("expected a ConfigurationError for a zero silence duration, got %v", err)
	}
}
