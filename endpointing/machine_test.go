package endpointing

import (
	"errors"
	"testing"
	"time"

	"assistant-voice-pipeline/pipeline_errors"
)

const (
	sampleRate = 16000
	windowSize = 320
	windowDur  = 20 * time.Millisecond
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type recorder struct {
	transitions []Transition
}

func (r *recorder) observe(t Transition) {
	r.transitions = append(r.transitions, t)
}

func (r *recorder) reasons() []Reason {
	out := make([]Reason, len(r.transitions))
	for i, t := range r.transitions {
		out[i] = t.Reason
	}

	return out
}

func newMachine(t *testing.T) (*Machine, *fakeClock, *recorder) {
	t.Helper()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	rec := &recorder{}

	m, err := New(&Config{
		SampleRate:        sampleRate,
		WindowSize:        windowSize,
		SilenceDuration:   500 * time.Millisecond,
		VoiceStartMaxWait: 5 * time.Second,
		Clock:             clock.Now,
		Observer:          rec.observe,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return m, clock, rec
}

// window returns a VAD window filled with a marker value.
func window(marker int16) []int16 {
	w := make([]int16, windowSize)
	for i := range w {
		w[i] = marker
	}

	return w
}

// feed pushes one window per 20ms tick and collects emitted utterance sizes.
func feed(t *testing.T, m *Machine, clock *fakeClock, marker int16, speech bool) int {
	t.Helper()

	clock.Advance(windowDur)

	u, err := m.VoiceFrame(window(marker), speech)
	if err != nil {
		t.Fatalf("VoiceFrame: %v", err)
	}

	if u == nil {
		return -1
	}

	return u.NumSamples()
}

func TestMaxSilenceWindows(t *testing.T) {
	cases := []struct {
		silence    time.Duration
		rate, size int
		expected   int
	}{
		{500 * time.Millisecond, 16000, 320, 25},
		{500 * time.Millisecond, 16000, 512, 16},
		{510 * time.Millisecond, 16000, 320, 26},
		{20 * time.Millisecond, 16000, 320, 1},
		{1 * time.Millisecond, 16000, 320, 1},
	}

	for _, c := range cases {
		got := MaxSilenceWindows(c.silence, c.rate, c.size)
		if got != c.expected {
			t.Errorf("MaxSilenceWindows(%v, %d, %d): expected %d, got %d", c.silence, c.rate, c.size, c.expected, got)
		}
	}
}

func TestMachine(t *testing.T) {
	t.Run("one speech window and 25 silence windows yield exactly one window of audio", func(t *testing.T) {
		m, clock, rec := newMachine(t)

		if m.MaxSilenceWindows() != 25 {
			t.Fatalf("expected 25 max silence windows, got %d", m.MaxSilenceWindows())
		}

		m.KeywordHit()

		if n := feed(t, m, clock, 7, true); n != -1 {
			t.Fatalf("unexpected emission after the speech window")
		}

		var emitted []int

		for i := 0; i < 25; i++ {
			if n := feed(t, m, clock, 0, false); n != -1 {
				emitted = append(emitted, n)
			}
		}

		if len(emitted) != 1 || emitted[0] != windowSize {
			t.Fatalf("expected one utterance of %d samples, got %v", windowSize, emitted)
		}

		if m.State() != Idle || m.Buffered() != 0 {
			t.Errorf("expected idle with an empty buffer, got %v with %d windows", m.State(), m.Buffered())
		}

		expected := []Reason{ReasonKeyword, ReasonVoice, ReasonSilence}
		got := rec.reasons()

		if len(got) != len(expected) {
			t.Fatalf("expected transitions %v, got %v", expected, got)
		}

		for i := range expected {
			if got[i] != expected[i] {
				t.Errorf("transition %d: expected %s, got %s", i, expected[i], got[i])
			}
		}
	})

	t.Run("the emitted audio excludes exactly the trailing silence windows", func(t *testing.T) {
		m, clock, _ := newMachine(t)

		m.KeywordHit()

		feed(t, m, clock, 1, false) // lead-in
		feed(t, m, clock, 2, true)
		feed(t, m, clock, 3, false)
		feed(t, m, clock, 4, true)

		var u []int16

		for i := 0; i < 25; i++ {
			clock.Advance(windowDur)

			got, err := m.VoiceFrame(window(9), false)
			if err != nil {
				t.Fatalf("VoiceFrame: %v", err)
			}

			if got != nil {
				u = got.Samples()
			}
		}

		if len(u) != 4*windowSize {
			t.Fatalf("expected %d samples, got %d", 4*windowSize, len(u))
		}

		for i, marker := range []int16{1, 2, 3, 4} {
			if u[i*windowSize] != marker || u[(i+1)*windowSize-1] != marker {
				t.Errorf("window %d: expected marker %d", i, marker)
			}
		}
	})

	t.Run("one window short of the silence limit keeps capturing", func(t *testing.T) {
		m, clock, _ := newMachine(t)

		m.KeywordHit()
		feed(t, m, clock, 1, true)

		for i := 0; i < 24; i++ {
			if n := feed(t, m, clock, 0, false); n != -1 {
				t.Fatalf("premature emission after %d silence windows", i+1)
			}
		}

		if m.SilenceRun() != 24 {
			t.Fatalf("expected a silence run of 24, got %d", m.SilenceRun())
		}

		feed(t, m, clock, 1, true)

		if m.State() != Capturing || m.SilenceRun() != 0 {
			t.Errorf("expected capturing with the silence run reset, got %v run %d", m.State(), m.SilenceRun())
		}
	})

	t.Run("no speech within the wait limit is a false alarm", func(t *testing.T) {
		m, clock, rec := newMachine(t)

		m.KeywordHit()

		emitted := 0
		// 5s of non-speech windows plus a little more
		for i := 0; i < 5000/20+5; i++ {
			if n := feed(t, m, clock, 0, false); n != -1 {
				emitted++
			}
		}

		if emitted != 0 {
			t.Errorf("expected no utterance, got %d", emitted)
		}

		if m.State() != Idle || m.Buffered() != 0 {
			t.Errorf("expected idle with an empty buffer, got %v with %d windows", m.State(), m.Buffered())
		}

		reasons := rec.reasons()
		if reasons[len(reasons)-1] != ReasonTimeout {
			t.Errorf("expected a timeout transition, got %v", reasons)
		}
	})

	t.Run("expire fires only after the wait limit", func(t *testing.T) {
		m, clock, _ := newMachine(t)

		m.KeywordHit()

		clock.Advance(5 * time.Second)

		if m.Expire() {
			t.Fatalf("expected no expiry at exactly the wait limit")
		}

		clock.Advance(time.Millisecond)

		if !m.Expire() {
			t.Fatalf("expected expiry past the wait limit")
		}

		if m.State() != Idle {
			t.Errorf("expected idle, got %v", m.State())
		}
	})

	t.Run("capturing has no voice start timeout", func(t *testing.T) {
		m, clock, _ := newMachine(t)

		m.KeywordHit()
		feed(t, m, clock, 1, true)

		for i := 0; i < 400; i++ {
			feed(t, m, clock, 1, i%2 == 0)
		}

		if m.Expire() || m.State() != Capturing {
			t.Errorf("expected to still be capturing, got %v", m.State())
		}
	})

	t.Run("keyword hits during an episode are ignored", func(t *testing.T) {
		m, clock, rec := newMachine(t)

		m.KeywordHit()
		feed(t, m, clock, 1, true)

		m.KeywordHit()

		if m.State() != Capturing || m.Buffered() != 1 {
			t.Errorf("expected the episode to continue, got %v with %d windows", m.State(), m.Buffered())
		}

		if len(rec.transitions) != 2 {
			t.Errorf("expected 2 transitions, got %d", len(rec.transitions))
		}
	})

	t.Run("voice windows are ignored while idle", func(t *testing.T) {
		m, clock, _ := newMachine(t)

		feed(t, m, clock, 1, true)

		if m.State() != Idle || m.Buffered() != 0 {
			t.Errorf("expected idle with an empty buffer")
		}
	})

	t.Run("reset after every episode ending is indistinguishable from a fresh machine", func(t *testing.T) {
		m, clock, _ := newMachine(t)

		// emission
		m.KeywordHit()
		feed(t, m, clock, 1, true)
		for i := 0; i < 25; i++ {
			feed(t, m, clock, 0, false)
		}

		assertFresh(t, m)

		// false alarm
		m.KeywordHit()
		clock.Advance(6 * time.Second)
		m.Expire()

		assertFresh(t, m)

		// shutdown mid capture
		m.KeywordHit()
		feed(t, m, clock, 1, true)
		m.Reset()

		assertFresh(t, m)
	})

	t.Run("wrong window length is a wiring error", func(t *testing.T) {
		m, _, _ := newMachine(t)

		m.KeywordHit()

		_, err := m.VoiceFrame(make([]int16, 512), true)
		if !errors.Is(err, pipeline_errors.ErrWindowSize) {
			t.Errorf("expected ErrWindowSize, got %v", err)
		}
	})

	t.Run("invalid configuration fails fast", func(t *testing.T) {
		_, err := New(&Config{SampleRate: 16000, WindowSize: 0, SilenceDuration: time.Second, VoiceStartMaxWait: time.Second})

		var configErr *pipeline_errors.ConfigurationError
		if !errors.As(err, &configErr) {
			t.Errorf("expected a configuration error, got %v", err)
		}
	})
}

func assertFresh(t *testing.T, m *Machine) {
	t.Helper()

	if m.State() != Idle || m.Buffered() != 0 || m.SilenceRun() != 0 {
		t.Errorf("expected a fresh machine, got %v with %d windows and silence run %d", m.State(), m.Buffered(), m.SilenceRun())
	}
}
