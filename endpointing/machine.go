// Package endpointing decides where an utterance starts and ends in a stream
// of voice activity decisions.
//
// After a keyword hit the machine waits for the first speech window, then
// captures until a configured run of non-speech windows has been seen. The
// trailing silence is trimmed before the utterance is emitted. If no speech
// arrives within the wait limit the episode is dropped as a false alarm.
//
// A Machine is owned by a single goroutine; none of its methods are safe for
// concurrent use.
package endpointing

import (
	"fmt"
	"time"

	"assistant-voice-pipeline/pipeline_errors"
	"assistant-voice-pipeline/utterance"
)

type State int

const (
	Idle State = iota
	AwaitingVoice
	Capturing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingVoice:
		return "awaiting_voice"
	case Capturing:
		return "capturing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Reason string

const (
	ReasonKeyword  Reason = "keyword detected"
	ReasonVoice    Reason = "voice detected"
	ReasonSilence  Reason = "long silence detected"
	ReasonTimeout  Reason = "waiting time for voice exceeded"
	ReasonShutdown Reason = "capture discarded"
)

// Transition is published to the Observer on every state change.
type Transition struct {
	From   State
	To     State
	Reason Reason
	At     time.Time
}

type Observer func(Transition)

type Config struct {
	SampleRate int
	// WindowSize is the VAD window size in samples; every captured window must have it.
	WindowSize        int
	SilenceDuration   time.Duration
	VoiceStartMaxWait time.Duration
	// Clock defaults to time.Now.
	Clock    func() time.Time
	Observer Observer
}

type Machine struct {
	sampleRate        int
	windowSize        int
	maxSilenceWindows int
	voiceStartMaxWait time.Duration
	clock             func() time.Time
	observer          Observer

	state       State
	keywordTime time.Time
	silenceRun  int
	capture     [][]int16
}

// MaxSilenceWindows is ceil(silence / window duration) computed in whole
// samples so that e.g. 500ms of 20ms windows is exactly 25.
func MaxSilenceWindows(silence time.Duration, sampleRate, windowSize int) int {
	num := silence.Nanoseconds() * int64(sampleRate)
	den := int64(windowSize) * int64(time.Second)

	return int((num + den - 1) / den)
}

func New(cfg *Config) (*Machine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.SampleRate <= 0 {
		return nil, pipeline_errors.Configuration("sample rate must be positive, got %d", cfg.SampleRate)
	}

	if cfg.WindowSize <= 0 {
		return nil, pipeline_errors.Configuration("vad window size must be positive, got %d", cfg.WindowSize)
	}

	if cfg.SilenceDuration <= 0 {
		return nil, pipeline_errors.Configuration("silence duration must be positive, got %v", cfg.SilenceDuration)
	}

	if cfg.VoiceStartMaxWait <= 0 {
		return nil, pipeline_errors.Configuration("voice start max wait must be positive, got %v", cfg.VoiceStartMaxWait)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Machine{
		sampleRate:        cfg.SampleRate,
		windowSize:        cfg.WindowSize,
		maxSilenceWindows: MaxSilenceWindows(cfg.SilenceDuration, cfg.SampleRate, cfg.WindowSize),
		voiceStartMaxWait: cfg.VoiceStartMaxWait,
		clock:             clock,
		observer:          cfg.Observer,
		state:             Idle,
	}, nil
}

func (m *Machine) State() State {
	return m.state
}

func (m *Machine) MaxSilenceWindows() int {
	return m.maxSilenceWindows
}

// Buffered is the number of windows in the capture buffer.
func (m *Machine) Buffered() int {
	return len(m.capture)
}

func (m *Machine) SilenceRun() int {
	return m.silenceRun
}

// KeywordHit starts a capture episode. Hits while an episode is in progress
// are ignored; one keyword hit yields at most one utterance.
func (m *Machine) KeywordHit() {
	if m.state != Idle {
		return
	}

	m.keywordTime = m.clock()
	m.clear()
	m.transition(AwaitingVoice, ReasonKeyword)
}

// Expire drops the episode as a false alarm when no speech arrived within
// the wait limit. It reports whether it did.
func (m *Machine) Expire() bool {
	if m.state != AwaitingVoice {
		return false
	}

	if m.clock().Sub(m.keywordTime) <= m.voiceStartMaxWait {
		return false
	}

	m.clear()
	m.transition(Idle, ReasonTimeout)

	return true
}

// VoiceFrame feeds one classified VAD window. It returns the finished
// utterance when this window completes the trailing silence, nil otherwise.
// Windows are ignored while idle.
func (m *Machine) VoiceFrame(window []int16, isSpeech bool) (*utterance.Utterance, error) {
	if len(window) != m.windowSize {
		return nil, fmt.Errorf("vad: got %d samples, want %d: %w", len(window), m.windowSize, pipeline_errors.ErrWindowSize)
	}

	switch m.state {
	case AwaitingVoice:
		if m.Expire() {
			return nil, nil
		}

		// non-speech windows may be the utterance's lead-in
		m.capture = append(m.capture, window)

		if isSpeech {
			m.silenceRun = 0
			m.transition(Capturing, ReasonVoice)
		}

		return nil, nil
	case Capturing:
		m.capture = append(m.capture, window)

		if isSpeech {
			m.silenceRun = 0

			return nil, nil
		}

		m.silenceRun++

		if m.silenceRun < m.maxSilenceWindows {
			return nil, nil
		}

		u := m.emit()
		m.clear()
		m.transition(Idle, ReasonSilence)

		return u, nil
	default:
		return nil, nil
	}
}

// Reset discards any partial capture and returns to Idle.
func (m *Machine) Reset() {
	if m.state == Idle {
		m.clear()

		return
	}

	m.clear()
	m.transition(Idle, ReasonShutdown)
}

func (m *Machine) emit() *utterance.Utterance {
	keep := len(m.capture) - m.maxSilenceWindows
	if keep < 0 {
		keep = 0
	}

	samples := make([]int16, 0, keep*m.windowSize)
	for _, window := range m.capture[:keep] {
		samples = append(samples, window...)
	}

	return utterance.New(samples, m.sampleRate, m.keywordTime)
}

func (m *Machine) clear() {
	m.capture = nil
	m.silenceRun = 0
}

func (m *Machine) transition(to State, reason Reason) {
	t := Transition{
		From:   m.state,
		To:     to,
		Reason: reason,
		At:     m.clock(),
	}

	m.state = to

	if m.observer != nil {
		m.observer(t)
	}
}
