// Package webrtc classifies voice activity with the WebRTC VAD.
package webrtc

import (
	"encoding/binary"
	"fmt"

	"github.com/maxhawkins/go-webrtcvad"
)

type Config struct {
	SampleRate int
	WindowSize int
	// Aggressiveness is the WebRTC mode, 0 (least) to 3 (most aggressive).
	Aggressiveness int
}

type Classifier struct {
	vad        *webrtcvad.VAD
	sampleRate int
	frame      []byte
}

// ValidWindow reports whether the WebRTC VAD accepts windowSize samples at
// sampleRate: 10, 20 or 30 ms at 8, 16, 32 or 48 kHz.
func ValidWindow(sampleRate, windowSize int) bool {
	switch sampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return false
	}

	perMs := sampleRate / 1000
	for _, ms := range []int{10, 20, 30} {
		if windowSize == perMs*ms {
			return true
		}
	}

	return false
}

func New(cfg Config) (*Classifier, error) {
	if !ValidWindow(cfg.SampleRate, cfg.WindowSize) {
		return nil, fmt.Errorf("webrtc vad does not support %d samples at %d Hz", cfg.WindowSize, cfg.SampleRate)
	}

	if cfg.Aggressiveness < 0 || cfg.Aggressiveness > 3 {
		return nil, fmt.Errorf("aggressiveness must be between 0 and 3, got %d", cfg.Aggressiveness)
	}

	vad, err := webrtcvad.New()
	if err != nil {
		return nil, err
	}

	if err = vad.SetMode(cfg.Aggressiveness); err != nil {
		return nil, err
	}

	return &Classifier{
		vad:        vad,
		sampleRate: cfg.SampleRate,
		frame:      make([]byte, 2*cfg.WindowSize),
	}, nil
}

func (c *Classifier) Classify(samples []int16) (bool, error) {
	if 2*len(samples) != len(c.frame) {
		return false, fmt.Errorf("got %d samples, want %d", len(samples), len(c.frame)/2)
	}

	for i, s := range samples {
		binary.LittleEndian.PutUint16(c.frame[2*i:], uint16(s))
	}

	return c.vad.Process(c.sampleRate, c.frame)
}
