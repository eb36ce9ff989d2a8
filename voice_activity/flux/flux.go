// Package flux is a pure-Go voice activity classifier built on the short-time
// spectrum: a window is speech when it is loud enough, most of its energy sits
// in the speech band, and either its spectrum changed noticeably since the
// previous window (spectral flux onset) or the previous window was speech.
package flux

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	speechBandLowHz  = 300
	speechBandHighHz = 3400
)

type Config struct {
	SampleRate int
	// MinLevel is the minimum RMS level, relative to full scale.
	MinLevel float64
	// MinBandRatio is the minimum share of spectral energy in 300-3400 Hz.
	MinBandRatio float64
	// MinFlux is the normalized spectral flux that marks a speech onset.
	MinFlux float64
}

func DefaultConfig(sampleRate int) Config {
	return Config{
		SampleRate:   sampleRate,
		MinLevel:     0.01,
		MinBandRatio: 0.5,
		MinFlux:      0.2,
	}
}

type Classifier struct {
	cfg      Config
	prev     []float64
	inSpeech bool
}

func New(cfg Config) (*Classifier, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}

	if cfg.MinBandRatio < 0 || cfg.MinBandRatio > 1 {
		return nil, fmt.Errorf("min band ratio must be between 0 and 1, got %f", cfg.MinBandRatio)
	}

	return &Classifier{cfg: cfg}, nil
}

// Level is the RMS level of samples relative to full scale.
func Level(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768
		sum += v * v
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// spectrum returns the magnitude spectrum of the Hann-windowed samples,
// zero padded to a power of two, up to Nyquist.
func spectrum(samples []int16) []float64 {
	n := 1
	for n < len(samples) {
		n <<= 1
	}

	x := make([]float64, len(samples))
	for i, s := range samples {
		x[i] = float64(s) / 32768
	}

	window.Apply(x, window.Hann)

	padded := make([]float64, n)
	copy(padded, x)

	bins := fft.FFTReal(padded)

	mags := make([]float64, n/2+1)
	for k := range mags {
		mags[k] = cmplx.Abs(bins[k])
	}

	return mags
}

// Flux is the positive spectral change from prev to cur, normalized by the
// total magnitude of cur. Without a previous spectrum every bin is new.
func Flux(prev, cur []float64) float64 {
	var change, total float64

	for k, m := range cur {
		total += m

		p := 0.0
		if k < len(prev) {
			p = prev[k]
		}

		if m > p {
			change += m - p
		}
	}

	if total == 0 {
		return 0
	}

	return change / total
}

func (c *Classifier) bandRatio(mags []float64) float64 {
	fftSize := 2 * (len(mags) - 1)
	binHz := float64(c.cfg.SampleRate) / float64(fftSize)

	var band, total float64

	for k, m := range mags {
		e := m * m
		total += e

		hz := float64(k) * binHz
		if hz >= speechBandLowHz && hz <= speechBandHighHz {
			band += e
		}
	}

	if total == 0 {
		return 0
	}

	return band / total
}

func (c *Classifier) Classify(samples []int16) (bool, error) {
	if len(samples) == 0 {
		return false, fmt.Errorf("empty window")
	}

	mags := spectrum(samples)
	flux := Flux(c.prev, mags)
	c.prev = mags

	speech := Level(samples) >= c.cfg.MinLevel &&
		c.bandRatio(mags) >= c.cfg.MinBandRatio &&
		(c.inSpeech || flux >= c.cfg.MinFlux)

	c.inSpeech = speech

	return speech, nil
}

func (c *Classifier) Reset() {
	c.prev = nil
	c.inSpeech = false
}
