package utterance

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/go-audio/audio"
	"github.com/zenwerk/go-wave"
)

const BitDepth = 16

// Utterance is a finished, silence-trimmed capture. It is never mutated after
// the state machine hands it to a sink.
type Utterance struct {
	samples    []int16
	sampleRate int
	capturedAt time.Time
}

// New copies samples so the caller's capture buffer can be reused.
func New(samples []int16, sampleRate int, capturedAt time.Time) *Utterance {
	cp := make([]int16, len(samples))
	copy(cp, samples)

	return &Utterance{
		samples:    cp,
		sampleRate: sampleRate,
		capturedAt: capturedAt,
	}
}

// Samples returns a copy of the PCM samples.
func (u *Utterance) Samples() []int16 {
	cp := make([]int16, len(u.samples))
	copy(cp, u.samples)

	return cp
}

func (u *Utterance) NumSamples() int {
	return len(u.samples)
}

func (u *Utterance) SampleRate() int {
	return u.sampleRate
}

func (u *Utterance) BitDepth() int {
	return BitDepth
}

func (u *Utterance) CapturedAt() time.Time {
	return u.capturedAt
}

func (u *Utterance) Duration() time.Duration {
	if u.sampleRate == 0 {
		return 0
	}

	return time.Duration(len(u.samples)) * time.Second / time.Duration(u.sampleRate)
}

// Bytes returns the samples as little-endian 16-bit PCM.
func (u *Utterance) Bytes() []byte {
	out := make([]byte, 2*len(u.samples))
	for i, s := range u.samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}

	return out
}

// AsIntBuffer converts the utterance into the go-audio buffer the
// transcription engine consumes.
func (u *Utterance) AsIntBuffer() *audio.IntBuffer {
	data := make([]int, len(u.samples))
	for i, s := range u.samples {
		data[i] = int(s)
	}

	return &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  u.sampleRate,
		},
		Data:           data,
		SourceBitDepth: BitDepth,
	}
}

type nopCloser struct {
	*bytes.Buffer
}

func (nopCloser) Close() error {
	return nil
}

// EncodeWAV renders the utterance as an in-memory mono WAV file.
func (u *Utterance) EncodeWAV() ([]byte, error) {
	out := nopCloser{Buffer: &bytes.Buffer{}}

	waveWriter, err := wave.NewWriter(wave.WriterParam{
		Out:           out,
		Channel:       1,
		SampleRate:    u.sampleRate,
		BitsPerSample: BitDepth,
	})
	if err != nil {
		return nil, err
	}

	if _, err = waveWriter.WriteSample16(u.samples); err != nil {
		return nil, err
	}

	if err = waveWriter.Close(); err != nil {
		return nil, err
	}

	return out.Bytes(), nil
}
