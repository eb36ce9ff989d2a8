package audio_source

import (
	"fmt"
	"io"

	"assistant-voice-pipeline/pipeline_errors"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

const wavFileSource = "wav_file"

type wavFileImpl struct {
	file    afero.File
	decoder *wav.Decoder
	buf     *audio.IntBuffer
}

type WavFileConfig struct {
	FileSys    afero.Fs
	Path       string
	SampleRate int
	BlockSize  int
}

// NewWavFile replays a recorded mono 16-bit WAV file as a sample source. The
// last block may be shorter than BlockSize; after it NextBlock fails with a
// CaptureError wrapping io.EOF.
func NewWavFile(cfg *WavFileConfig) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.FileSys == nil {
		return nil, fmt.Errorf("fileSys is nil")
	}

	if cfg.BlockSize <= 0 {
		return nil, pipeline_errors.Configuration("block size must be positive, got %d", cfg.BlockSize)
	}

	file, err := cfg.FileSys.Open(cfg.Path)
	if err != nil {
		return nil, pipeline_errors.Capture(wavFileSource, err)
	}

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		_ = file.Close()

		return nil, pipeline_errors.Configuration("%s is not a valid wav file", cfg.Path)
	}

	if int(decoder.SampleRate) != cfg.SampleRate || decoder.BitDepth != 16 || decoder.NumChans != 1 {
		_ = file.Close()

		return nil, pipeline_errors.Configuration("%s: expected mono 16 bit at %d Hz, got %d channel(s) %d bit at %d Hz",
			cfg.Path, cfg.SampleRate, decoder.NumChans, decoder.BitDepth, decoder.SampleRate)
	}

	return &wavFileImpl{
		file:    file,
		decoder: decoder,
		buf: &audio.IntBuffer{
			Format: decoder.Format(),
			Data:   make([]int, cfg.BlockSize),
		},
	}, nil
}

func (w *wavFileImpl) NextBlock() ([]int16, error) {
	n, err := w.decoder.PCMBuffer(w.buf)
	if err != nil {
		return nil, pipeline_errors.Capture(wavFileSource, err)
	}

	if n == 0 {
		return nil, pipeline_errors.Capture(wavFileSource, io.EOF)
	}

	block := make([]int16, n)
	for i := 0; i < n; i++ {
		block[i] = int16(w.buf.Data[i])
	}

	return block, nil
}

func (w *wavFileImpl) Close() error {
	return w.file.Close()
}
