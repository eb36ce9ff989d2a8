package microphone

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"assistant-voice-pipeline/audio_source"
	"assistant-voice-pipeline/pipeline_errors"

	"github.com/gordonklaus/portaudio"
)

const microphoneSource = "microphone"

type microphoneImpl struct {
	stream     *portaudio.Stream
	in         []int16
	onOverflow func()
	logger     *slog.Logger
}

type Config struct {
	// DeviceID is the portaudio input device index; empty selects the default device.
	DeviceID   string
	SampleRate int
	BlockSize  int
	// OnOverflow is called every time the device reports an input overflow.
	OnOverflow func()
	Logger     *slog.Logger
}

// New initializes portaudio and starts a mono input stream. Close
// stops the stream and terminates portaudio.
func New(cfg *Config) (audio_source.Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.SampleRate <= 0 {
		return nil, pipeline_errors.Configuration("sample rate must be positive, got %d", cfg.SampleRate)
	}

	if cfg.BlockSize <= 0 {
		return nil, pipeline_errors.Configuration("block size must be positive, got %d", cfg.BlockSize)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, pipeline_errors.Capture(microphoneSource, err)
	}

	in := make([]int16, cfg.BlockSize)

	stream, err := openStream(cfg, in, logger)
	if err != nil {
		_ = portaudio.Terminate()

		return nil, pipeline_errors.Capture(microphoneSource, err)
	}

	if err = stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()

		return nil, pipeline_errors.Capture(microphoneSource, err)
	}

	logger.Info("microphone started", "device", cfg.DeviceID, "sample_rate", cfg.SampleRate, "block_size", cfg.BlockSize)

	return &microphoneImpl{
		stream:     stream,
		in:         in,
		onOverflow: cfg.OnOverflow,
		logger:     logger,
	}, nil
}

func openStream(cfg *Config, in []int16, logger *slog.Logger) (*portaudio.Stream, error) {
	if cfg.DeviceID == "" {
		return portaudio.OpenDefaultStream(1, 0, float64(cfg.SampleRate), len(in), in)
	}

	index, err := strconv.Atoi(cfg.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("device id %q is not an index: %w", cfg.DeviceID, err)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	for i, device := range devices {
		logger.Debug("audio device", "index", i, "name", device.Name, "inputs", device.MaxInputChannels)
	}

	if index < 0 || index >= len(devices) {
		return nil, fmt.Errorf("device index %d out of range (%d devices)", index, len(devices))
	}

	params := portaudio.LowLatencyParameters(devices[index], nil)
	params.Input.Channels = 1
	params.Output.Channels = 0
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = len(in)

	return portaudio.OpenStream(params, in)
}

// NextBlock reads one block. An input overflow is reported and the
// (discontinuous) block is delivered anyway.
func (m *microphoneImpl) NextBlock() ([]int16, error) {
	err := m.stream.Read()
	if err != nil {
		if !errors.Is(err, portaudio.InputOverflowed) {
			return nil, pipeline_errors.Capture(microphoneSource, err)
		}

		m.logger.Warn("microphone input overflowed, continuing")

		if m.onOverflow != nil {
			m.onOverflow()
		}
	}

	block := make([]int16, len(m.in))
	copy(block, m.in)

	return block, nil
}

func (m *microphoneImpl) Close() error {
	stopErr := m.stream.Stop()
	closeErr := m.stream.Close()
	termErr := portaudio.Terminate()

	return errors.Join(stopErr, closeErr, termErr)
}
