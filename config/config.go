// Package config loads the pipeline settings from YAML.
package config

import (
	"log/slog"
	"time"
)

type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}

	return false
}

func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const (
	KeywordPorcupine = "porcupine"
	KeywordPhrase    = "phrase"

	VADWebRTC = "webrtc"
	VADFlux   = "flux"
)

type Config struct {
	LogLevel    LogLevel          `yaml:"log_level"`
	MetricsAddr string            `yaml:"metrics_addr"`
	Audio       AudioConfig       `yaml:"audio"`
	Keyword     KeywordConfig     `yaml:"keyword"`
	VAD         VADConfig         `yaml:"vad"`
	Endpointing EndpointingConfig `yaml:"endpointing"`
	Sink        SinkConfig        `yaml:"sink"`
	Whisper     WhisperConfig     `yaml:"whisper"`
	AIBot       AIBotConfig       `yaml:"ai_bot"`
}

type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	BlockSize  int `yaml:"block_size"`
	// Device is a portaudio input device index; empty selects the default input.
	Device string `yaml:"device"`
	// WavFile replays a recording instead of opening the microphone.
	WavFile string `yaml:"wav_file"`
}

type KeywordConfig struct {
	Backend    string `yaml:"backend"`
	WindowSize int    `yaml:"window_size"`

	Porcupine PorcupineConfig `yaml:"porcupine"`
	Phrase    PhraseConfig    `yaml:"phrase"`
}

type PorcupineConfig struct {
	// AccessKey falls back to $PICOVOICE_ACCESS_KEY.
	AccessKey       string   `yaml:"access_key"`
	ModelPath       string   `yaml:"model_path"`
	KeywordPaths    []string `yaml:"keyword_paths"`
	BuiltInKeywords []string `yaml:"builtin_keywords"`
	Sensitivity     float32  `yaml:"sensitivity"`
}

type PhraseConfig struct {
	Text     string        `yaml:"text"`
	Lookback time.Duration `yaml:"lookback"`
	Stride   int           `yaml:"stride"`
	MinLevel float64       `yaml:"min_level"`
}

type VADConfig struct {
	Backend        string `yaml:"backend"`
	WindowSize     int    `yaml:"window_size"`
	Aggressiveness int    `yaml:"aggressiveness"`
}

type EndpointingConfig struct {
	SilenceDuration   time.Duration `yaml:"silence_duration"`
	VoiceStartMaxWait time.Duration `yaml:"voice_start_max_wait"`
}

type SinkConfig struct {
	QueueSize int `yaml:"queue_size"`
	// RecordDir keeps a WAV copy of every utterance when set.
	RecordDir string `yaml:"record_dir"`
}

type WhisperConfig struct {
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

type AIBotConfig struct {
	// ApiHost is optional; without it transcriptions are only logged.
	ApiHost string        `yaml:"api_host"`
	Timeout time.Duration `yaml:"timeout"`
}

func Default() *Config {
	return &Config{
		LogLevel:    LogInfo,
		MetricsAddr: ":9090",
		Audio: AudioConfig{
			SampleRate: 16000,
			BlockSize:  512,
		},
		Keyword: KeywordConfig{
			Backend:    KeywordPorcupine,
			WindowSize: 512,
			Porcupine: PorcupineConfig{
				BuiltInKeywords: []string{"porcupine"},
				Sensitivity:     0.5,
			},
			Phrase: PhraseConfig{
				Text:     "hey smart home",
				Lookback: 2 * time.Second,
				Stride:   8,
				MinLevel: 0.01,
			},
		},
		VAD: VADConfig{
			Backend:        VADWebRTC,
			WindowSize:     320,
			Aggressiveness: 3,
		},
		Endpointing: EndpointingConfig{
			SilenceDuration:   500 * time.Millisecond,
			VoiceStartMaxWait: 5 * time.Second,
		},
		Sink: SinkConfig{
			QueueSize: 4,
		},
		Whisper: WhisperConfig{
			Language: "en",
		},
		AIBot: AIBotConfig{
			Timeout: 30 * time.Second,
		},
	}
}
